package api

import (
	"net/http"
	"strings"

	"zlot-parking/internal/models"
)

// Gate and device endpoints are unauthenticated; they rely on network
// trust and are rate limited per client address.

func (h *Handler) OpenGate(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	deviceID, err := h.Parking.OpenGate(r.Context(), req.DeviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeviceMessageResponse{Message: "Gate open command sent", DeviceID: deviceID})
}

func (h *Handler) CloseGate(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	deviceID, err := h.Parking.CloseGate(r.Context(), req.DeviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeviceMessageResponse{Message: "Gate close command sent", DeviceID: deviceID})
}

// Poll returns the device's pending command, or {} when there is none.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	cmd, err := h.Parking.Poll(r.Context(), req.DeviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cmd == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (h *Handler) Ack(w http.ResponseWriter, r *http.Request) {
	var req models.AckRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.Parking.Ack(r.Context(), req.CommandID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AckResponse{Message: "Command acknowledged", CommandID: strings.TrimSpace(req.CommandID)})
}
