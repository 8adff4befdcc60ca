package api

import (
	"net/http"
	"strings"

	"zlot-parking/internal/models"
)

// ListSlots returns the active slots with device health. No auth.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Parking.ListPublicSlots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SlotsResponse{Slots: slots})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Parking.History(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateBooking opens a PENDING_PAYMENT booking for the caller
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user := principal(r)
	if !ownsRequest(req.UserID, user.ID) {
		writeMessage(w, http.StatusForbidden, "user_id does not match authenticated user.")
		return
	}

	booking, slot, err := h.Parking.CreateBooking(r.Context(), user.ID, req.SlotID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.CreateBookingResponse{Booking: booking, Slot: slot})
}

// PayBooking confirms payment and opens the gate
func (h *Handler) PayBooking(w http.ResponseWriter, r *http.Request) {
	var req models.PayBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := h.Parking.PayBooking(r.Context(), principal(r).ID, req.BookingID, req.SlotID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PayBookingResponse{
		Message: "Payment confirmed, gate opening",
		Session: res.Session,
		Payment: res.Payment,
		Slot:    res.Slot,
	})
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user := principal(r)
	if !ownsRequest(req.UserID, user.ID) {
		writeMessage(w, http.StatusForbidden, "user_id does not match authenticated user.")
		return
	}

	sess, slot, err := h.Parking.StartSession(r.Context(), user.ID, req.SlotID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StartSessionResponse{
		Message: "Session started",
		Session: sess,
		Slot:    slot,
	})
}

// ownsRequest reports whether a body user_id, when given, names the caller.
func ownsRequest(bodyUserID, callerID string) bool {
	bodyUserID = strings.TrimSpace(bodyUserID)
	return bodyUserID == "" || bodyUserID == callerID
}
