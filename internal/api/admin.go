package api

import (
	"net/http"

	"zlot-parking/internal/models"

	"github.com/gorilla/mux"
	"gopkg.in/guregu/null.v4"
)

func (h *Handler) AdminMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	resp := models.AdminMeResponse{
		User:  models.AdminUser{ID: p.ID, Email: null.NewString(p.Email, p.Email != "")},
		Admin: true,
	}
	if profile := adminProfile(r); profile != nil {
		resp.Profile = &models.AdminProfile{
			ID:       profile.ID,
			FullName: profile.FullName,
			Email:    profile.Email,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Parking.Overview(r.Context(), principal(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AdminSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Parking.AdminSlots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AdminSlotsResponse{Slots: slots})
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSlotRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	slot, err := h.Parking.CreateSlot(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.SlotResponse{Slot: slot})
}

func (h *Handler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSlotRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	slot, err := h.Parking.UpdateSlot(r.Context(), mux.Vars(r)["slotId"], req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SlotResponse{Slot: slot})
}

func (h *Handler) AdminDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Parking.AdminDevices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AdminDevicesResponse{Devices: devices})
}

// QueueOpen and QueueClose insert a command for the device without arming
// an auto-close.
func (h *Handler) QueueOpen(w http.ResponseWriter, r *http.Request) {
	h.queueCommand(w, r, models.CommandOpen, "OPEN command queued.")
}

func (h *Handler) QueueClose(w http.ResponseWriter, r *http.Request) {
	h.queueCommand(w, r, models.CommandClose, "CLOSE command queued.")
}

func (h *Handler) queueCommand(w http.ResponseWriter, r *http.Request, command, msg string) {
	deviceID, err := h.Parking.QueueDeviceCommand(r.Context(), mux.Vars(r)["deviceId"], command)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeviceMessageResponse{Message: msg, DeviceID: deviceID})
}

func (h *Handler) AdminBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Parking.AdminBookings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AdminBookingsResponse{Bookings: bookings})
}

func (h *Handler) SetBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateBookingStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	booking, err := h.Parking.SetBookingStatus(r.Context(), mux.Vars(r)["bookingId"], req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BookingResponse{Booking: booking})
}

func (h *Handler) AdminSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Parking.AdminSessions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AdminSessionsResponse{Sessions: sessions})
}

func (h *Handler) ForceCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Parking.ForceCloseSession(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ForceCloseResponse{Message: "Session force-closed.", Session: sess})
}
