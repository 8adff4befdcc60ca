package api

import (
	"errors"
	"net/http"

	"zlot-parking/internal/models"
	"zlot-parking/internal/owner"
)

// OwnerSubmission relays a parking-space offer to the ZLOT team mailbox.
func (h *Handler) OwnerSubmission(w http.ResponseWriter, r *http.Request) {
	var req models.OwnerSubmissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	p := principal(r)
	resp, err := h.Owner.Submit(r.Context(), owner.Submitter{ID: p.ID, Email: p.Email}, req)
	if err != nil {
		var verr *owner.ValidationError
		if errors.As(err, &verr) {
			writeMessage(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.log(r.Context()).Error("owner submission failed", "user_id", p.ID, "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
