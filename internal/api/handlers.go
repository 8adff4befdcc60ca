package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"zlot-parking/internal/auth"
	"zlot-parking/internal/logger"
	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/owner"
	"zlot-parking/internal/parking"
)

const msgInvalidBody = "Invalid JSON request body."

type Handler struct {
	Parking *parking.Service
	Auth    *auth.Gate
	Owner   *owner.Service
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewHandler(svc *parking.Service, gate *auth.Gate, ownerSvc *owner.Service, m *metrics.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Parking: svc,
		Auth:    gate,
		Owner:   ownerSvc,
		Metrics: m,
		Logger:  log,
	}
}

// Root answers the bare liveness probe used by the frontend.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "ZLOT backend is running."})
}

// Health check endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "healthy"})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Route not found."})
}

func (h *Handler) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, h.Logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func statusFor(kind parking.Kind) int {
	switch kind {
	case parking.KindUnauthorized:
		return http.StatusUnauthorized
	case parking.KindForbidden:
		return http.StatusForbidden
	case parking.KindNotFound:
		return http.StatusNotFound
	case parking.KindInvalidState, parking.KindValidation:
		return http.StatusBadRequest
	case parking.KindConflict:
		return http.StatusConflict
	case parking.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain failure to its status and error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(parking.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.log(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	body := models.ErrorResponse{Error: parking.MessageOf(err)}
	var perr *parking.Error
	if errors.As(err, &perr) {
		body.ActiveSessionID = perr.ActiveSessionID
	}
	writeJSON(w, status, body)
}
