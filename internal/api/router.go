package api

import (
	"net/http"

	"zlot-parking/internal/config"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	CORS      config.CORSPolicy
	RateLimit float64
	RateBurst int
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter wires every route. CORS and request logging wrap the router so
// that preflight and unmatched requests pass through them too.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)

	// Apply middleware
	if h.Metrics != nil {
		r.Use(MetricsMiddleware(h.Metrics))
	}
	r.Use(JSONMiddleware)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Health and metrics
	r.HandleFunc("/", h.Root).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Booking routes
	r.HandleFunc("/booking/slots", h.ListSlots).Methods("GET")
	r.HandleFunc("/booking/history", h.requireUser(h.History)).Methods("GET")
	r.HandleFunc("/booking/create", h.requireUser(h.CreateBooking)).Methods("POST")
	r.HandleFunc("/booking/pay", h.requireUser(h.PayBooking)).Methods("POST")
	r.HandleFunc("/session/start", h.requireUser(h.StartSession)).Methods("POST")

	// Gate and device routes
	limiter := NewClientLimiter(opts.RateLimit, opts.RateBurst)

	gate := r.PathPrefix("/gate").Subrouter()
	gate.Use(limiter.Middleware)
	gate.HandleFunc("/open", h.OpenGate).Methods("POST")
	gate.HandleFunc("/close", h.CloseGate).Methods("POST")

	device := r.PathPrefix("/device").Subrouter()
	device.Use(limiter.Middleware)
	device.HandleFunc("/poll", h.Poll).Methods("POST")
	device.HandleFunc("/ack", h.Ack).Methods("POST")

	// Admin routes
	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/me", h.requireAdmin(h.AdminMe)).Methods("GET")
	admin.HandleFunc("/overview", h.requireAdmin(h.Overview)).Methods("GET")
	admin.HandleFunc("/slots", h.requireAdmin(h.AdminSlots)).Methods("GET")
	admin.HandleFunc("/slots", h.requireAdmin(h.CreateSlot)).Methods("POST")
	admin.HandleFunc("/slots/{slotId}", h.requireAdmin(h.UpdateSlot)).Methods("PATCH")
	admin.HandleFunc("/devices", h.requireAdmin(h.AdminDevices)).Methods("GET")
	admin.HandleFunc("/devices/{deviceId}/open", h.requireAdmin(h.QueueOpen)).Methods("POST")
	admin.HandleFunc("/devices/{deviceId}/close", h.requireAdmin(h.QueueClose)).Methods("POST")
	admin.HandleFunc("/bookings", h.requireAdmin(h.AdminBookings)).Methods("GET")
	admin.HandleFunc("/bookings/{bookingId}/status", h.requireAdmin(h.SetBookingStatus)).Methods("PATCH")
	admin.HandleFunc("/sessions", h.requireAdmin(h.AdminSessions)).Methods("GET")
	admin.HandleFunc("/sessions/{sessionId}/force-close", h.requireAdmin(h.ForceCloseSession)).Methods("POST")

	// Owner routes
	r.HandleFunc("/owner/submission", h.requireUser(h.OwnerSubmission)).Methods("POST")

	var handler http.Handler = r
	handler = LoggingMiddleware(h.Logger)(handler)
	handler = CORSMiddleware(opts.CORS)(handler)
	return handler
}
