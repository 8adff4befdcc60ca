// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec

	BookingsCreated prometheus.Counter
	Payments        prometheus.Counter
	SessionsStarted *prometheus.CounterVec
	SessionsClosed  *prometheus.CounterVec
	GuardConflicts  prometheus.Counter

	// GateCommands is labelled by command and by the addressing path
	// the insert took (device_id or device_ref).
	GateCommands *prometheus.CounterVec
	DevicePolls  *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zlot_http_request_duration_seconds",
				Help:    "HTTP request latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "zlot_bookings_created_total",
			Help: "Bookings created in PENDING_PAYMENT",
		}),
		Payments: f.NewCounter(prometheus.CounterOpts{
			Name: "zlot_payments_total",
			Help: "Successful booking payments",
		}),
		SessionsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zlot_sessions_started_total",
				Help: "Parking sessions started, by source",
			},
			[]string{"source"},
		),
		SessionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zlot_sessions_closed_total",
				Help: "Parking sessions completed, by trigger",
			},
			[]string{"trigger"},
		),
		GuardConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "zlot_guard_conflicts_total",
			Help: "Requests rejected because the user already had a live session",
		}),
		GateCommands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zlot_gate_commands_total",
				Help: "Gate commands queued",
			},
			[]string{"command", "path"},
		),
		DevicePolls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zlot_device_polls_total",
				Help: "Device polls by result",
			},
			[]string{"result"},
		),
	}
}
