package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BookingsCreated.Inc()
	m.GateCommands.WithLabelValues("OPEN", "device_id").Inc()
	m.GateCommands.WithLabelValues("OPEN", "device_id").Inc()
	m.SessionsClosed.WithLabelValues("sweeper").Inc()

	if got := testutil.ToFloat64(m.BookingsCreated); got != 1 {
		t.Errorf("bookings created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GateCommands.WithLabelValues("OPEN", "device_id")); got != 2 {
		t.Errorf("gate commands = %v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"zlot_bookings_created_total", "zlot_gate_commands_total", "zlot_sessions_closed_total"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Two instances must not collide when each has its own registry.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
