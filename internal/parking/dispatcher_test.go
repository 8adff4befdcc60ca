package parking

import (
	"context"
	"testing"

	"zlot-parking/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDispatchCommand(t *testing.T) {
	tests := []struct {
		name         string
		deviceID     string
		rejectLegacy bool
		failInserts  bool
		wantPath     string
		wantKind     Kind
	}{
		{name: "device id path", deviceID: DefaultDeviceID, wantPath: PathDeviceID},
		{name: "falls back to device ref", deviceID: DefaultDeviceID, rejectLegacy: true, wantPath: PathDeviceRef},
		{name: "unknown device after primary failure", deviceID: "GATE_404", rejectLegacy: true, wantKind: KindInternal},
		{name: "both inserts fail", deviceID: DefaultDeviceID, failInserts: true, wantKind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.st.RejectLegacyCommands = tt.rejectLegacy
			f.st.FailCommandInserts = tt.failInserts

			cmd, err := f.svc.DispatchCommand(context.Background(), models.CommandOpen, tt.deviceID)
			if tt.wantPath == "" {
				assertKind(t, err, tt.wantKind)
				if n := len(f.st.Commands()); n != 0 {
					t.Errorf("got %d commands, want 0", n)
				}
				return
			}
			assertNoErr(t, err)

			switch tt.wantPath {
			case PathDeviceID:
				if cmd.DeviceID.String != tt.deviceID || cmd.DeviceRef.Valid {
					t.Errorf("command not keyed by device id: %+v", cmd)
				}
			case PathDeviceRef:
				if cmd.DeviceRef.String != f.device.ID || cmd.DeviceID.Valid {
					t.Errorf("command not keyed by device ref: %+v", cmd)
				}
			}
			if n := len(f.st.Commands()); n != 1 {
				t.Errorf("got %d commands, want exactly 1", n)
			}
			if v := testutil.ToFloat64(f.metrics.GateCommands.WithLabelValues(models.CommandOpen, tt.wantPath)); v != 1 {
				t.Errorf("gate_commands{OPEN,%s} = %v, want 1", tt.wantPath, v)
			}
		})
	}
}

func TestOpenGate_ArmsAutoClose(t *testing.T) {
	f := newFixture(t)

	deviceID, err := f.svc.OpenGate(context.Background(), "")
	assertNoErr(t, err)

	if deviceID != DefaultDeviceID {
		t.Errorf("device = %s, want default %s", deviceID, DefaultDeviceID)
	}
	if len(f.sched.gates) != 1 {
		t.Fatalf("expected one gate close to be armed, got %d", len(f.sched.gates))
	}
	if g := f.sched.gates[0]; g.deviceID != DefaultDeviceID || g.after != DefaultSessionDuration {
		t.Errorf("armed %+v, want %s after %v", g, DefaultDeviceID, DefaultSessionDuration)
	}
}

func TestOpenGate_SchedulerFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.sched.err = context.DeadlineExceeded

	if _, err := f.svc.OpenGate(context.Background(), DefaultDeviceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.commandsFor(models.CommandOpen)); n != 1 {
		t.Errorf("got %d OPEN commands, want 1", n)
	}
}

func TestCloseGate_DoesNotArm(t *testing.T) {
	f := newFixture(t)

	deviceID, err := f.svc.CloseGate(context.Background(), " GATE_001 ")
	assertNoErr(t, err)
	if deviceID != DefaultDeviceID {
		t.Errorf("device = %q, want trimmed %s", deviceID, DefaultDeviceID)
	}
	if len(f.sched.gates) != 0 {
		t.Errorf("close must not arm a timer")
	}
	if n := len(f.commandsFor(models.CommandClose)); n != 1 {
		t.Errorf("got %d CLOSE commands, want 1", n)
	}
}
