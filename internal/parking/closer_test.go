package parking

import (
	"context"
	"testing"
	"time"

	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gopkg.in/guregu/null.v4"
)

func TestCloseSession_ExactlyOneClose(t *testing.T) {
	f := newFixture(t)
	sess := f.st.AddSession(models.ParkingSession{
		UserID:      "user-1",
		DeviceID:    DefaultDeviceID,
		Status:      models.SessionActive,
		EntryExpiry: null.TimeFrom(f.clock.Now()),
	})
	ctx := context.Background()

	got, closed, err := f.svc.CloseSession(ctx, sess.ID, TriggerTimer)
	assertNoErr(t, err)
	if !closed || got.Status != models.SessionCompleted {
		t.Fatalf("first close: closed=%v status=%s", closed, got.Status)
	}

	for _, trigger := range []string{TriggerTimer, TriggerSweeper} {
		_, closed, err := f.svc.CloseSession(ctx, sess.ID, trigger)
		assertNoErr(t, err)
		if closed {
			t.Errorf("%s: closed an already completed session", trigger)
		}
	}

	if n := len(f.commandsFor(models.CommandClose)); n != 1 {
		t.Errorf("got %d CLOSE commands, want 1", n)
	}
	if v := testutil.ToFloat64(f.metrics.SessionsClosed.WithLabelValues(TriggerTimer)); v != 1 {
		t.Errorf("sessions_closed{timer} = %v, want 1", v)
	}
}

func TestCloseSession_NotFound(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CloseSession(context.Background(), "missing", TriggerTimer)
	assertKind(t, err, KindNotFound)
}

func TestCloseSession_DispatchFailureKeepsSessionActive(t *testing.T) {
	f := newFixture(t)
	sess := f.st.AddSession(models.ParkingSession{UserID: "user-1", DeviceID: DefaultDeviceID, Status: models.SessionActive})
	f.st.FailCommandInserts = true

	_, _, err := f.svc.CloseSession(context.Background(), sess.ID, TriggerTimer)
	assertKind(t, err, KindUpstream)

	if got := f.session(t, sess.ID).Status; got != models.SessionActive {
		t.Errorf("status = %s, want ACTIVE after failed close", got)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.st.AddSession(models.ParkingSession{UserID: "u1", DeviceID: DefaultDeviceID, Status: models.SessionActive, EntryExpiry: null.TimeFrom(now.Add(-time.Second))})
	f.st.AddSession(models.ParkingSession{UserID: "u2", DeviceID: DefaultDeviceID, Status: models.SessionInProgress, EntryExpiry: null.TimeFrom(now.Add(-time.Hour))})
	live := f.st.AddSession(models.ParkingSession{UserID: "u3", DeviceID: DefaultDeviceID, Status: models.SessionActive, EntryExpiry: null.TimeFrom(now.Add(time.Minute))})

	n, err := f.svc.Sweep(context.Background())
	assertNoErr(t, err)
	if n != 2 {
		t.Errorf("swept %d sessions, want 2", n)
	}
	if got := f.session(t, live.ID).Status; got != models.SessionActive {
		t.Errorf("live session status = %s, want ACTIVE", got)
	}

	n, err = f.svc.Sweep(context.Background())
	assertNoErr(t, err)
	if n != 0 {
		t.Errorf("second sweep closed %d sessions, want 0", n)
	}
	if c := len(f.commandsFor(models.CommandClose)); c != 2 {
		t.Errorf("got %d CLOSE commands, want 2", c)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.st.AddSession(models.ParkingSession{UserID: "u1", DeviceID: DefaultDeviceID, Status: models.SessionActive, EntryExpiry: null.TimeFrom(f.clock.Now().Add(-time.Second))})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.commandsFor(models.CommandClose)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	if n := len(f.commandsFor(models.CommandClose)); n != 1 {
		t.Errorf("got %d CLOSE commands, want 1", n)
	}
}

func TestLocalScheduler_ClosesSessionAfterDuration(t *testing.T) {
	st := memory.New()
	device := st.AddDevice(models.Device{DeviceID: DefaultDeviceID})
	slot := st.AddSlot(models.ParkingSlot{DeviceID: DefaultDeviceID, DeviceRef: null.StringFrom(device.ID), Price: 10, IsActive: true})

	svc := NewService(st, Options{
		SessionDuration: 20 * time.Millisecond,
		Metrics:         metrics.New(prometheus.NewRegistry()),
	})
	sched, ok := svc.Scheduler().(*LocalScheduler)
	if !ok {
		t.Fatalf("default scheduler is %T, want *LocalScheduler", svc.Scheduler())
	}
	t.Cleanup(sched.Stop)

	ctx := context.Background()
	booking, _, err := svc.CreateBooking(ctx, "user-1", slot.ID)
	assertNoErr(t, err)
	res, err := svc.PayBooking(ctx, "user-1", booking.ID, "")
	assertNoErr(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		sess, err := st.GetSession(ctx, res.Session.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Status == models.SessionCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still %s after deadline", sess.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	var closes int
	for _, c := range st.Commands() {
		if c.Command == models.CommandClose && c.DeviceID.String == DefaultDeviceID {
			closes++
		}
	}
	if closes != 1 {
		t.Errorf("got %d CLOSE commands, want 1", closes)
	}
}

func TestLocalScheduler_StopCancelsPending(t *testing.T) {
	st := memory.New()
	st.AddDevice(models.Device{DeviceID: DefaultDeviceID})
	svc := NewService(st, Options{Metrics: metrics.New(prometheus.NewRegistry())})

	sched := NewLocalScheduler(svc, svc.logger)
	if err := sched.ScheduleGateClose(context.Background(), DefaultDeviceID, time.Hour); err != nil {
		t.Fatalf("ScheduleGateClose: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a pending timer")
	}

	if err := sched.ScheduleGateClose(context.Background(), DefaultDeviceID, 0); err != nil {
		t.Fatalf("ScheduleGateClose after stop: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(st.Commands()); n != 0 {
		t.Errorf("got %d commands after stop, want 0", n)
	}
}
