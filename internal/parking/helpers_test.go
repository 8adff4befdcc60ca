package parking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/guregu/null.v4"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type scheduledClose struct {
	sessionID string
	deviceID  string
	at        time.Time
	after     time.Duration
}

type recordingScheduler struct {
	mu       sync.Mutex
	sessions []scheduledClose
	gates    []scheduledClose
	err      error
}

func (r *recordingScheduler) ScheduleSessionClose(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, scheduledClose{sessionID: sessionID, at: at})
	return r.err
}

func (r *recordingScheduler) ScheduleGateClose(_ context.Context, deviceID string, after time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates = append(r.gates, scheduledClose{deviceID: deviceID, after: after})
	return r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	st      *memory.Store
	svc     *Service
	clock   *fakeClock
	sched   *recordingScheduler
	events  *recordingPublisher
	metrics *metrics.Metrics
	device  models.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		st:      memory.New(),
		clock:   &fakeClock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)},
		sched:   &recordingScheduler{},
		events:  &recordingPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.device = f.st.AddDevice(models.Device{DeviceID: DefaultDeviceID})
	f.svc = NewService(f.st, Options{
		Scheduler: f.sched,
		Publisher: f.events,
		Metrics:   f.metrics,
		Now:       f.clock.Now,
	})
	return f
}

func (f *fixture) addSlot(name string, price float64) models.ParkingSlot {
	return f.st.AddSlot(models.ParkingSlot{
		DeviceID:  f.device.DeviceID,
		DeviceRef: null.StringFrom(f.device.ID),
		SlotName:  name,
		Price:     price,
		IsActive:  true,
	})
}

func (f *fixture) commandsFor(command string) []models.Command {
	var out []models.Command
	for _, c := range f.st.Commands() {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

func (f *fixture) session(t *testing.T, id string) models.ParkingSession {
	t.Helper()
	for _, s := range f.st.Sessions() {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("session %s not found", id)
	return models.ParkingSession{}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("got kind %s (%v), want %s", got, err, want)
	}
}

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			t.Fatalf("unexpected %s error: %v", perr.Kind, err)
		}
		t.Fatalf("unexpected error: %v", err)
	}
}
