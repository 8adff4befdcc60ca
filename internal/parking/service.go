// Package parking implements the booking, session and gate command
// lifecycle on top of a transactional store.
package parking

import (
	"context"
	"log/slog"
	"time"

	"zlot-parking/internal/logger"
	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultSessionDuration = 30 * time.Second
	DefaultOnlineWindow    = 180 * time.Second
	DefaultDeviceID        = "GATE_001"

	// guardWindow caps how many active sessions the guard inspects.
	guardWindow = 10
)

// Publisher receives lifecycle events after the state change commits.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// CloseScheduler arms the delayed close that follows a gate opening.
type CloseScheduler interface {
	ScheduleSessionClose(ctx context.Context, sessionID string, at time.Time) error
	ScheduleGateClose(ctx context.Context, deviceID string, after time.Duration) error
}

type Options struct {
	DefaultDeviceID string
	SessionDuration time.Duration
	OnlineWindow    time.Duration

	// Scheduler defaults to an in-process timer scheduler.
	Scheduler CloseScheduler
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type Service struct {
	store     store.Store
	scheduler CloseScheduler
	events    Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	defaultDeviceID string
	sessionDuration time.Duration
	onlineWindow    time.Duration
	now             func() time.Time
}

func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:           st,
		scheduler:       opts.Scheduler,
		events:          opts.Publisher,
		metrics:         opts.Metrics,
		tracer:          otel.Tracer("zlot-parking/parking"),
		logger:          opts.Logger,
		defaultDeviceID: opts.DefaultDeviceID,
		sessionDuration: opts.SessionDuration,
		onlineWindow:    opts.OnlineWindow,
		now:             opts.Now,
	}

	if s.defaultDeviceID == "" {
		s.defaultDeviceID = DefaultDeviceID
	}
	if s.sessionDuration <= 0 {
		s.sessionDuration = DefaultSessionDuration
	}
	if s.onlineWindow <= 0 {
		s.onlineWindow = DefaultOnlineWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.scheduler == nil {
		s.scheduler = NewLocalScheduler(s, s.logger)
	}
	return s
}

func (s *Service) DefaultDeviceID() string { return s.defaultDeviceID }

func (s *Service) SessionDuration() time.Duration { return s.sessionDuration }

// Scheduler returns the scheduler used to arm delayed closes.
func (s *Service) Scheduler() CloseScheduler { return s.scheduler }

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.logger)
}

func (s *Service) deviceOr(ids ...string) string {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return s.defaultDeviceID
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Event) error { return nil }

// effects collects what a transaction did so that metrics and events are
// emitted only after it commits.
type effects struct {
	commands []queuedCommand
	closed   []closedSession
	events   []models.Event
}

type queuedCommand struct {
	cmd      *models.Command
	deviceID string
	path     string
}

type closedSession struct {
	session *models.ParkingSession
	trigger string
}

func (e *effects) queued(cmd *models.Command, deviceID, path string) {
	e.commands = append(e.commands, queuedCommand{cmd: cmd, deviceID: deviceID, path: path})
}

func (e *effects) completed(sess *models.ParkingSession, trigger string) {
	e.closed = append(e.closed, closedSession{session: sess, trigger: trigger})
}

func (e *effects) emit(ev models.Event) {
	e.events = append(e.events, ev)
}

// flush records metrics and publishes events for a committed transaction.
// Publish failures are logged only.
func (s *Service) flush(ctx context.Context, eff *effects) {
	now := s.now().UTC()
	var evs []models.Event

	for _, c := range eff.closed {
		s.metrics.SessionsClosed.WithLabelValues(c.trigger).Inc()
		evs = append(evs, models.Event{
			Type:      models.EventSessionCompleted,
			UserID:    c.session.UserID,
			SessionID: c.session.ID,
			DeviceID:  c.session.DeviceID,
		})
	}
	for _, q := range eff.commands {
		s.metrics.GateCommands.WithLabelValues(q.cmd.Command, q.path).Inc()
		evs = append(evs, models.Event{
			Type:      models.EventCommandQueued,
			DeviceID:  q.deviceID,
			CommandID: q.cmd.ID,
			Command:   q.cmd.Command,
		})
	}
	evs = append(evs, eff.events...)

	for _, ev := range evs {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = now
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log(ctx).Warn("failed to publish event", "type", ev.Type, "error", err)
		}
	}
}
