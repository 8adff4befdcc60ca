package parking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"zlot-parking/internal/models"
)

// closeTimeout bounds a single timer-driven close.
const closeTimeout = 30 * time.Second

// LocalScheduler arms delayed closes on in-process timers. Pending timers
// are lost on restart; the sweeper picks up the sessions they would have
// closed. Gate-only auto closes are not recovered.
type LocalScheduler struct {
	svc    *Service
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
	wg      sync.WaitGroup
}

func NewLocalScheduler(svc *Service, logger *slog.Logger) *LocalScheduler {
	return &LocalScheduler{
		svc:    svc,
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

func (l *LocalScheduler) ScheduleSessionClose(ctx context.Context, sessionID string, at time.Time) error {
	l.after(time.Until(at), func(ctx context.Context) {
		if _, _, err := l.svc.CloseSession(ctx, sessionID, TriggerTimer); err != nil {
			l.logger.Error("failed to auto-complete session", "session_id", sessionID, "error", err)
		}
	})
	return nil
}

func (l *LocalScheduler) ScheduleGateClose(ctx context.Context, deviceID string, after time.Duration) error {
	l.after(after, func(ctx context.Context) {
		if _, err := l.svc.DispatchCommand(ctx, models.CommandClose, deviceID); err != nil {
			l.logger.Error("failed to auto-close gate", "device_id", deviceID, "error", err)
		}
	})
	return nil
}

func (l *LocalScheduler) after(d time.Duration, fn func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}

	l.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer l.wg.Done()

		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		fn(ctx)
	})
	l.timers[t] = struct{}{}
}

// Stop cancels pending timers and waits for running callbacks to return.
func (l *LocalScheduler) Stop() {
	l.mu.Lock()
	l.stopped = true
	for t := range l.timers {
		if t.Stop() {
			l.wg.Done()
		}
		delete(l.timers, t)
	}
	l.mu.Unlock()

	l.wg.Wait()
}
