package parking

import (
	"context"
	"errors"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// Close triggers, used as metric labels.
const (
	TriggerTimer      = "timer"
	TriggerSweeper    = "sweeper"
	TriggerGuard      = "guard"
	TriggerForceClose = "force_close"
)

// sweepBatch bounds how many expired sessions one sweep closes.
const sweepBatch = 100

// CloseSession ends an active session: it queues CLOSE for the session's
// device and marks it COMPLETED in one transaction. A session that is no
// longer active is left alone and no command is sent, so any number of
// triggers produce a single CLOSE.
func (s *Service) CloseSession(ctx context.Context, sessionID, trigger string) (*models.ParkingSession, bool, error) {
	ctx, span := s.tracer.Start(ctx, "parking.close_session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("trigger", trigger))

	eff := &effects{}
	var (
		sess   *models.ParkingSession
		closed bool
	)
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		var err error
		sess, err = s.closeLocked(ctx, tx, sessionID, trigger, eff)
		closed = len(eff.closed) > 0
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	s.flush(ctx, eff)
	return sess, closed, nil
}

// closeLocked runs the close inside tx. It returns the session as it is
// after the call.
func (s *Service) closeLocked(ctx context.Context, tx store.Store, sessionID, trigger string, eff *effects) (*models.ParkingSession, error) {
	sess, err := tx.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Session not found.")
	}
	if err != nil {
		return nil, internal("Unable to load session.", err)
	}
	if !models.IsActiveSessionStatus(sess.Status) {
		return sess, nil
	}

	if _, err := s.dispatch(ctx, tx, models.CommandClose, s.deviceOr(sess.DeviceID), eff); err != nil {
		if trigger != TriggerGuard || KindOf(err) != KindUpstream {
			return nil, err
		}
		// A stale session must not block the user's next booking because
		// its gate is unreachable.
		s.log(ctx).Warn("closing expired session without CLOSE command",
			"session_id", sess.ID, "device_id", sess.DeviceID, "error", err)
	}

	done, err := tx.CompleteSession(ctx, sess.ID)
	if err != nil {
		return nil, internal("Unable to complete session.", err)
	}
	eff.completed(done, trigger)
	return done, nil
}

// Sweep closes every active session whose expiry has passed. Failures are
// logged and the session is retried on the next sweep.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredSessions(ctx, "", s.now(), sweepBatch)
	if err != nil {
		return 0, internal("Unable to list expired sessions.", err)
	}

	n := 0
	for _, sess := range expired {
		_, closed, err := s.CloseSession(ctx, sess.ID, TriggerSweeper)
		if err != nil {
			s.log(ctx).Error("sweeper failed to close session", "session_id", sess.ID, "error", err)
			continue
		}
		if closed {
			n++
		}
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log(ctx).Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log(ctx).Info("closed expired sessions", "count", n)
			}
		}
	}
}
