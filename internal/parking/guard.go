package parking

import (
	"context"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"
)

const msgActiveSession = "User already has an active parking session."

// ensureNoConflictingSession closes the user's expired sessions, then
// fails with a Conflict if a live one remains. Inside a transaction the
// active-session scan locks the user's rows so a concurrent attempt waits
// for this one to commit.
func (s *Service) ensureNoConflictingSession(ctx context.Context, tx store.Store, userID string, eff *effects) error {
	now := s.now()

	expired, err := tx.ListExpiredSessions(ctx, userID, now, 0)
	if err != nil {
		return internal("Unable to check active sessions.", err)
	}
	for i := range expired {
		if _, err := s.closeLocked(ctx, tx, expired[i].ID, TriggerGuard, eff); err != nil {
			return err
		}
	}

	active, err := tx.ListActiveUserSessions(ctx, userID, guardWindow)
	if err != nil {
		return internal("Unable to check active sessions.", err)
	}
	for _, sess := range active {
		if isLive(sess, now) {
			s.metrics.GuardConflicts.Inc()
			return &Error{
				Kind:            KindConflict,
				Message:         msgActiveSession,
				ActiveSessionID: sess.ID,
			}
		}
	}
	return nil
}

// isLive treats a session without a usable expiry as live. A session
// expiring exactly at now is not yet swept, so it still counts.
func isLive(sess models.ParkingSession, now time.Time) bool {
	if !sess.EntryExpiry.Valid || sess.EntryExpiry.Time.IsZero() {
		return true
	}
	return !sess.EntryExpiry.Time.Before(now)
}
