package database

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const sessionColumns = "id, user_id, slot_id, device_id, device_ref, status, entry_expiry, created_at"

// activeStatusFilter matches ACTIVE and IN_PROGRESS sessions.
const activeStatusFilter = "status IN ('" + models.SessionActive + "', '" + models.SessionInProgress + "')"

func scanSession(row scanner) (*models.ParkingSession, error) {
	var s models.ParkingSession
	if err := row.Scan(&s.ID, &s.UserID, &s.SlotID, &s.DeviceID, &s.DeviceRef, &s.Status, &s.EntryExpiry, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new parking session
func (db *DB) CreateSession(ctx context.Context, s *models.ParkingSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO parking_sessions (id, user_id, slot_id, device_id, device_ref, status, entry_expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.q.ExecContext(ctx, query, s.ID, s.UserID, s.SlotID, s.DeviceID, s.DeviceRef,
		s.Status, s.EntryExpiry, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapErr(err))
	}
	return nil
}

// GetSession retrieves a session, locking it inside a transaction
func (db *DB) GetSession(ctx context.Context, id string) (*models.ParkingSession, error) {
	return queryOne(ctx, db.q, scanSession,
		"SELECT "+sessionColumns+" FROM parking_sessions WHERE id = ?"+db.forUpdate(), id)
}

// CompleteSession marks a session COMPLETED and returns the updated row
func (db *DB) CompleteSession(ctx context.Context, id string) (*models.ParkingSession, error) {
	query := `
		UPDATE parking_sessions
		SET status = ?
		WHERE id = ?
	`

	if _, err := db.q.ExecContext(ctx, query, models.SessionCompleted, id); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", mapErr(err))
	}

	return queryOne(ctx, db.q, scanSession,
		"SELECT "+sessionColumns+" FROM parking_sessions WHERE id = ?", id)
}

func (db *DB) ListActiveUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error) {
	query := "SELECT " + sessionColumns + " FROM parking_sessions WHERE user_id = ? AND " + activeStatusFilter +
		" ORDER BY created_at DESC" + limitClause(limit) + db.forUpdate()

	return queryList(ctx, db.q, scanSession, query, userID)
}

func (db *DB) ListExpiredSessions(ctx context.Context, userID string, now time.Time, limit int) ([]models.ParkingSession, error) {
	query := "SELECT " + sessionColumns + " FROM parking_sessions WHERE " + activeStatusFilter +
		" AND entry_expiry IS NOT NULL AND entry_expiry < ?"
	args := []any{now}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC" + limitClause(limit)

	return queryList(ctx, db.q, scanSession, query, args...)
}

func (db *DB) ListActiveSessions(ctx context.Context) ([]models.ParkingSession, error) {
	return queryList(ctx, db.q, scanSession,
		"SELECT "+sessionColumns+" FROM parking_sessions WHERE "+activeStatusFilter+" ORDER BY created_at DESC")
}

func (db *DB) CountActiveSessions(ctx context.Context) (int, error) {
	var n int
	err := db.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM parking_sessions WHERE "+activeStatusFilter).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", mapErr(err))
	}
	return n, nil
}

func (db *DB) ListUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error) {
	return queryList(ctx, db.q, scanSession,
		"SELECT "+sessionColumns+" FROM parking_sessions WHERE user_id = ? ORDER BY created_at DESC"+limitClause(limit), userID)
}

func (db *DB) ListSessions(ctx context.Context, limit int) ([]models.ParkingSession, error) {
	return queryList(ctx, db.q, scanSession,
		"SELECT "+sessionColumns+" FROM parking_sessions ORDER BY created_at DESC"+limitClause(limit))
}
