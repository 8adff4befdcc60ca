package database

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = "id, user_id, device_id, amount, status, created_at"

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.DeviceID, &b.Amount, &b.Status, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBooking inserts a new booking
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO bookings (id, user_id, device_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.q.ExecContext(ctx, query, b.ID, b.UserID, b.DeviceID, b.Amount, b.Status, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapErr(err))
	}
	return nil
}

// GetUserBooking retrieves a booking owned by userID, locking it inside a transaction
func (db *DB) GetUserBooking(ctx context.Context, id, userID string) (*models.Booking, error) {
	return queryOne(ctx, db.q, scanBooking,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ? AND user_id = ?"+db.forUpdate(), id, userID)
}

// UpdateBookingStatus updates a booking's status
func (db *DB) UpdateBookingStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = ?
		WHERE id = ?
	`

	if _, err := db.q.ExecContext(ctx, query, status, id); err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", mapErr(err))
	}

	return queryOne(ctx, db.q, scanBooking,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
}

func (db *DB) ListUserBookings(ctx context.Context, userID string, limit int) ([]models.Booking, error) {
	return queryList(ctx, db.q, scanBooking,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? ORDER BY created_at DESC"+limitClause(limit), userID)
}

func (db *DB) ListBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	return queryList(ctx, db.q, scanBooking,
		"SELECT "+bookingColumns+" FROM bookings ORDER BY created_at DESC"+limitClause(limit))
}
