package database

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const paymentColumns = "id, user_id, session_id, amount, status, order_id, payment_id, created_at"

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.SessionID, &p.Amount, &p.Status, &p.OrderID, &p.PaymentID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayment records a payment
func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payments (id, user_id, session_id, amount, status, order_id, payment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.q.ExecContext(ctx, query, p.ID, p.UserID, p.SessionID, p.Amount, p.Status,
		p.OrderID, p.PaymentID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapErr(err))
	}
	return nil
}

func (db *DB) ListUserPayments(ctx context.Context, userID string, limit int) ([]models.Payment, error) {
	return queryList(ctx, db.q, scanPayment,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id = ? ORDER BY created_at DESC"+limitClause(limit), userID)
}

func (db *DB) ListPaymentsSince(ctx context.Context, since time.Time) ([]models.Payment, error) {
	return queryList(ctx, db.q, scanPayment,
		"SELECT "+paymentColumns+" FROM payments WHERE created_at >= ? ORDER BY created_at DESC", since)
}
