package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const slotColumns = "id, device_id, device_ref, slot_name, price, is_active, created_at"

func scanSlot(row scanner) (*models.ParkingSlot, error) {
	var s models.ParkingSlot
	if err := row.Scan(&s.ID, &s.DeviceID, &s.DeviceRef, &s.SlotName, &s.Price, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) GetSlot(ctx context.Context, id string) (*models.ParkingSlot, error) {
	return queryOne(ctx, db.q, scanSlot,
		"SELECT "+slotColumns+" FROM parking_slots WHERE id = ?", id)
}

// NewestActiveSlot returns the most recently created active slot, scoped to
// deviceID unless it is empty
func (db *DB) NewestActiveSlot(ctx context.Context, deviceID string) (*models.ParkingSlot, error) {
	query := "SELECT " + slotColumns + " FROM parking_slots WHERE is_active = TRUE"
	args := []any{}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	return queryOne(ctx, db.q, scanSlot, query, args...)
}

func (db *DB) ListSlots(ctx context.Context, activeOnly bool) ([]models.ParkingSlot, error) {
	query := "SELECT " + slotColumns + " FROM parking_slots"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY created_at DESC"

	return queryList(ctx, db.q, scanSlot, query)
}

func (db *DB) ListSlotsByIDs(ctx context.Context, ids []string) ([]models.ParkingSlot, error) {
	if len(ids) == 0 {
		return []models.ParkingSlot{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM parking_slots WHERE id IN (%s) ORDER BY created_at DESC",
		slotColumns, placeholders(len(ids)))

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return queryList(ctx, db.q, scanSlot, query, args...)
}

func (db *DB) CountSlots(ctx context.Context, activeOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM parking_slots"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}

	var n int
	if err := db.q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", mapErr(err))
	}
	return n, nil
}

// CreateSlot inserts a new parking slot
func (db *DB) CreateSlot(ctx context.Context, slot *models.ParkingSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO parking_slots (id, device_id, device_ref, slot_name, price, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.q.ExecContext(ctx, query, slot.ID, slot.DeviceID, slot.DeviceRef,
		slot.SlotName, slot.Price, slot.IsActive, slot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", mapErr(err))
	}
	return nil
}

// UpdateSlot applies a partial update and returns the resulting row
func (db *DB) UpdateSlot(ctx context.Context, id string, patch models.SlotPatch) (*models.ParkingSlot, error) {
	var sets []string
	var args []any

	if patch.SlotName != nil {
		sets = append(sets, "slot_name = ?")
		args = append(args, *patch.SlotName)
	}
	if patch.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *patch.Price)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.DeviceID != nil {
		sets = append(sets, "device_id = ?")
		args = append(args, *patch.DeviceID)
	}
	if patch.DeviceRef != nil {
		sets = append(sets, "device_ref = ?")
		args = append(args, *patch.DeviceRef)
	}

	if len(sets) > 0 {
		query := fmt.Sprintf("UPDATE parking_slots SET %s WHERE id = ?", strings.Join(sets, ", "))
		args = append(args, id)
		if _, err := db.q.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to update slot: %w", mapErr(err))
		}
	}

	return db.GetSlot(ctx, id)
}
