package database

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"
)

const deviceColumns = "id, device_id, status, last_seen, created_at"

func scanDevice(row scanner) (*models.Device, error) {
	var d models.Device
	if err := row.Scan(&d.ID, &d.DeviceID, &d.Status, &d.LastSeen, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice retrieves a device by its primary key
func (db *DB) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return queryOne(ctx, db.q, scanDevice,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
}

// GetDeviceByDeviceID retrieves a device by its string key
func (db *DB) GetDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	return queryOne(ctx, db.q, scanDevice,
		"SELECT "+deviceColumns+" FROM devices WHERE device_id = ?", deviceID)
}

func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	return queryList(ctx, db.q, scanDevice,
		"SELECT "+deviceColumns+" FROM devices ORDER BY created_at DESC")
}

// TouchDevice records a heartbeat for the device with the given primary key
func (db *DB) TouchDevice(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?
		WHERE id = ?
	`

	if _, err := db.q.ExecContext(ctx, query, models.DeviceOnline, at, id); err != nil {
		return fmt.Errorf("failed to update device heartbeat: %w", mapErr(err))
	}
	return nil
}

// TouchDeviceByDeviceID records a heartbeat for the device with the given string key
func (db *DB) TouchDeviceByDeviceID(ctx context.Context, deviceID string, at time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?
		WHERE device_id = ?
	`

	if _, err := db.q.ExecContext(ctx, query, models.DeviceOnline, at, deviceID); err != nil {
		return fmt.Errorf("failed to update device heartbeat: %w", mapErr(err))
	}
	return nil
}
