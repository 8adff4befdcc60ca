package database

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"

	"github.com/google/uuid"
)

const commandColumns = "id, device_id, device_ref, command, executed, created_at"

func scanCommand(row scanner) (*models.Command, error) {
	var c models.Command
	if err := row.Scan(&c.ID, &c.DeviceID, &c.DeviceRef, &c.Command, &c.Executed, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCommand queues a gate command. Exactly one of DeviceID or DeviceRef
// is expected to be set.
func (db *DB) CreateCommand(ctx context.Context, c *models.Command) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO commands (id, device_id, device_ref, command, executed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.q.ExecContext(ctx, query, c.ID, c.DeviceID, c.DeviceRef, c.Command, c.Executed, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create command: %w", mapErr(err))
	}
	return nil
}

func (db *DB) GetCommand(ctx context.Context, id string) (*models.Command, error) {
	return queryOne(ctx, db.q, scanCommand,
		"SELECT "+commandColumns+" FROM commands WHERE id = ?", id)
}

// MarkCommandExecuted flags a command as executed by the device
func (db *DB) MarkCommandExecuted(ctx context.Context, id string) error {
	query := `
		UPDATE commands
		SET executed = TRUE
		WHERE id = ?
	`

	if _, err := db.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark command executed: %w", mapErr(err))
	}
	return nil
}

func (db *DB) NextCommandByRef(ctx context.Context, deviceRef string) (*models.Command, error) {
	return queryOne(ctx, db.q, scanCommand,
		"SELECT "+commandColumns+" FROM commands WHERE device_ref = ? AND executed = FALSE ORDER BY created_at DESC LIMIT 1", deviceRef)
}

func (db *DB) NextCommandByDeviceID(ctx context.Context, deviceID string) (*models.Command, error) {
	return queryOne(ctx, db.q, scanCommand,
		"SELECT "+commandColumns+" FROM commands WHERE device_id = ? AND executed = FALSE ORDER BY created_at DESC LIMIT 1", deviceID)
}

func (db *DB) ListCommands(ctx context.Context, limit int) ([]models.Command, error) {
	return queryList(ctx, db.q, scanCommand,
		"SELECT "+commandColumns+" FROM commands ORDER BY created_at DESC"+limitClause(limit))
}
