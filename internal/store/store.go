// Package store defines the persistence contract shared by the MySQL store
// and the in-memory store.
package store

import (
	"context"
	"errors"
	"time"

	"zlot-parking/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports that a concurrent transaction won a lock race.
	ErrConflict = errors.New("conflicting concurrent update")
)

// Create methods assign an ID and CreatedAt when the caller left them empty.
// List methods return rows newest first.

type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	GetDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	// TouchDevice marks the device ONLINE and sets last_seen.
	TouchDevice(ctx context.Context, id string, at time.Time) error
	TouchDeviceByDeviceID(ctx context.Context, deviceID string, at time.Time) error
}

type SlotStore interface {
	GetSlot(ctx context.Context, id string) (*models.ParkingSlot, error)
	// NewestActiveSlot returns the most recently created active slot for
	// deviceID, or across all devices when deviceID is empty.
	NewestActiveSlot(ctx context.Context, deviceID string) (*models.ParkingSlot, error)
	ListSlots(ctx context.Context, activeOnly bool) ([]models.ParkingSlot, error)
	ListSlotsByIDs(ctx context.Context, ids []string) ([]models.ParkingSlot, error)
	CountSlots(ctx context.Context, activeOnly bool) (int, error)
	CreateSlot(ctx context.Context, slot *models.ParkingSlot) error
	UpdateSlot(ctx context.Context, id string, patch models.SlotPatch) (*models.ParkingSlot, error)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	// GetUserBooking locks the row when called inside a transaction.
	GetUserBooking(ctx context.Context, id, userID string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id, status string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string, limit int) ([]models.Booking, error)
	ListBookings(ctx context.Context, limit int) ([]models.Booking, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *models.ParkingSession) error
	// GetSession locks the row when called inside a transaction.
	GetSession(ctx context.Context, id string) (*models.ParkingSession, error)
	CompleteSession(ctx context.Context, id string) (*models.ParkingSession, error)
	// ListActiveUserSessions returns the user's ACTIVE/IN_PROGRESS sessions
	// and locks them (and the index gap) inside a transaction. A limit <= 0
	// means no limit.
	ListActiveUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error)
	// ListExpiredSessions returns ACTIVE/IN_PROGRESS sessions whose
	// entry_expiry is before now, for one user or for everyone when userID
	// is empty.
	ListExpiredSessions(ctx context.Context, userID string, now time.Time, limit int) ([]models.ParkingSession, error)
	ListActiveSessions(ctx context.Context) ([]models.ParkingSession, error)
	CountActiveSessions(ctx context.Context) (int, error)
	ListUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error)
	ListSessions(ctx context.Context, limit int) ([]models.ParkingSession, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	ListUserPayments(ctx context.Context, userID string, limit int) ([]models.Payment, error)
	ListPaymentsSince(ctx context.Context, since time.Time) ([]models.Payment, error)
}

type CommandStore interface {
	CreateCommand(ctx context.Context, c *models.Command) error
	GetCommand(ctx context.Context, id string) (*models.Command, error)
	MarkCommandExecuted(ctx context.Context, id string) error
	// NextCommandByRef and NextCommandByDeviceID return the newest
	// unexecuted command for the device, or ErrNotFound.
	NextCommandByRef(ctx context.Context, deviceRef string) (*models.Command, error)
	NextCommandByDeviceID(ctx context.Context, deviceID string) (*models.Command, error)
	ListCommands(ctx context.Context, limit int) ([]models.Command, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

// Store is the full persistence surface. WithinTx runs fn against a
// transactional view; a nested call joins the outer transaction.
type Store interface {
	DeviceStore
	SlotStore
	BookingStore
	SessionStore
	PaymentStore
	CommandStore
	ProfileStore

	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
