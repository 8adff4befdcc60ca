package models

import (
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

// Booking statuses
const (
	BookingPendingPayment = "PENDING_PAYMENT"
	BookingPaid           = "PAID"
	BookingCompleted      = "COMPLETED"
	BookingCancelled      = "CANCELLED"
)

// Session statuses
const (
	SessionActive     = "ACTIVE"
	SessionInProgress = "IN_PROGRESS"
	SessionCompleted  = "COMPLETED"
)

// Device statuses
const (
	DeviceOnline  = "ONLINE"
	DeviceOffline = "OFFLINE"
)

// Gate commands
const (
	CommandOpen  = "OPEN"
	CommandClose = "CLOSE"
)

const PaymentSuccess = "SUCCESS"

// ActiveSessionStatuses are the statuses that count as occupying a slot.
var ActiveSessionStatuses = []string{SessionActive, SessionInProgress}

// BookingStatuses is every status an admin may set on a booking.
var BookingStatuses = []string{BookingPendingPayment, BookingPaid, BookingCompleted, BookingCancelled}

// NormalizeStatus upper-cases and trims a status value.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func IsActiveSessionStatus(s string) bool {
	s = NormalizeStatus(s)
	return s == SessionActive || s == SessionInProgress
}

// Device is a physical gate controller.
type Device struct {
	ID        string    `json:"id" db:"id"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	Status    string    `json:"status" db:"status"`
	LastSeen  null.Time `json:"last_seen" db:"last_seen"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ParkingSlot is a bookable space behind one gate device.
type ParkingSlot struct {
	ID        string      `json:"id" db:"id"`
	DeviceID  string      `json:"device_id" db:"device_id"`
	DeviceRef null.String `json:"device_ref" db:"device_ref"`
	SlotName  string      `json:"slot_name" db:"slot_name"`
	Price     float64     `json:"price" db:"price"`
	IsActive  bool        `json:"is_active" db:"is_active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

type Booking struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	Amount    float64   `json:"amount" db:"amount"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ParkingSession struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	SlotID      string      `json:"slot_id" db:"slot_id"`
	DeviceID    string      `json:"device_id" db:"device_id"`
	DeviceRef   null.String `json:"device_ref" db:"device_ref"`
	Status      string      `json:"status" db:"status"`
	EntryExpiry null.Time   `json:"entry_expiry" db:"entry_expiry"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

type Payment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Amount    float64   `json:"amount" db:"amount"`
	Status    string    `json:"status" db:"status"`
	OrderID   string    `json:"order_id" db:"order_id"`
	PaymentID string    `json:"payment_id" db:"payment_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Command is a gate instruction. Exactly one of DeviceID (legacy string
// key) or DeviceRef (devices.id) addresses the device.
type Command struct {
	ID        string      `json:"id" db:"id"`
	DeviceID  null.String `json:"device_id" db:"device_id"`
	DeviceRef null.String `json:"device_ref" db:"device_ref"`
	Command   string      `json:"command" db:"command"`
	Executed  bool        `json:"executed" db:"executed"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Profile is the application-side user row.
type Profile struct {
	ID          string      `json:"id" db:"id"`
	FullName    null.String `json:"full_name" db:"full_name"`
	Email       null.String `json:"email" db:"email"`
	Role        null.String `json:"role" db:"role"`
	AccountType null.String `json:"account_type" db:"account_type"`
	IsAdmin     bool        `json:"is_admin" db:"is_admin"`
}

// SlotPatch is a partial slot update; nil fields are left untouched.
type SlotPatch struct {
	SlotName  *string
	Price     *float64
	IsActive  *bool
	DeviceID  *string
	DeviceRef *string
}

func (p SlotPatch) Empty() bool {
	return p.SlotName == nil && p.Price == nil && p.IsActive == nil && p.DeviceID == nil && p.DeviceRef == nil
}

// SessionCloseInput is the input of the session close workflow.
type SessionCloseInput struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GateCloseInput is the input of the gate auto-close workflow.
type GateCloseInput struct {
	DeviceID string        `json:"device_id"`
	Delay    time.Duration `json:"delay"`
}

// Event types
const (
	EventBookingCreated      = "booking.created"
	EventBookingPaid         = "booking.paid"
	EventSessionStarted      = "session.started"
	EventSessionCompleted    = "session.completed"
	EventCommandQueued       = "command.queued"
	EventCommandAcknowledged = "command.acknowledged"
)

// Event is a lifecycle notification published after a state change commits.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     string    `json:"user_id,omitempty"`
	BookingID  string    `json:"booking_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	CommandID  string    `json:"command_id,omitempty"`
	Command    string    `json:"command,omitempty"`
}
