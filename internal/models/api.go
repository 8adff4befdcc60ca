package models

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// API Request/Response models

type CreateBookingRequest struct {
	UserID string `json:"user_id"`
	SlotID string `json:"slot_id"`
}

type CreateBookingResponse struct {
	Booking *Booking     `json:"booking"`
	Slot    *ParkingSlot `json:"slot"`
}

type PayBookingRequest struct {
	BookingID string `json:"booking_id"`
	SlotID    string `json:"slot_id"`
}

type PayBookingResponse struct {
	Message string          `json:"message"`
	Session *ParkingSession `json:"session"`
	Payment *Payment        `json:"payment"`
	Slot    *ParkingSlot    `json:"slot"`
}

type StartSessionRequest struct {
	UserID string `json:"user_id"`
	SlotID string `json:"slot_id"`
}

type StartSessionResponse struct {
	Message string          `json:"message"`
	Session *ParkingSession `json:"session"`
	Slot    *ParkingSlot    `json:"slot"`
}

type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

type DeviceMessageResponse struct {
	Message  string `json:"message"`
	DeviceID string `json:"device_id"`
}

type AckRequest struct {
	CommandID string `json:"command_id"`
}

type AckResponse struct {
	Message   string `json:"message"`
	CommandID string `json:"command_id"`
}

// SlotWithDevice is a public slot listing row.
type SlotWithDevice struct {
	ParkingSlot
	DeviceStatus   null.String `json:"device_status"`
	DeviceLastSeen null.Time   `json:"device_last_seen"`
}

type SlotsResponse struct {
	Slots []SlotWithDevice `json:"slots"`
}

type SlotSummary struct {
	ID       string `json:"id"`
	SlotName string `json:"slot_name"`
	DeviceID string `json:"device_id"`
}

type HistoryResponse struct {
	Bookings []Booking        `json:"bookings"`
	Sessions []ParkingSession `json:"sessions"`
	Payments []Payment        `json:"payments"`
	Slots    []SlotSummary    `json:"slots"`
}

type ErrorResponse struct {
	Error           string `json:"error"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
}

// Admin views

type AdminMeResponse struct {
	User    AdminUser     `json:"user"`
	Profile *AdminProfile `json:"profile"`
	Admin   bool          `json:"admin"`
}

type AdminUser struct {
	ID    string      `json:"id"`
	Email null.String `json:"email"`
}

type AdminProfile struct {
	ID       string      `json:"id"`
	FullName null.String `json:"full_name"`
	Email    null.String `json:"email"`
}

type OverviewMetrics struct {
	TotalSlots     int     `json:"total_slots"`
	ActiveSlots    int     `json:"active_slots"`
	ActiveSessions int     `json:"active_sessions"`
	TodayRevenue   float64 `json:"today_revenue"`
	MonthRevenue   float64 `json:"month_revenue"`
	DevicesOnline  int     `json:"devices_online"`
	DevicesOffline int     `json:"devices_offline"`
}

type OverviewResponse struct {
	Metrics     OverviewMetrics `json:"metrics"`
	GeneratedAt time.Time       `json:"generated_at"`
	AdminUserID string          `json:"admin_user_id"`
}

type AdminSlot struct {
	ParkingSlot
	LiveStatus      string      `json:"live_status"`
	DeviceStatus    null.String `json:"device_status"`
	DeviceLastSeen  null.Time   `json:"device_last_seen"`
	DeviceOnline    bool        `json:"device_online"`
	ActiveSessionID null.String `json:"active_session_id"`
	ActiveUserID    null.String `json:"active_user_id"`
	ActiveUserName  null.String `json:"active_user_name"`
}

type AdminDevice struct {
	Device
	Online              bool     `json:"online"`
	PendingCommandCount int      `json:"pending_command_count"`
	LatestCommand       *Command `json:"latest_command"`
	ErrorLogCount       int      `json:"error_log_count"`
	TamperAlertCount    int      `json:"tamper_alert_count"`
}

type AdminBooking struct {
	Booking
	UserName      string      `json:"user_name"`
	SlotName      null.String `json:"slot_name"`
	PaymentStatus string      `json:"payment_status"`
}

type AdminSession struct {
	ParkingSession
	UserName         string      `json:"user_name"`
	SlotName         null.String `json:"slot_name"`
	RemainingSeconds int64       `json:"remaining_seconds"`
}

type CreateSlotRequest struct {
	SlotName string   `json:"slot_name"`
	DeviceID string   `json:"device_id"`
	Price    *float64 `json:"price"`
	IsActive *bool    `json:"is_active"`
}

type UpdateSlotRequest struct {
	SlotName *string  `json:"slot_name"`
	DeviceID *string  `json:"device_id"`
	Price    *float64 `json:"price"`
	IsActive *bool    `json:"is_active"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status"`
}

type ForceCloseResponse struct {
	Message string          `json:"message"`
	Session *ParkingSession `json:"session"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type SlotResponse struct {
	Slot *ParkingSlot `json:"slot"`
}

type BookingResponse struct {
	Booking *Booking `json:"booking"`
}

type AdminSlotsResponse struct {
	Slots []AdminSlot `json:"slots"`
}

type AdminDevicesResponse struct {
	Devices []AdminDevice `json:"devices"`
}

type AdminBookingsResponse struct {
	Bookings []AdminBooking `json:"bookings"`
}

type AdminSessionsResponse struct {
	Sessions []AdminSession `json:"sessions"`
}
