package parking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"gopkg.in/guregu/null.v4"
)

const (
	adminBookingLimit = 250
	adminSessionLimit = 300
	adminCommandScan  = 500

	unknownUser = "Unknown user"
)

var (
	successPaymentStatuses = []string{"SUCCESS", "PAID", "CAPTURED"}
	onlineDeviceStatuses   = []string{"ONLINE", "ACTIVE", "CONNECTED"}
)

// Live slot states.
const (
	SlotInactive  = "INACTIVE"
	SlotOccupied  = "OCCUPIED"
	SlotAvailable = "AVAILABLE"
)

// IsDeviceOnline reports whether the device counts as online at now.
func IsDeviceOnline(d models.Device, now time.Time, window time.Duration) bool {
	if slices.Contains(onlineDeviceStatuses, models.NormalizeStatus(d.Status)) {
		return true
	}
	if !d.LastSeen.Valid {
		return false
	}
	return now.Sub(d.LastSeen.Time) <= window
}

func userLabel(profiles map[string]models.Profile, userID string) string {
	p, ok := profiles[userID]
	if !ok {
		return unknownUser
	}
	if name := strings.TrimSpace(p.FullName.String); name != "" {
		return name
	}
	if email := strings.TrimSpace(p.Email.String); email != "" {
		return email
	}
	return unknownUser
}

func (s *Service) profileIndex(ctx context.Context) (map[string]models.Profile, error) {
	rows, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, internal("Unable to load profiles.", err)
	}
	out := make(map[string]models.Profile, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// Overview summarises slots, sessions, revenue and device health.
func (s *Service) Overview(ctx context.Context, adminID string) (*models.OverviewResponse, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	total, err := s.store.CountSlots(ctx, false)
	if err != nil {
		return nil, internal("Unable to count slots.", err)
	}
	active, err := s.store.CountSlots(ctx, true)
	if err != nil {
		return nil, internal("Unable to count slots.", err)
	}
	sessions, err := s.store.CountActiveSessions(ctx)
	if err != nil {
		return nil, internal("Unable to count sessions.", err)
	}
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, internal("Unable to load devices.", err)
	}
	payments, err := s.store.ListPaymentsSince(ctx, monthStart)
	if err != nil {
		return nil, internal("Unable to load payments.", err)
	}

	m := models.OverviewMetrics{
		TotalSlots:     total,
		ActiveSlots:    active,
		ActiveSessions: sessions,
	}
	for _, d := range devices {
		if IsDeviceOnline(d, now, s.onlineWindow) {
			m.DevicesOnline++
		}
	}
	m.DevicesOffline = len(devices) - m.DevicesOnline

	for _, p := range payments {
		if !slices.Contains(successPaymentStatuses, models.NormalizeStatus(p.Status)) {
			continue
		}
		m.MonthRevenue += p.Amount
		if !p.CreatedAt.Before(dayStart) {
			m.TodayRevenue += p.Amount
		}
	}

	return &models.OverviewResponse{
		Metrics:     m,
		GeneratedAt: now.UTC(),
		AdminUserID: adminID,
	}, nil
}

// AdminSlots lists every slot with its device health and occupant.
func (s *Service) AdminSlots(ctx context.Context) ([]models.AdminSlot, error) {
	slots, err := s.store.ListSlots(ctx, false)
	if err != nil {
		return nil, internal("Unable to load slots.", err)
	}
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, internal("Unable to load devices.", err)
	}
	sessions, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return nil, internal("Unable to load sessions.", err)
	}
	profiles, err := s.profileIndex(ctx)
	if err != nil {
		return nil, err
	}

	idx := newDeviceIndex(devices)
	bySlot := make(map[string]models.ParkingSession, len(sessions))
	for _, sess := range sessions {
		bySlot[sess.SlotID] = sess
	}

	now := s.now()
	out := make([]models.AdminSlot, 0, len(slots))
	for _, slot := range slots {
		row := models.AdminSlot{ParkingSlot: slot, LiveStatus: SlotInactive}

		sess, occupied := bySlot[slot.ID]
		if slot.IsActive {
			row.LiveStatus = SlotAvailable
			if occupied {
				row.LiveStatus = SlotOccupied
			}
		}
		if d := idx.lookup(slot.DeviceRef.String, slot.DeviceID); d != nil {
			row.DeviceStatus = null.StringFrom(d.Status)
			row.DeviceLastSeen = d.LastSeen
			row.DeviceOnline = IsDeviceOnline(*d, now, s.onlineWindow)
		}
		if occupied {
			row.ActiveSessionID = null.StringFrom(sess.ID)
			row.ActiveUserID = null.StringFrom(sess.UserID)
			row.ActiveUserName = null.StringFrom(userLabel(profiles, sess.UserID))
		}
		out = append(out, row)
	}
	return out, nil
}

// CreateSlot adds a slot bound to an existing device.
func (s *Service) CreateSlot(ctx context.Context, req models.CreateSlotRequest) (*models.ParkingSlot, error) {
	name := strings.TrimSpace(req.SlotName)
	deviceID := strings.TrimSpace(req.DeviceID)
	if name == "" {
		return nil, newError(KindValidation, "slot_name is required.")
	}
	if deviceID == "" {
		return nil, newError(KindValidation, "device_id is required.")
	}
	if req.Price == nil || !validPrice(*req.Price) {
		return nil, newError(KindValidation, "price must be a non-negative number.")
	}

	device, err := s.store.GetDeviceByDeviceID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindValidation, fmt.Sprintf("Device %s not found. Create device row first.", deviceID))
	}
	if err != nil {
		return nil, internal("Unable to load device.", err)
	}

	slot := &models.ParkingSlot{
		DeviceID:  deviceID,
		DeviceRef: null.StringFrom(device.ID),
		SlotName:  name,
		Price:     *req.Price,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return nil, internal("Failed to create slot.", err)
	}
	return slot, nil
}

// UpdateSlot applies a partial update. Moving a slot to another device
// also rebinds its device ref.
func (s *Service) UpdateSlot(ctx context.Context, slotID string, req models.UpdateSlotRequest) (*models.ParkingSlot, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return nil, newError(KindValidation, "slotId is required.")
	}

	var patch models.SlotPatch
	if req.SlotName != nil {
		if name := strings.TrimSpace(*req.SlotName); name != "" {
			patch.SlotName = &name
		}
	}
	if req.Price != nil {
		if !validPrice(*req.Price) {
			return nil, newError(KindValidation, "price must be a non-negative number.")
		}
		patch.Price = req.Price
	}
	if req.IsActive != nil {
		patch.IsActive = req.IsActive
	}
	if req.DeviceID != nil {
		deviceID := strings.TrimSpace(*req.DeviceID)
		if deviceID == "" {
			return nil, newError(KindValidation, "device_id cannot be empty.")
		}
		device, err := s.store.GetDeviceByDeviceID(ctx, deviceID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindValidation, fmt.Sprintf("Device %s not found.", deviceID))
		}
		if err != nil {
			return nil, internal("Unable to load device.", err)
		}
		patch.DeviceID = &deviceID
		patch.DeviceRef = &device.ID
	}
	if patch.Empty() {
		return nil, newError(KindValidation, "No valid update fields provided.")
	}

	slot, err := s.store.UpdateSlot(ctx, slotID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Slot not found.")
	}
	if err != nil {
		return nil, internal("Failed to update slot.", err)
	}
	return slot, nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

// AdminDevices lists devices with command statistics over the newest
// commands.
func (s *Service) AdminDevices(ctx context.Context) ([]models.AdminDevice, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, internal("Unable to load devices.", err)
	}
	commands, err := s.store.ListCommands(ctx, adminCommandScan)
	if err != nil {
		return nil, internal("Unable to load commands.", err)
	}

	now := s.now()
	out := make([]models.AdminDevice, 0, len(devices))
	for _, d := range devices {
		row := models.AdminDevice{Device: d, Online: IsDeviceOnline(d, now, s.onlineWindow)}
		for i := range commands {
			c := commands[i]
			if c.DeviceID.String != d.DeviceID && c.DeviceRef.String != d.ID {
				continue
			}
			if row.LatestCommand == nil {
				row.LatestCommand = &commands[i]
			}
			if !c.Executed {
				row.PendingCommandCount++
			}
			text := models.NormalizeStatus(c.Command)
			if strings.Contains(text, "ERROR") {
				row.ErrorLogCount++
			}
			if strings.Contains(text, "TAMPER") {
				row.TamperAlertCount++
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// QueueDeviceCommand queues command for an admin-selected device. No auto
// close is armed.
func (s *Service) QueueDeviceCommand(ctx context.Context, deviceID, command string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", newError(KindValidation, "deviceId is required.")
	}
	if _, err := s.DispatchCommand(ctx, command, deviceID); err != nil {
		return deviceID, err
	}
	return deviceID, nil
}

// paymentStatus derives the payment column shown for a booking.
func paymentStatus(bookingStatus string) string {
	switch models.NormalizeStatus(bookingStatus) {
	case models.BookingPaid, models.BookingCompleted:
		return "PAID"
	case models.BookingPendingPayment:
		return "PENDING"
	case models.BookingCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// AdminBookings lists the newest bookings with user and slot labels.
func (s *Service) AdminBookings(ctx context.Context) ([]models.AdminBooking, error) {
	bookings, err := s.store.ListBookings(ctx, adminBookingLimit)
	if err != nil {
		return nil, internal("Unable to load bookings.", err)
	}
	profiles, err := s.profileIndex(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := s.store.ListSlots(ctx, false)
	if err != nil {
		return nil, internal("Unable to load slots.", err)
	}

	firstSlot := make(map[string]models.ParkingSlot)
	for _, slot := range slots {
		if _, ok := firstSlot[slot.DeviceID]; slot.DeviceID != "" && !ok {
			firstSlot[slot.DeviceID] = slot
		}
	}

	out := make([]models.AdminBooking, 0, len(bookings))
	for _, b := range bookings {
		row := models.AdminBooking{
			Booking:       b,
			UserName:      userLabel(profiles, b.UserID),
			PaymentStatus: paymentStatus(b.Status),
		}
		if slot, ok := firstSlot[b.DeviceID]; ok {
			row.SlotName = null.StringFrom(slot.SlotName)
		}
		out = append(out, row)
	}
	return out, nil
}

// SetBookingStatus overrides a booking's status.
func (s *Service) SetBookingStatus(ctx context.Context, bookingID, status string) (*models.Booking, error) {
	bookingID = strings.TrimSpace(bookingID)
	next := models.NormalizeStatus(status)
	if bookingID == "" {
		return nil, newError(KindValidation, "bookingId is required.")
	}
	if next == "" {
		return nil, newError(KindValidation, "status is required.")
	}
	if !slices.Contains(models.BookingStatuses, next) {
		return nil, newError(KindValidation, "Unsupported booking status.")
	}

	booking, err := s.store.UpdateBookingStatus(ctx, bookingID, next)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "Booking not found.")
	}
	if err != nil {
		return nil, internal("Failed to update booking.", err)
	}
	return booking, nil
}

// AdminSessions lists the newest sessions with labels and time left.
func (s *Service) AdminSessions(ctx context.Context) ([]models.AdminSession, error) {
	sessions, err := s.store.ListSessions(ctx, adminSessionLimit)
	if err != nil {
		return nil, internal("Unable to load sessions.", err)
	}
	profiles, err := s.profileIndex(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := s.store.ListSlots(ctx, false)
	if err != nil {
		return nil, internal("Unable to load slots.", err)
	}

	slotByID := make(map[string]models.ParkingSlot, len(slots))
	for _, slot := range slots {
		slotByID[slot.ID] = slot
	}

	now := s.now()
	out := make([]models.AdminSession, 0, len(sessions))
	for _, sess := range sessions {
		row := models.AdminSession{
			ParkingSession: sess,
			UserName:       userLabel(profiles, sess.UserID),
		}
		if slot, ok := slotByID[sess.SlotID]; ok {
			row.SlotName = null.StringFrom(slot.SlotName)
		}
		if models.IsActiveSessionStatus(sess.Status) && sess.EntryExpiry.Valid {
			if left := sess.EntryExpiry.Time.Sub(now); left > 0 {
				row.RemainingSeconds = int64(left / time.Second)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// ForceCloseSession completes a session regardless of its state and
// queues CLOSE for its device. A pending delayed close for the same
// session later finds it completed and does nothing.
func (s *Service) ForceCloseSession(ctx context.Context, sessionID string) (*models.ParkingSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(KindValidation, "sessionId is required.")
	}

	eff := &effects{}
	var done *models.ParkingSession
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "Session not found.")
		}
		if err != nil {
			return internal("Unable to load session.", err)
		}

		done, err = tx.CompleteSession(ctx, sess.ID)
		if err != nil {
			return internal("Failed to force close session.", err)
		}
		eff.completed(done, TriggerForceClose)

		if sess.DeviceID != "" {
			if _, err := s.dispatch(ctx, tx, models.CommandClose, sess.DeviceID, eff); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, eff)
	return done, nil
}

type deviceIndex struct {
	byRef map[string]*models.Device
	byKey map[string]*models.Device
}

func newDeviceIndex(devices []models.Device) deviceIndex {
	idx := deviceIndex{
		byRef: make(map[string]*models.Device, len(devices)),
		byKey: make(map[string]*models.Device, len(devices)),
	}
	for i := range devices {
		idx.byRef[devices[i].ID] = &devices[i]
		idx.byKey[devices[i].DeviceID] = &devices[i]
	}
	return idx
}

// lookup resolves a device by ref first, then by string key.
func (idx deviceIndex) lookup(ref, key string) *models.Device {
	if ref != "" {
		if d, ok := idx.byRef[ref]; ok {
			return d
		}
	}
	if key != "" {
		return idx.byKey[key]
	}
	return nil
}
