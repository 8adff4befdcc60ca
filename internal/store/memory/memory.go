// Package memory is an in-process implementation of store.Store for tests
// and single-node demos. Transactions are serialised and roll back by
// undoing only their own writes, so writes made outside a transaction
// survive a concurrent rollback.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"
)

// ErrLegacyCommandRejected is returned for string-addressed command inserts
// when RejectLegacyCommands is set.
var ErrLegacyCommandRejected = errors.New("commands.device_id is not writable")

type tables struct {
	devices  []models.Device
	slots    []models.ParkingSlot
	bookings []models.Booking
	sessions []models.ParkingSession
	payments []models.Payment
	commands []models.Command
	profiles []models.Profile
}

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	t    tables

	// RejectLegacyCommands makes inserts addressed by device string key
	// fail, emulating a schema that only accepts device_ref.
	RejectLegacyCommands bool
	// FailCommandInserts makes every command insert fail.
	FailCommandInserts bool
}

func New() *Store {
	return &Store{}
}

// WithinTx serialises fn against other transactions and reverts the writes
// fn made when it fails.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txView{Store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// txView routes writes through the store and records how to revert each.
type txView struct {
	*Store
	undo []func(t *tables)
}

func (v *txView) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

func (v *txView) rollback() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.undo) - 1; i >= 0; i-- {
		v.undo[i](&v.t)
	}
	v.undo = nil
}

func (v *txView) record(fn func(t *tables)) {
	v.undo = append(v.undo, fn)
}

// previous returns a copy of the row in rows whose key is id.
func previous[T any](mu *sync.Mutex, rows *[]T, key func(T) string, id string) (T, bool) {
	mu.Lock()
	defer mu.Unlock()
	for _, r := range *rows {
		if key(r) == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

func restore[T any](rows []T, key func(T) string, prev T) {
	for i := range rows {
		if key(rows[i]) == key(prev) {
			rows[i] = prev
		}
	}
}

func drop[T any](rows []T, key func(T) string, id string) []T {
	return slices.DeleteFunc(rows, func(r T) bool { return key(r) == id })
}

func deviceKey(d models.Device) string             { return d.ID }
func slotKey(slot models.ParkingSlot) string       { return slot.ID }
func bookingKey(b models.Booking) string           { return b.ID }
func sessionKey(sess models.ParkingSession) string { return sess.ID }
func paymentKey(p models.Payment) string           { return p.ID }
func commandKey(c models.Command) string           { return c.ID }

func (v *txView) TouchDevice(ctx context.Context, id string, at time.Time) error {
	prev, ok := previous(&v.mu, &v.t.devices, deviceKey, id)
	if err := v.Store.TouchDevice(ctx, id, at); err != nil {
		return err
	}
	if ok {
		v.record(func(t *tables) { restore(t.devices, deviceKey, prev) })
	}
	return nil
}

func (v *txView) TouchDeviceByDeviceID(ctx context.Context, deviceID string, at time.Time) error {
	v.mu.Lock()
	var prev []models.Device
	for _, d := range v.t.devices {
		if d.DeviceID == deviceID {
			prev = append(prev, d)
		}
	}
	v.mu.Unlock()

	if err := v.Store.TouchDeviceByDeviceID(ctx, deviceID, at); err != nil {
		return err
	}
	v.record(func(t *tables) {
		for _, d := range prev {
			restore(t.devices, deviceKey, d)
		}
	})
	return nil
}

func (v *txView) CreateSlot(ctx context.Context, slot *models.ParkingSlot) error {
	if err := v.Store.CreateSlot(ctx, slot); err != nil {
		return err
	}
	id := slot.ID
	v.record(func(t *tables) { t.slots = drop(t.slots, slotKey, id) })
	return nil
}

func (v *txView) UpdateSlot(ctx context.Context, id string, patch models.SlotPatch) (*models.ParkingSlot, error) {
	prev, ok := previous(&v.mu, &v.t.slots, slotKey, id)
	out, err := v.Store.UpdateSlot(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if ok {
		v.record(func(t *tables) { restore(t.slots, slotKey, prev) })
	}
	return out, nil
}

func (v *txView) CreateBooking(ctx context.Context, b *models.Booking) error {
	if err := v.Store.CreateBooking(ctx, b); err != nil {
		return err
	}
	id := b.ID
	v.record(func(t *tables) { t.bookings = drop(t.bookings, bookingKey, id) })
	return nil
}

func (v *txView) UpdateBookingStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	prev, ok := previous(&v.mu, &v.t.bookings, bookingKey, id)
	out, err := v.Store.UpdateBookingStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if ok {
		v.record(func(t *tables) { restore(t.bookings, bookingKey, prev) })
	}
	return out, nil
}

func (v *txView) CreateSession(ctx context.Context, sess *models.ParkingSession) error {
	if err := v.Store.CreateSession(ctx, sess); err != nil {
		return err
	}
	id := sess.ID
	v.record(func(t *tables) { t.sessions = drop(t.sessions, sessionKey, id) })
	return nil
}

func (v *txView) CompleteSession(ctx context.Context, id string) (*models.ParkingSession, error) {
	prev, ok := previous(&v.mu, &v.t.sessions, sessionKey, id)
	out, err := v.Store.CompleteSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		v.record(func(t *tables) { restore(t.sessions, sessionKey, prev) })
	}
	return out, nil
}

func (v *txView) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := v.Store.CreatePayment(ctx, p); err != nil {
		return err
	}
	id := p.ID
	v.record(func(t *tables) { t.payments = drop(t.payments, paymentKey, id) })
	return nil
}

func (v *txView) CreateCommand(ctx context.Context, c *models.Command) error {
	if err := v.Store.CreateCommand(ctx, c); err != nil {
		return err
	}
	id := c.ID
	v.record(func(t *tables) { t.commands = drop(t.commands, commandKey, id) })
	return nil
}

func (v *txView) MarkCommandExecuted(ctx context.Context, id string) error {
	prev, ok := previous(&v.mu, &v.t.commands, commandKey, id)
	if err := v.Store.MarkCommandExecuted(ctx, id); err != nil {
		return err
	}
	if ok {
		v.record(func(t *tables) { restore(t.commands, commandKey, prev) })
	}
	return nil
}

func stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

// newestFirst returns a copy of rows matching keep, ordered by created
// descending; later inserts win ties.
func newestFirst[T any](rows []T, created func(T) time.Time, keep func(T) bool, limit int) []T {
	out := make([]T, 0)
	for i := len(rows) - 1; i >= 0; i-- {
		if keep(rows[i]) {
			out = append(out, rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return created(out[i]).After(created(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Seeding helpers

func (s *Store) AddDevice(d models.Device) models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&d.ID, &d.CreatedAt)
	if d.Status == "" {
		d.Status = models.DeviceOffline
	}
	s.t.devices = append(s.t.devices, d)
	return d
}

func (s *Store) AddSlot(slot models.ParkingSlot) models.ParkingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&slot.ID, &slot.CreatedAt)
	s.t.slots = append(s.t.slots, slot)
	return slot
}

func (s *Store) AddProfile(p models.Profile) models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.t.profiles = append(s.t.profiles, p)
	return p
}

func (s *Store) AddSession(sess models.ParkingSession) models.ParkingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&sess.ID, &sess.CreatedAt)
	s.t.sessions = append(s.t.sessions, sess)
	return sess
}

// Commands returns every command in insertion order.
func (s *Store) Commands() []models.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.t.commands)
}

// Sessions returns every session in insertion order.
func (s *Store) Sessions() []models.ParkingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.t.sessions)
}

// Payments returns every payment in insertion order.
func (s *Store) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.t.payments)
}

// Bookings returns every booking in insertion order.
func (s *Store) Bookings() []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.t.bookings)
}

// Devices

func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.t.devices {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.t.devices {
		if d.DeviceID == deviceID {
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.devices, func(d models.Device) time.Time { return d.CreatedAt },
		func(models.Device) bool { return true }, 0), nil
}

func (s *Store) TouchDevice(ctx context.Context, id string, at time.Time) error {
	return s.touch(func(d models.Device) bool { return d.ID == id }, at)
}

func (s *Store) TouchDeviceByDeviceID(ctx context.Context, deviceID string, at time.Time) error {
	return s.touch(func(d models.Device) bool { return d.DeviceID == deviceID }, at)
}

func (s *Store) touch(match func(models.Device) bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.t.devices {
		if match(s.t.devices[i]) {
			s.t.devices[i].Status = models.DeviceOnline
			s.t.devices[i].LastSeen = null.TimeFrom(at)
		}
	}
	return nil
}

// Slots

func (s *Store) GetSlot(ctx context.Context, id string) (*models.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.t.slots {
		if slot.ID == id {
			return &slot, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) NewestActiveSlot(ctx context.Context, deviceID string) (*models.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := newestFirst(s.t.slots, slotCreated, func(slot models.ParkingSlot) bool {
		return slot.IsActive && (deviceID == "" || slot.DeviceID == deviceID)
	}, 1)
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func slotCreated(slot models.ParkingSlot) time.Time { return slot.CreatedAt }

func (s *Store) ListSlots(ctx context.Context, activeOnly bool) ([]models.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.slots, slotCreated, func(slot models.ParkingSlot) bool {
		return !activeOnly || slot.IsActive
	}, 0), nil
}

func (s *Store) ListSlotsByIDs(ctx context.Context, ids []string) ([]models.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.slots, slotCreated, func(slot models.ParkingSlot) bool {
		return slices.Contains(ids, slot.ID)
	}, 0), nil
}

func (s *Store) CountSlots(ctx context.Context, activeOnly bool) (int, error) {
	rows, _ := s.ListSlots(ctx, activeOnly)
	return len(rows), nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *models.ParkingSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&slot.ID, &slot.CreatedAt)
	s.t.slots = append(s.t.slots, *slot)
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, id string, patch models.SlotPatch) (*models.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.t.slots {
		slot := &s.t.slots[i]
		if slot.ID != id {
			continue
		}
		if patch.SlotName != nil {
			slot.SlotName = *patch.SlotName
		}
		if patch.Price != nil {
			slot.Price = *patch.Price
		}
		if patch.IsActive != nil {
			slot.IsActive = *patch.IsActive
		}
		if patch.DeviceID != nil {
			slot.DeviceID = *patch.DeviceID
		}
		if patch.DeviceRef != nil {
			slot.DeviceRef = null.StringFrom(*patch.DeviceRef)
		}
		updated := *slot
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

// Bookings

func bookingCreated(b models.Booking) time.Time { return b.CreatedAt }

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&b.ID, &b.CreatedAt)
	s.t.bookings = append(s.t.bookings, *b)
	return nil
}

func (s *Store) GetUserBooking(ctx context.Context, id, userID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.t.bookings {
		if b.ID == id && b.UserID == userID {
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.t.bookings {
		if s.t.bookings[i].ID == id {
			s.t.bookings[i].Status = status
			b := s.t.bookings[i]
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUserBookings(ctx context.Context, userID string, limit int) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.bookings, bookingCreated, func(b models.Booking) bool {
		return b.UserID == userID
	}, limit), nil
}

func (s *Store) ListBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.bookings, bookingCreated, func(models.Booking) bool { return true }, limit), nil
}

// Sessions

func sessionCreated(sess models.ParkingSession) time.Time { return sess.CreatedAt }

func (s *Store) CreateSession(ctx context.Context, sess *models.ParkingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&sess.ID, &sess.CreatedAt)
	s.t.sessions = append(s.t.sessions, *sess)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.t.sessions {
		if sess.ID == id {
			return &sess, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CompleteSession(ctx context.Context, id string) (*models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.t.sessions {
		if s.t.sessions[i].ID == id {
			s.t.sessions[i].Status = models.SessionCompleted
			sess := s.t.sessions[i]
			return &sess, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListActiveUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.sessions, sessionCreated, func(sess models.ParkingSession) bool {
		return sess.UserID == userID && models.IsActiveSessionStatus(sess.Status)
	}, limit), nil
}

func (s *Store) ListExpiredSessions(ctx context.Context, userID string, now time.Time, limit int) ([]models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.sessions, sessionCreated, func(sess models.ParkingSession) bool {
		if userID != "" && sess.UserID != userID {
			return false
		}
		return models.IsActiveSessionStatus(sess.Status) && sess.EntryExpiry.Valid && sess.EntryExpiry.Time.Before(now)
	}, limit), nil
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.sessions, sessionCreated, func(sess models.ParkingSession) bool {
		return models.IsActiveSessionStatus(sess.Status)
	}, 0), nil
}

func (s *Store) CountActiveSessions(ctx context.Context) (int, error) {
	rows, _ := s.ListActiveSessions(ctx)
	return len(rows), nil
}

func (s *Store) ListUserSessions(ctx context.Context, userID string, limit int) ([]models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.sessions, sessionCreated, func(sess models.ParkingSession) bool {
		return sess.UserID == userID
	}, limit), nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.sessions, sessionCreated, func(models.ParkingSession) bool { return true }, limit), nil
}

// Payments

func paymentCreated(p models.Payment) time.Time { return p.CreatedAt }

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(&p.ID, &p.CreatedAt)
	s.t.payments = append(s.t.payments, *p)
	return nil
}

func (s *Store) ListUserPayments(ctx context.Context, userID string, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.payments, paymentCreated, func(p models.Payment) bool {
		return p.UserID == userID
	}, limit), nil
}

func (s *Store) ListPaymentsSince(ctx context.Context, since time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.payments, paymentCreated, func(p models.Payment) bool {
		return !p.CreatedAt.Before(since)
	}, 0), nil
}

// Commands

func commandCreated(c models.Command) time.Time { return c.CreatedAt }

func (s *Store) CreateCommand(ctx context.Context, c *models.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommandInserts {
		return errors.New("commands table unavailable")
	}
	if s.RejectLegacyCommands && c.DeviceID.Valid {
		return ErrLegacyCommandRejected
	}
	stamp(&c.ID, &c.CreatedAt)
	s.t.commands = append(s.t.commands, *c)
	return nil
}

func (s *Store) GetCommand(ctx context.Context, id string) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.t.commands {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkCommandExecuted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.t.commands {
		if s.t.commands[i].ID == id {
			s.t.commands[i].Executed = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) NextCommandByRef(ctx context.Context, deviceRef string) (*models.Command, error) {
	return s.nextCommand(func(c models.Command) bool {
		return c.DeviceRef.Valid && c.DeviceRef.String == deviceRef
	})
}

func (s *Store) NextCommandByDeviceID(ctx context.Context, deviceID string) (*models.Command, error) {
	return s.nextCommand(func(c models.Command) bool {
		return c.DeviceID.Valid && c.DeviceID.String == deviceID
	})
}

func (s *Store) nextCommand(match func(models.Command) bool) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := newestFirst(s.t.commands, commandCreated, func(c models.Command) bool {
		return !c.Executed && match(c)
	}, 1)
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) ListCommands(ctx context.Context, limit int) ([]models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.t.commands, commandCreated, func(models.Command) bool { return true }, limit), nil
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.t.profiles {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.t.profiles), nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txView)(nil)
)
