package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"gopkg.in/guregu/null.v4"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.CreateBooking(ctx, &models.Booking{UserID: "u1", Status: models.BookingPendingPayment}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got err %v, want %v", err, boom)
	}
	if got := len(s.Bookings()); got != 0 {
		t.Errorf("expected rollback to drop the booking, got %d rows", got)
	}
}

func TestWithinTx_RollbackKeepsConcurrentWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AddDevice(models.Device{ID: "dev-1", DeviceID: "GATE_001"})
	open := models.Command{DeviceID: null.StringFrom("GATE_001"), Command: models.CommandOpen}
	if err := s.CreateCommand(ctx, &open); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	boom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(tx store.Store) error {
			if err := tx.CreateBooking(ctx, &models.Booking{UserID: "u1"}); err != nil {
				return err
			}
			if err := tx.TouchDevice(ctx, "dev-1", time.Now()); err != nil {
				return err
			}
			close(started)
			<-release
			return boom
		})
	}()

	<-started
	if err := s.MarkCommandExecuted(ctx, open.ID); err != nil {
		t.Fatalf("MarkCommandExecuted: %v", err)
	}
	closeCmd := models.Command{DeviceID: null.StringFrom("GATE_001"), Command: models.CommandClose}
	if err := s.CreateCommand(ctx, &closeCmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("got err %v, want %v", err, boom)
	}

	got, err := s.GetCommand(ctx, open.ID)
	if err != nil || !got.Executed {
		t.Errorf("acked command after rollback = %+v, %v; want executed", got, err)
	}
	if _, err := s.GetCommand(ctx, closeCmd.ID); err != nil {
		t.Errorf("command queued outside the transaction was lost: %v", err)
	}
	if n := len(s.Bookings()); n != 0 {
		t.Errorf("got %d bookings, want the transaction's booking dropped", n)
	}
	if d, _ := s.GetDevice(ctx, "dev-1"); d.LastSeen.Valid {
		t.Errorf("device touch inside the failed transaction survived: %+v", d)
	}
}

func TestWithinTx_RollbackRestoresUpdatedRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess := s.AddSession(models.ParkingSession{UserID: "u1", Status: models.SessionActive})

	err := s.WithinTx(ctx, func(tx store.Store) error {
		if _, err := tx.CompleteSession(ctx, sess.ID); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.Status != models.SessionActive {
		t.Errorf("status = %s, want %s after rollback", got.Status, models.SessionActive)
	}
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Store) error {
		return tx.WithinTx(ctx, func(inner store.Store) error {
			return inner.CreateBooking(ctx, &models.Booking{UserID: "u1"})
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(s.Bookings()); got != 1 {
		t.Errorf("got %d bookings, want 1", got)
	}
}

func TestNewestActiveSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.AddSlot(models.ParkingSlot{ID: "old", DeviceID: "GATE_001", IsActive: true, CreatedAt: base})
	s.AddSlot(models.ParkingSlot{ID: "new", DeviceID: "GATE_001", IsActive: true, CreatedAt: base.Add(time.Hour)})
	s.AddSlot(models.ParkingSlot{ID: "newest-inactive", DeviceID: "GATE_001", IsActive: false, CreatedAt: base.Add(2 * time.Hour)})
	s.AddSlot(models.ParkingSlot{ID: "other", DeviceID: "GATE_002", IsActive: true, CreatedAt: base.Add(3 * time.Hour)})

	slot, err := s.NewestActiveSlot(ctx, "GATE_001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.ID != "new" {
		t.Errorf("got slot %s, want new", slot.ID)
	}

	slot, err = s.NewestActiveSlot(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.ID != "other" {
		t.Errorf("got slot %s, want other", slot.ID)
	}

	if _, err := s.NewestActiveSlot(ctx, "GATE_404"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got err %v, want ErrNotFound", err)
	}
}

func TestNextCommand_SkipsExecutedAndFiltersAddressing(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range []models.Command{
		{ID: "c1", DeviceID: null.StringFrom("GATE_001"), Command: models.CommandOpen, CreatedAt: base},
		{ID: "c2", DeviceID: null.StringFrom("GATE_001"), Command: models.CommandClose, CreatedAt: base.Add(time.Second), Executed: true},
		{ID: "c3", DeviceRef: null.StringFrom("dev-1"), Command: models.CommandClose, CreatedAt: base.Add(2 * time.Second)},
	} {
		if err := s.CreateCommand(ctx, &c); err != nil {
			t.Fatalf("CreateCommand: %v", err)
		}
	}

	byID, err := s.NextCommandByDeviceID(ctx, "GATE_001")
	if err != nil || byID.ID != "c1" {
		t.Errorf("NextCommandByDeviceID = %v, %v; want c1", byID, err)
	}
	byRef, err := s.NextCommandByRef(ctx, "dev-1")
	if err != nil || byRef.ID != "c3" {
		t.Errorf("NextCommandByRef = %v, %v; want c3", byRef, err)
	}
}

func TestCreateCommand_RejectLegacy(t *testing.T) {
	s := New()
	s.RejectLegacyCommands = true
	ctx := context.Background()

	err := s.CreateCommand(ctx, &models.Command{DeviceID: null.StringFrom("GATE_001"), Command: models.CommandOpen})
	if !errors.Is(err, ErrLegacyCommandRejected) {
		t.Errorf("got err %v, want ErrLegacyCommandRejected", err)
	}
	if err := s.CreateCommand(ctx, &models.Command{DeviceRef: null.StringFrom("dev-1"), Command: models.CommandOpen}); err != nil {
		t.Errorf("ref-addressed insert should succeed, got %v", err)
	}
}

func TestListExpiredSessions(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s.AddSession(models.ParkingSession{ID: "expired", UserID: "u1", Status: models.SessionActive, EntryExpiry: null.TimeFrom(now.Add(-time.Minute))})
	s.AddSession(models.ParkingSession{ID: "live", UserID: "u1", Status: models.SessionActive, EntryExpiry: null.TimeFrom(now.Add(time.Minute))})
	s.AddSession(models.ParkingSession{ID: "no-expiry", UserID: "u1", Status: models.SessionInProgress})
	s.AddSession(models.ParkingSession{ID: "done", UserID: "u1", Status: models.SessionCompleted, EntryExpiry: null.TimeFrom(now.Add(-time.Hour))})
	s.AddSession(models.ParkingSession{ID: "other-user", UserID: "u2", Status: models.SessionActive, EntryExpiry: null.TimeFrom(now.Add(-time.Minute))})

	rows, err := s.ListExpiredSessions(ctx, "u1", now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "expired" {
		t.Errorf("got %v, want only expired", rows)
	}

	all, _ := s.ListExpiredSessions(ctx, "", now, 0)
	if len(all) != 2 {
		t.Errorf("got %d expired sessions across users, want 2", len(all))
	}
}
