package parking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/guregu/null.v4"
)

// Session start sources, used as metric labels.
const (
	SourcePayment = "payment"
	SourceStart   = "start"
)

const (
	msgNoSlot        = "No active parking slot is available. Add an active row in parking_slots."
	msgNoBookingSlot = "Unable to map booking to an active slot. Pass slot_id or configure parking_slots."
)

type PayResult struct {
	Session *models.ParkingSession
	Payment *models.Payment
	Slot    *models.ParkingSlot
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
	}
	span.End()
}

// CreateBooking opens a PENDING_PAYMENT booking priced from the resolved
// slot. The guard and the insert run in one transaction.
func (s *Service) CreateBooking(ctx context.Context, userID, slotID string) (_ *models.Booking, _ *models.ParkingSlot, err error) {
	ctx, span := s.tracer.Start(ctx, "parking.create")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("user.id", userID))

	eff := &effects{}
	var (
		booking *models.Booking
		slot    *models.ParkingSlot
	)
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := s.ensureNoConflictingSession(ctx, tx, userID, eff); err != nil {
			return err
		}

		var err error
		slot, err = ResolveActiveSlot(ctx, tx, SlotQuery{
			SlotID:              strings.TrimSpace(slotID),
			DeviceID:            s.defaultDeviceID,
			FallbackToAnyActive: true,
		})
		if err != nil {
			return err
		}
		if slot == nil {
			return newError(KindInvalidState, msgNoSlot)
		}

		booking = &models.Booking{
			UserID:   userID,
			DeviceID: s.deviceOr(slot.DeviceID),
			Amount:   slot.Price,
			Status:   models.BookingPendingPayment,
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return upstream("Booking was not created.", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(attribute.String("booking.id", booking.ID), attribute.String("slot.id", slot.ID))
	s.metrics.BookingsCreated.Inc()
	eff.emit(models.Event{
		Type:      models.EventBookingCreated,
		UserID:    userID,
		BookingID: booking.ID,
		DeviceID:  booking.DeviceID,
	})
	s.flush(ctx, eff)
	return booking, slot, nil
}

// PayBooking confirms payment for a booking: it starts an ACTIVE session,
// records the payment, marks the booking PAID and queues OPEN, all in one
// transaction. The delayed close is armed after commit.
func (s *Service) PayBooking(ctx context.Context, userID, bookingID, slotID string) (_ *PayResult, err error) {
	ctx, span := s.tracer.Start(ctx, "parking.pay")
	defer func() { endSpan(span, err) }()

	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, newError(KindValidation, "booking_id is required")
	}
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("booking.id", bookingID))

	eff := &effects{}
	res := &PayResult{}
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		booking, err := tx.GetUserBooking(ctx, bookingID, userID)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "Booking not found")
		}
		if err != nil {
			return internal("Unable to load booking.", err)
		}

		switch models.NormalizeStatus(booking.Status) {
		case models.BookingPaid, models.BookingCompleted:
			return newError(KindConflict, "Booking is already paid.")
		case models.BookingCancelled:
			return newError(KindInvalidState, "Cancelled booking cannot be paid.")
		}

		if err := s.ensureNoConflictingSession(ctx, tx, userID, eff); err != nil {
			return err
		}

		slot, err := ResolveActiveSlot(ctx, tx, SlotQuery{
			SlotID:              strings.TrimSpace(slotID),
			DeviceID:            s.deviceOr(booking.DeviceID),
			FallbackToAnyActive: true,
		})
		if err != nil {
			return err
		}
		if slot == nil {
			return newError(KindInvalidState, msgNoBookingSlot)
		}

		now := s.now().UTC()
		sess := &models.ParkingSession{
			UserID:      booking.UserID,
			SlotID:      slot.ID,
			DeviceID:    s.deviceOr(slot.DeviceID, booking.DeviceID),
			DeviceRef:   slot.DeviceRef,
			Status:      models.SessionActive,
			EntryExpiry: null.TimeFrom(now.Add(s.sessionDuration)),
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return upstream("Parking session was not created.", err)
		}

		amount := booking.Amount
		if amount == 0 {
			amount = slot.Price
		}
		payment := &models.Payment{
			UserID:    booking.UserID,
			SessionID: sess.ID,
			Amount:    amount,
			Status:    models.PaymentSuccess,
			OrderID:   orderRef(bookingID),
			PaymentID: fmt.Sprintf("pay_%d", now.UnixMilli()),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return upstream("Payment was not recorded.", err)
		}

		if _, err := tx.UpdateBookingStatus(ctx, booking.ID, models.BookingPaid); err != nil {
			return internal("Unable to mark booking paid.", err)
		}

		if _, err := s.dispatch(ctx, tx, models.CommandOpen, sess.DeviceID, eff); err != nil {
			return err
		}

		res.Session, res.Payment, res.Slot = sess, payment, slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("session.id", res.Session.ID), attribute.String("device.id", res.Session.DeviceID))
	s.armSessionClose(ctx, res.Session)

	s.metrics.Payments.Inc()
	s.metrics.SessionsStarted.WithLabelValues(SourcePayment).Inc()
	eff.emit(models.Event{
		Type:      models.EventBookingPaid,
		UserID:    userID,
		BookingID: bookingID,
		SessionID: res.Session.ID,
		DeviceID:  res.Session.DeviceID,
	})
	eff.emit(models.Event{
		Type:      models.EventSessionStarted,
		UserID:    userID,
		SessionID: res.Session.ID,
		DeviceID:  res.Session.DeviceID,
	})
	s.flush(ctx, eff)
	return res, nil
}

// StartSession starts a session directly, without a booking. Any active
// session for the user blocks it.
func (s *Service) StartSession(ctx context.Context, userID, slotID string) (_ *models.ParkingSession, _ *models.ParkingSlot, err error) {
	ctx, span := s.tracer.Start(ctx, "parking.start_session")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("user.id", userID))

	eff := &effects{}
	var (
		sess *models.ParkingSession
		slot *models.ParkingSlot
	)
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		active, err := tx.ListActiveUserSessions(ctx, userID, 0)
		if err != nil {
			return internal("Unable to check active sessions.", err)
		}
		if len(active) > 0 {
			return newError(KindInvalidState, "User already has an active parking session")
		}

		slot, err = ResolveActiveSlot(ctx, tx, SlotQuery{
			SlotID:              strings.TrimSpace(slotID),
			DeviceID:            s.defaultDeviceID,
			FallbackToAnyActive: true,
		})
		if err != nil {
			return err
		}
		if slot == nil {
			return newError(KindInvalidState, msgNoSlot)
		}

		sess = &models.ParkingSession{
			UserID:      userID,
			SlotID:      slot.ID,
			DeviceID:    s.deviceOr(slot.DeviceID),
			DeviceRef:   slot.DeviceRef,
			Status:      models.SessionActive,
			EntryExpiry: null.TimeFrom(s.now().UTC().Add(s.sessionDuration)),
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return upstream("Parking session was not created.", err)
		}

		_, err = s.dispatch(ctx, tx, models.CommandOpen, sess.DeviceID, eff)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(attribute.String("session.id", sess.ID), attribute.String("device.id", sess.DeviceID))
	s.armSessionClose(ctx, sess)

	s.metrics.SessionsStarted.WithLabelValues(SourceStart).Inc()
	eff.emit(models.Event{
		Type:      models.EventSessionStarted,
		UserID:    userID,
		SessionID: sess.ID,
		DeviceID:  sess.DeviceID,
	})
	s.flush(ctx, eff)
	return sess, slot, nil
}

// armSessionClose schedules the delayed close. A failure is logged; the
// sweeper closes the session once it expires.
func (s *Service) armSessionClose(ctx context.Context, sess *models.ParkingSession) {
	if err := s.scheduler.ScheduleSessionClose(ctx, sess.ID, sess.EntryExpiry.Time); err != nil {
		s.log(ctx).Error("failed to arm session close", "session_id", sess.ID, "error", err)
	}
}

func orderRef(bookingID string) string {
	if len(bookingID) > 8 {
		bookingID = bookingID[:8]
	}
	return "order_" + bookingID
}
