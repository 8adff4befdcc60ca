package parking

import (
	"context"

	"zlot-parking/internal/models"

	"gopkg.in/guregu/null.v4"
)

const historyLimit = 20

// ListPublicSlots returns the active slots with their device status.
func (s *Service) ListPublicSlots(ctx context.Context) ([]models.SlotWithDevice, error) {
	slots, err := s.store.ListSlots(ctx, true)
	if err != nil {
		return nil, internal("Unable to list parking slots.", err)
	}
	out := make([]models.SlotWithDevice, 0, len(slots))
	if len(slots) == 0 {
		return out, nil
	}

	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, internal("Unable to load devices for slots.", err)
	}
	idx := newDeviceIndex(devices)

	for _, slot := range slots {
		row := models.SlotWithDevice{ParkingSlot: slot}
		if d := idx.lookup(slot.DeviceRef.String, slot.DeviceID); d != nil {
			row.DeviceStatus = null.StringFrom(d.Status)
			row.DeviceLastSeen = d.LastSeen
		}
		out = append(out, row)
	}
	return out, nil
}

// History returns the user's recent bookings, sessions and payments, and
// a summary of every slot those sessions used.
func (s *Service) History(ctx context.Context, userID string) (*models.HistoryResponse, error) {
	bookings, err := s.store.ListUserBookings(ctx, userID, historyLimit)
	if err != nil {
		return nil, internal("Failed to fetch dashboard history.", err)
	}
	sessions, err := s.store.ListUserSessions(ctx, userID, historyLimit)
	if err != nil {
		return nil, internal("Failed to fetch dashboard history.", err)
	}
	payments, err := s.store.ListUserPayments(ctx, userID, historyLimit)
	if err != nil {
		return nil, internal("Failed to fetch dashboard history.", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, sess := range sessions {
		if sess.SlotID != "" && !seen[sess.SlotID] {
			seen[sess.SlotID] = true
			ids = append(ids, sess.SlotID)
		}
	}

	summaries := make([]models.SlotSummary, 0, len(ids))
	if len(ids) > 0 {
		slots, err := s.store.ListSlotsByIDs(ctx, ids)
		if err != nil {
			return nil, internal("Failed to fetch dashboard history.", err)
		}
		for _, slot := range slots {
			summaries = append(summaries, models.SlotSummary{
				ID:       slot.ID,
				SlotName: slot.SlotName,
				DeviceID: slot.DeviceID,
			})
		}
	}

	return &models.HistoryResponse{
		Bookings: bookings,
		Sessions: sessions,
		Payments: payments,
		Slots:    summaries,
	}, nil
}
