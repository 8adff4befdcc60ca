package parking

import (
	"context"
	"errors"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"
)

// SlotQuery selects the slot a booking or session will use.
type SlotQuery struct {
	SlotID              string
	DeviceID            string
	FallbackToAnyActive bool
}

// ResolveActiveSlot returns the slot to use, or nil when none qualifies.
// An explicit inactive slot is an InvalidState error; it is never
// returned.
func ResolveActiveSlot(ctx context.Context, slots store.SlotStore, q SlotQuery) (*models.ParkingSlot, error) {
	if q.SlotID != "" {
		slot, err := slots.GetSlot(ctx, q.SlotID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, internal("Unable to load parking slot.", err)
		}
		if !slot.IsActive {
			return nil, newError(KindInvalidState, "Selected parking slot is inactive.")
		}
		return slot, nil
	}

	slot, err := slots.NewestActiveSlot(ctx, q.DeviceID)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, internal("Unable to load parking slot.", err)
	}
	if !q.FallbackToAnyActive {
		return nil, nil
	}

	slot, err = slots.NewestActiveSlot(ctx, "")
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("Unable to load parking slot.", err)
	}
	return slot, nil
}
