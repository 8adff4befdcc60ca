package parking

import (
	"context"
	"errors"
	"strings"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/guregu/null.v4"
)

// Command addressing paths.
const (
	PathDeviceID  = "device_id"
	PathDeviceRef = "device_ref"
)

const msgCommandFailed = "Command insert failed."

// dispatch queues command for deviceID on st. The insert is first keyed by
// the device string; if that fails the device row is resolved and the
// insert retried once keyed by its ref.
func (s *Service) dispatch(ctx context.Context, st store.Store, command, deviceID string, eff *effects) (*models.Command, error) {
	ctx, span := s.tracer.Start(ctx, "parking.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", deviceID), attribute.String("command", command))

	cmd := &models.Command{
		DeviceID: null.StringFrom(deviceID),
		Command:  command,
	}
	primaryErr := st.CreateCommand(ctx, cmd)
	if primaryErr == nil {
		eff.queued(cmd, deviceID, PathDeviceID)
		return cmd, nil
	}
	if errors.Is(primaryErr, store.ErrConflict) {
		return nil, primaryErr
	}

	device, err := st.GetDeviceByDeviceID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, upstream(msgCommandFailed, primaryErr)
	}
	if err != nil {
		return nil, upstream(msgCommandFailed, err)
	}

	cmd = &models.Command{
		DeviceRef: null.StringFrom(device.ID),
		Command:   command,
	}
	if err := st.CreateCommand(ctx, cmd); err != nil {
		return nil, upstream(msgCommandFailed, err)
	}

	s.log(ctx).Debug("command queued by device ref", "device_id", deviceID, "device_ref", device.ID)
	eff.queued(cmd, deviceID, PathDeviceRef)
	return cmd, nil
}

// DispatchCommand queues a gate command outside any booking flow. A failed
// insert is an internal error here; only booking flows report it as upstream.
func (s *Service) DispatchCommand(ctx context.Context, command, deviceID string) (*models.Command, error) {
	deviceID = s.deviceOr(strings.TrimSpace(deviceID))

	eff := &effects{}
	cmd, err := s.dispatch(ctx, s.store, command, deviceID, eff)
	if err != nil {
		return nil, demoteUpstream(err)
	}
	s.flush(ctx, eff)
	return cmd, nil
}

// OpenGate queues OPEN for deviceID and arms a gate-only auto close. It
// returns the device id the command was addressed to.
func (s *Service) OpenGate(ctx context.Context, deviceID string) (string, error) {
	deviceID = s.deviceOr(strings.TrimSpace(deviceID))

	if _, err := s.DispatchCommand(ctx, models.CommandOpen, deviceID); err != nil {
		return deviceID, err
	}

	if err := s.scheduler.ScheduleGateClose(ctx, deviceID, s.sessionDuration); err != nil {
		s.log(ctx).Error("failed to arm gate auto-close", "device_id", deviceID, "error", err)
	}
	return deviceID, nil
}

func (s *Service) CloseGate(ctx context.Context, deviceID string) (string, error) {
	deviceID = s.deviceOr(strings.TrimSpace(deviceID))

	_, err := s.DispatchCommand(ctx, models.CommandClose, deviceID)
	return deviceID, err
}

func demoteUpstream(err error) error {
	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindUpstream {
		return wrapError(KindInternal, perr.Message, perr.Err)
	}
	return err
}
