package parking

import (
	"context"
	"errors"
	"strings"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"
)

// Poll results, used as metric labels.
const (
	pollCommand       = "command"
	pollEmpty         = "empty"
	pollUnknownDevice = "unknown_device"
)

// Poll records a heartbeat for deviceID and returns its newest unexecuted
// command, or nil when nothing is pending. Ref-addressed commands win over
// string-addressed ones.
func (s *Service) Poll(ctx context.Context, deviceID string) (*models.Command, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, newError(KindValidation, "device_id required")
	}

	device, err := s.store.GetDeviceByDeviceID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.DevicePolls.WithLabelValues(pollUnknownDevice).Inc()
		return nil, newError(KindNotFound, "Device not found")
	}
	if err != nil {
		return nil, internal("Server error", err)
	}

	if err := s.store.TouchDevice(ctx, device.ID, s.now().UTC()); err != nil {
		s.log(ctx).Warn("failed to record device heartbeat", "device_id", deviceID, "error", err)
	}

	cmd, err := s.store.NextCommandByRef(ctx, device.ID)
	if err == nil {
		s.metrics.DevicePolls.WithLabelValues(pollCommand).Inc()
		return cmd, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log(ctx).Warn("ref command lookup failed", "device_id", deviceID, "error", err)
	}

	cmd, err = s.store.NextCommandByDeviceID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.DevicePolls.WithLabelValues(pollEmpty).Inc()
		return nil, nil
	}
	if err != nil {
		return nil, internal("Server error", err)
	}

	s.metrics.DevicePolls.WithLabelValues(pollCommand).Inc()
	return cmd, nil
}

// Ack marks a command executed and records a heartbeat for the device it
// was addressed to. The caller is not checked against that device.
func (s *Service) Ack(ctx context.Context, commandID string) error {
	commandID = strings.TrimSpace(commandID)
	if commandID == "" {
		return newError(KindValidation, "command_id required")
	}

	cmd, err := s.store.GetCommand(ctx, commandID)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "Command not found")
	}
	if err != nil {
		return internal("Server error", err)
	}

	if err := s.store.MarkCommandExecuted(ctx, commandID); err != nil {
		return internal("Unable to mark command executed.", err)
	}

	now := s.now().UTC()
	var deviceID string
	switch {
	case cmd.DeviceRef.Valid && cmd.DeviceRef.String != "":
		err = s.store.TouchDevice(ctx, cmd.DeviceRef.String, now)
		deviceID = cmd.DeviceRef.String
		if d, lookupErr := s.store.GetDevice(ctx, cmd.DeviceRef.String); lookupErr == nil {
			deviceID = d.DeviceID
		}
	case cmd.DeviceID.Valid && cmd.DeviceID.String != "":
		err = s.store.TouchDeviceByDeviceID(ctx, cmd.DeviceID.String, now)
		deviceID = cmd.DeviceID.String
	}
	if err != nil {
		s.log(ctx).Warn("failed to record device heartbeat", "command_id", commandID, "error", err)
	}

	s.flush(ctx, &effects{events: []models.Event{{
		Type:      models.EventCommandAcknowledged,
		DeviceID:  deviceID,
		CommandID: commandID,
		Command:   cmd.Command,
	}}})
	return nil
}
