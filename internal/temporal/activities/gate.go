package activities

import (
	"context"
	"fmt"

	"zlot-parking/internal/models"
	"zlot-parking/internal/parking"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// ErrTypeNotFound is the application error type for a session or device
// that no longer exists.
const ErrTypeNotFound = "NotFound"

type GateActivities struct {
	Service *parking.Service
}

func NewGateActivities(svc *parking.Service) *GateActivities {
	return &GateActivities{Service: svc}
}

// CloseSession completes the session and queues CLOSE for its gate. It
// reports false when the session had already been closed.
func (a *GateActivities) CloseSession(ctx context.Context, sessionID string) (bool, error) {
	_, closed, err := a.Service.CloseSession(ctx, sessionID, parking.TriggerTimer)
	if err != nil {
		return false, toActivityError(err)
	}
	if !closed {
		activity.GetLogger(ctx).Info("Session already closed", "sessionID", sessionID)
	}
	return closed, nil
}

// DispatchClose queues CLOSE for a gate opened without a session.
func (a *GateActivities) DispatchClose(ctx context.Context, deviceID string) (string, error) {
	cmd, err := a.Service.DispatchCommand(ctx, models.CommandClose, deviceID)
	if err != nil {
		return "", toActivityError(err)
	}
	return cmd.ID, nil
}

func toActivityError(err error) error {
	if parking.KindOf(err) == parking.KindNotFound {
		return temporal.NewNonRetryableApplicationError(parking.MessageOf(err), ErrTypeNotFound, err)
	}
	return fmt.Errorf("gate activity failed: %w", err)
}
