package workflows

import (
	"errors"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/temporal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
}

// SessionCloseWorkflow sleeps until the session expires, then closes it.
// Returns whether this run performed the close.
func SessionCloseWorkflow(ctx workflow.Context, input models.SessionCloseInput) (bool, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SessionCloseWorkflow started", "sessionID", input.SessionID, "expiresAt", input.ExpiresAt)

	if wait := input.ExpiresAt.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions())

	var gateActivities *activities.GateActivities
	var closed bool
	err := workflow.ExecuteActivity(ctx, gateActivities.CloseSession, input.SessionID).Get(ctx, &closed)
	if isNotFound(err) {
		logger.Warn("Session vanished before close", "sessionID", input.SessionID)
		return false, nil
	}
	if err != nil {
		logger.Error("Failed to auto-complete session", "sessionID", input.SessionID, "error", err)
		return false, err
	}

	logger.Info("Session close finished", "sessionID", input.SessionID, "closed", closed)
	return closed, nil
}

// GateAutoCloseWorkflow queues CLOSE for a gate after a delay.
func GateAutoCloseWorkflow(ctx workflow.Context, input models.GateCloseInput) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("GateAutoCloseWorkflow started", "deviceID", input.DeviceID, "delay", input.Delay)

	if input.Delay > 0 {
		if err := workflow.Sleep(ctx, input.Delay); err != nil {
			return "", err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions())

	var gateActivities *activities.GateActivities
	var commandID string
	if err := workflow.ExecuteActivity(ctx, gateActivities.DispatchClose, input.DeviceID).Get(ctx, &commandID); err != nil {
		logger.Error("Failed to auto-close gate", "deviceID", input.DeviceID, "error", err)
		return "", err
	}
	return commandID, nil
}

func isNotFound(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeNotFound
}
