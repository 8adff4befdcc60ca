// Package temporal arms delayed gate closes as Temporal workflows so they
// survive server restarts.
package temporal

import (
	"context"
	"fmt"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/parking"
	"zlot-parking/internal/temporal/workflows"

	"go.temporal.io/sdk/client"
)

// WorkflowStarter is the part of client.Client the scheduler uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

type Scheduler struct {
	client    WorkflowStarter
	taskQueue string
	now       func() time.Time
}

func NewScheduler(c WorkflowStarter, taskQueue string) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue, now: time.Now}
}

func SessionCloseWorkflowID(sessionID string) string {
	return "session-close-" + sessionID
}

func GateCloseWorkflowID(deviceID string, at time.Time) string {
	return fmt.Sprintf("gate-close-%s-%d", deviceID, at.UnixMilli())
}

func (s *Scheduler) ScheduleSessionClose(ctx context.Context, sessionID string, at time.Time) error {
	options := client.StartWorkflowOptions{
		ID:        SessionCloseWorkflowID(sessionID),
		TaskQueue: s.taskQueue,
	}
	input := models.SessionCloseInput{SessionID: sessionID, ExpiresAt: at}

	if _, err := s.client.ExecuteWorkflow(ctx, options, workflows.SessionCloseWorkflow, input); err != nil {
		return fmt.Errorf("failed to start session close workflow: %w", err)
	}
	return nil
}

func (s *Scheduler) ScheduleGateClose(ctx context.Context, deviceID string, after time.Duration) error {
	options := client.StartWorkflowOptions{
		ID:        GateCloseWorkflowID(deviceID, s.now()),
		TaskQueue: s.taskQueue,
	}
	input := models.GateCloseInput{DeviceID: deviceID, Delay: after}

	if _, err := s.client.ExecuteWorkflow(ctx, options, workflows.GateAutoCloseWorkflow, input); err != nil {
		return fmt.Errorf("failed to start gate close workflow: %w", err)
	}
	return nil
}

var _ parking.CloseScheduler = (*Scheduler)(nil)
