package runflow

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow drives one course generation run to a terminal status. The
// workflow ID is the run ID; each tick executes the run's handler against
// the durable row, so a worker crash just means the next tick resumes from
// the stage the pointer is parked at.
func Workflow(ctx workflow.Context) error {
	runID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if runID == "" {
		return fmt.Errorf("runflow: missing run_id")
	}

	const (
		pollInterval         = 2 * time.Second
		continueTickLimit    = 2000
		continueHistoryLimit = 15000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         nil, // run retries are an external, explicit action
	})

	tickCount := 0
	for {
		tickCount++
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, runID).Get(ctx, &out); err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(out.Status)) {
		case "succeeded":
			return nil
		case "failed":
			return fmt.Errorf("run failed (stage=%s)", strings.TrimSpace(out.Stage))
		default:
			if err := workflow.Sleep(ctx, pollInterval); err != nil {
				return err
			}
			if shouldContinueAsNew(ctx, tickCount, continueTickLimit, continueHistoryLimit) {
				return workflow.NewContinueAsNewError(ctx, Workflow)
			}
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks, maxHistory int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
