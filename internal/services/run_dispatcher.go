package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	enums "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/temporalx"
	"github.com/moarshy/courseforge-backend/internal/temporalx/runflow"
)

// RunDispatcher hands a freshly enqueued run to an execution plane. The DB
// polling worker needs no dispatch (it discovers pending rows itself), so
// that mode uses the noop dispatcher.
type RunDispatcher interface {
	Dispatch(ctx context.Context, runID uuid.UUID) error
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, uuid.UUID) error { return nil }

func NewNoopDispatcher() RunDispatcher { return noopDispatcher{} }

type temporalDispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewTemporalDispatcher(log *logger.Logger, tc temporalsdkclient.Client) (RunDispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	cfg := temporalx.LoadConfig()
	tq := strings.TrimSpace(cfg.TaskQueue)
	if tq == "" {
		tq = "courseforge"
	}
	return &temporalDispatcher{
		log:       log.With("service", "TemporalDispatcher"),
		tc:        tc,
		taskQueue: tq,
	}, nil
}

// Dispatch starts the run workflow keyed by the run ID. Re-dispatching the
// same run (external retry) reuses the ID with a fresh workflow execution.
func (d *temporalDispatcher) Dispatch(ctx context.Context, runID uuid.UUID) error {
	if runID == uuid.Nil {
		return fmt.Errorf("run id required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    runID.String(),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	if _, err := d.tc.ExecuteWorkflow(ctx, opts, runflow.WorkflowName); err != nil {
		return fmt.Errorf("start run workflow: %w", err)
	}
	return nil
}
