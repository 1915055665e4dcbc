package runflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/coursegen"
	jobrt "github.com/moarshy/courseforge-backend/internal/jobs/runtime"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type Activities struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Runs     repos.CourseGenerationRunRepo
	Registry *jobrt.Registry
	Notify   sse.RunNotifier
}

// Tick executes the run's handler once. A terminal row short-circuits, so
// retried ticks after a crash are idempotent.
func (a *Activities) Tick(ctx context.Context, runID string) (TickResult, error) {
	res := TickResult{RunID: strings.TrimSpace(runID)}
	if a == nil || a.DB == nil || a.Runs == nil || a.Registry == nil {
		return res, fmt.Errorf("runflow: activity not configured")
	}

	parsedRunID, err := uuid.Parse(res.RunID)
	if err != nil || parsedRunID == uuid.Nil {
		return res, fmt.Errorf("runflow: invalid run_id")
	}

	run, err := a.loadRun(ctx, parsedRunID)
	if err != nil {
		return res, err
	}
	if run == nil {
		return res, fmt.Errorf("runflow: run not found")
	}

	status := strings.ToLower(strings.TrimSpace(run.Status))
	if status == "succeeded" || status == "failed" {
		if a.Notify != nil && run.OwnerUserID != uuid.Nil {
			if status == "succeeded" {
				a.Notify.RunDone(run.OwnerUserID, run)
			} else {
				a.Notify.RunFailed(run.OwnerUserID, run, run.CurrentStage, strings.TrimSpace(run.Error))
			}
		}
		return a.fill(res, run), nil
	}

	stopHB := a.startHeartbeat(ctx, parsedRunID)
	defer stopHB()

	// Claim: mark running unless an external cancel already landed.
	now := time.Now()
	ok, err := a.Runs.UpdateFieldsUnlessStatus(ctx, a.DB, parsedRunID, []string{"failed", "succeeded"}, map[string]interface{}{
		"status":       "running",
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
	})
	if err != nil {
		return res, err
	}
	if !ok {
		// lost the race to cancel; reload and report the terminal state
		if run, err = a.loadRun(ctx, parsedRunID); err != nil || run == nil {
			return res, fmt.Errorf("runflow: run vanished during claim")
		}
		return a.fill(res, run), nil
	}
	run.Status = "running"
	run.Attempts++
	run.LockedAt = &now
	run.HeartbeatAt = &now

	runType := jobrt.RunTypeOf(run)
	jc := jobrt.NewContext(ctx, a.DB, run, a.Runs, a.Notify)
	if h, found := a.Registry.Get(runType); !found {
		jc.Fail("dispatch", fmt.Errorf("no handler registered for run_type=%s", runType))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if a.Log != nil {
						a.Log.Error("Run handler panic", "run_id", parsedRunID, "run_type", runType, "panic", r)
					}
					jc.Fail("panic", fmt.Errorf("handler panic: %v", r))
				}
			}()
			if runErr := h.Run(jc); runErr != nil {
				jc.Fail(run.CurrentStage, runErr)
			}
		}()
	}

	updated, err := a.loadRun(ctx, parsedRunID)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("runflow: run not found after tick")
	}
	if updated.Error == coursegen.CancelledMessage && a.Log != nil {
		a.Log.Info("Run cancelled during tick", "run_id", parsedRunID)
	}
	return a.fill(res, updated), nil
}

func (a *Activities) fill(res TickResult, run *types.CourseGenerationRun) TickResult {
	res.Status = run.Status
	res.Stage = run.CurrentStage
	res.Progress = run.Progress
	return res
}

func (a *Activities) loadRun(ctx context.Context, runID uuid.UUID) (*types.CourseGenerationRun, error) {
	rows, err := a.Runs.GetByIDs(ctx, a.DB, []uuid.UUID{runID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, nil
	}
	return rows[0], nil
}

func (a *Activities) startHeartbeat(ctx context.Context, runID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				if runID != uuid.Nil {
					_ = a.Runs.Heartbeat(ctx, a.DB, runID)
				}
			}
		}
	}()
	return func() { close(done) }
}
