// Package worker claims runnable course generation runs from the database
// and dispatches them to registered pipeline handlers. Claims use SKIP
// LOCKED so any number of worker replicas can poll the same table.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/jobs/runtime"
	"github.com/moarshy/courseforge-backend/internal/platform/envutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.CourseGenerationRunRepo
	registry *runtime.Registry
	notify   sse.RunNotifier

	maxAttempts  int
	staleRunning time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.CourseGenerationRunRepo, registry *runtime.Registry, notify sse.RunNotifier) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "RunWorker"),
		repo:         repo,
		registry:     registry,
		notify:       notify,
		maxAttempts:  envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		staleRunning: envutil.DurationSeconds("WORKER_STALE_RUNNING_SECONDS", 120),
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run, err := w.repo.ClaimNextRunnable(ctx, w.db, w.maxAttempts, w.staleRunning)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if run == nil {
					continue
				}
				w.processRun(ctx, run)
			}
		}
	}()
}

func (w *Worker) processRun(ctx context.Context, run *types.CourseGenerationRun) {
	runType := runtime.RunTypeOf(run)
	h, ok := w.registry.Get(runType)
	if !ok {
		w.log.Warn("No handler registered for run_type", "run_type", runType, "run_id", run.ID)
		jc := runtime.NewContext(ctx, w.db, run, w.repo, w.notify)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for run_type=%s", runType))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopHeartbeat := w.startHeartbeat(runCtx, run.ID)
	defer stopHeartbeat()
	stopWatcher := w.startCancelWatcher(runCtx, run.ID, cancel)
	defer stopWatcher()

	jc := runtime.NewContext(runCtx, w.db, run, w.repo, w.notify)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Run handler panic", "run_id", run.ID, "run_type", runType, "panic", r)
				jc.Fail("panic", fmt.Errorf("handler panic: %v", r))
				runErr = nil
			}
		}()
		runErr = h.Run(jc)
	}()
	if runErr != nil {
		// Handlers normally call Fail themselves; this is the fallback for
		// an error that escaped.
		jc.Fail(run.CurrentStage, runErr)
	}
}

// startHeartbeat keeps the claimed run's heartbeat fresh so other workers
// do not treat it as stale while the handler is executing.
func (w *Worker) startHeartbeat(ctx context.Context, runID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := w.repo.Heartbeat(ctx, w.db, runID); err != nil {
					w.log.Warn("Heartbeat failed", "run_id", runID, "error", err)
				}
			}
		}
	}()
	closed := false
	return func() {
		if !closed {
			closed = true
			close(done)
		}
	}
}

// startCancelWatcher polls the run row and cancels the handler context once
// an external cancel has flipped the run to failed. Stage code observes the
// context between debate rounds and between modules.
func (w *Worker) startCancelWatcher(ctx context.Context, runID uuid.UUID, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				rows, err := w.repo.GetByIDs(ctx, w.db, []uuid.UUID{runID})
				if err != nil || len(rows) == 0 {
					continue
				}
				if rows[0].Status == "failed" {
					if rows[0].Error == coursegen.CancelledMessage {
						w.log.Info("Run cancelled externally; stopping handler", "run_id", runID)
					}
					cancel()
					return
				}
			}
		}
	}()
	closed := false
	return func() {
		if !closed {
			closed = true
			close(done)
		}
	}
}
