// Package temporalworker hosts the Temporal worker that executes course
// generation runs. It is an alternative dispatch plane to the DB-polling
// worker; both share the same handler registry and runtime contract.
package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"gorm.io/gorm"

	jobrt "github.com/moarshy/courseforge-backend/internal/jobs/runtime"
	"github.com/moarshy/courseforge-backend/internal/platform/envutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/temporalx"
	"github.com/moarshy/courseforge-backend/internal/temporalx/runflow"
)

type Runner struct {
	log *logger.Logger

	tc       temporalsdkclient.Client
	db       *gorm.DB
	runRepo  repos.CourseGenerationRunRepo
	registry *jobrt.Registry
	notify   sse.RunNotifier
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	db *gorm.DB,
	runRepo repos.CourseGenerationRunRepo,
	registry *jobrt.Registry,
	notify sse.RunNotifier,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || runRepo == nil || registry == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:      log,
		tc:       tc,
		db:       db,
		runRepo:  runRepo,
		registry: registry,
		notify:   notify,
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}

	cfg := temporalx.LoadConfig()
	if r.log != nil {
		r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	}

	if envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
		if err := temporalx.EnsureNamespace(ctx, cfg, r.log); err != nil && r.log != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	maxWait := envutil.DurationSeconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		w := r.newWorker(cfg)
		startErr := w.Start()
		if startErr == nil {
			if ctx != nil {
				go func() {
					<-ctx.Done()
					w.Stop()
				}()
			}
			if r.log != nil {
				r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			}
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
			_ = temporalx.EnsureNamespace(ctx, cfg, r.log)
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		if r.log != nil {
			r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		}
		time.Sleep(250 * time.Millisecond * time.Duration(attempt))
	}
}

func (r *Runner) newWorker(cfg temporalx.Config) worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &runflow.Activities{
		Log:      r.log,
		DB:       r.db,
		Runs:     r.runRepo,
		Registry: r.registry,
		Notify:   r.notify,
	}

	w.RegisterWorkflowWithOptions(runflow.Workflow, workflow.RegisterOptions{Name: runflow.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: runflow.ActivityTick})
	return w
}
