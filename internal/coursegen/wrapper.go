package coursegen

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/artifact"
)

// Reporter receives progress side effects while a stage runs. Progress
// writes must be externally visible immediately; a separate caller polls
// status concurrently with stage execution.
type Reporter interface {
	Progress(stage string, pct int, msg string)
}

type nopReporter struct{}

func (nopReporter) Progress(string, int, string) {}

// NopReporter discards progress. Test and tooling use.
var NopReporter Reporter = nopReporter{}

// bandReporter maps a stage's local 0..100 progress into the pipeline-wide
// band configured for that stage, and never lets the bar move backward.
// Stage workers report from concurrent goroutines, so the floor is kept
// under a mutex.
type bandReporter struct {
	inner Reporter
	stage Stage
	start int
	end   int

	mu   sync.Mutex
	last int
}

func newBandReporter(inner Reporter, stage Stage, start, end int) *bandReporter {
	if inner == nil {
		inner = NopReporter
	}
	return &bandReporter{inner: inner, stage: stage, start: start, end: end, last: start}
}

func (r *bandReporter) Progress(_ string, pct int, msg string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	mapped := r.start + (r.end-r.start)*pct/100

	r.mu.Lock()
	if mapped < r.last {
		mapped = r.last
	}
	r.last = mapped
	r.mu.Unlock()

	r.inner.Progress(string(r.stage), mapped, msg)
}

// RunStage executes one stage against the artifact store: it loads the
// prior stage's checkpoint, runs fn, and persists fn's artifact as this
// stage's checkpoint. On any fn error nothing is persisted, so a retry
// re-derives from the same valid prior checkpoint.
func RunStage[In any, Out any](
	ctx context.Context,
	store artifact.Store,
	courseID uuid.UUID,
	stage Stage,
	fn func(ctx context.Context, prior *In) (Out, error),
) (Out, error) {
	var zero Out

	var prior *In
	if priorStage, ok := stage.Prior(); ok {
		var in In
		if err := artifact.GetJSON(ctx, store, courseID, string(priorStage), &in); err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				return zero, &MissingCheckpointError{CourseID: courseID, Stage: priorStage}
			}
			return zero, &StageError{Stage: stage, Err: err}
		}
		prior = &in
	}

	out, err := fn(ctx, prior)
	if err != nil {
		return zero, &StageError{Stage: stage, Err: err}
	}

	if err := artifact.PutJSON(ctx, store, courseID, string(stage), out); err != nil {
		return zero, &StageError{Stage: stage, Err: err}
	}
	return out, nil
}
