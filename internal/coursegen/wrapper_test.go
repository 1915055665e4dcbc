package coursegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/artifact"
)

func TestRunStageMissingPriorCheckpoint(t *testing.T) {
	store := artifact.NewMemoryStore()
	courseID := uuid.New()

	_, err := RunStage(context.Background(), store, courseID, StagePathwayBuilding,
		func(context.Context, *AnalysisArtifact) (PathwayArtifact, error) {
			t.Fatalf("stage fn must not run without prior checkpoint")
			return PathwayArtifact{}, nil
		})
	if !IsMissingCheckpoint(err) {
		t.Fatalf("expected MissingCheckpointError, got %v", err)
	}
	var mc *MissingCheckpointError
	errors.As(err, &mc)
	if mc.Stage != StageDocumentAnalysis {
		t.Fatalf("error should name the missing stage, got %s", mc.Stage)
	}
}

func TestRunStagePersistsCheckpointOnSuccess(t *testing.T) {
	store := artifact.NewMemoryStore()
	courseID := uuid.New()

	out, err := RunStage(context.Background(), store, courseID, StageRepoIntake,
		func(context.Context, *struct{}) (IntakeArtifact, error) {
			return IntakeArtifact{RepoURL: "https://example.com/repo.git", FileCount: 3}, nil
		})
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if out.FileCount != 3 {
		t.Fatalf("unexpected artifact %+v", out)
	}

	raw, err := store.Get(context.Background(), courseID, string(StageRepoIntake))
	if err != nil {
		t.Fatalf("checkpoint missing after success: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("empty checkpoint payload")
	}
}

func TestRunStageNoCheckpointOnFailure(t *testing.T) {
	store := artifact.NewMemoryStore()
	courseID := uuid.New()

	_, err := RunStage(context.Background(), store, courseID, StageRepoIntake,
		func(context.Context, *struct{}) (IntakeArtifact, error) {
			return IntakeArtifact{}, fmt.Errorf("boom")
		})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageRepoIntake {
		t.Fatalf("expected StageError for repo_intake, got %v", err)
	}

	if _, getErr := store.Get(context.Background(), courseID, string(StageRepoIntake)); !errors.Is(getErr, artifact.ErrNotFound) {
		t.Fatalf("failed stage must not persist a checkpoint, got %v", getErr)
	}
}

func TestRunStageIdempotentCheckpoint(t *testing.T) {
	store := artifact.NewMemoryStore()
	courseID := uuid.New()
	docID := uuid.New()

	run := func() []byte {
		_, err := RunStage(context.Background(), store, courseID, StageRepoIntake,
			func(context.Context, *struct{}) (IntakeArtifact, error) {
				return IntakeArtifact{RepoURL: "r", DocumentIDs: []uuid.UUID{docID}, FileCount: 1}, nil
			})
		if err != nil {
			t.Fatalf("RunStage: %v", err)
		}
		raw, err := store.Get(context.Background(), courseID, string(StageRepoIntake))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		return raw
	}

	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Fatalf("re-running with identical input should reproduce an identical checkpoint:\n%s\n%s", first, second)
	}
}

func TestBandReporterMapsAndNeverRegresses(t *testing.T) {
	var got []int
	rec := reporterFunc(func(_ string, pct int, _ string) { got = append(got, pct) })

	br := newBandReporter(rec, StageDocumentAnalysis, 15, 45)
	br.Progress("", 0, "")
	br.Progress("", 50, "")
	br.Progress("", 25, "") // late lower report must not move the bar back
	br.Progress("", 100, "")

	want := []int{15, 30, 30, 45}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("band progress %v, want %v", got, want)
		}
	}
}

func TestBandReporterConcurrentWorkers(t *testing.T) {
	var mu sync.Mutex
	var got []int
	rec := reporterFunc(func(_ string, pct int, _ string) {
		mu.Lock()
		got = append(got, pct)
		mu.Unlock()
	})

	br := newBandReporter(rec, StageContentGeneration, 60, 100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for pct := 0; pct <= 100; pct += 10 {
				br.Progress("", pct, "")
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 8*11 {
		t.Fatalf("reported %d times, want %d", len(got), 8*11)
	}
	for _, pct := range got {
		if pct < 60 || pct > 100 {
			t.Fatalf("progress %d escaped the 60..100 band", pct)
		}
	}
	br.mu.Lock()
	last := br.last
	br.mu.Unlock()
	if last != 100 {
		t.Fatalf("floor after full reports = %d, want 100", last)
	}
}

type reporterFunc func(stage string, pct int, msg string)

func (f reporterFunc) Progress(stage string, pct int, msg string) { f(stage, pct, msg) }
