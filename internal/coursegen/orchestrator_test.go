package coursegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/artifact"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type orchFixture struct {
	orch     *Orchestrator
	runRepo  *fakeRunRepo
	docRepo  *fakeDocRepo
	pathRepo *fakePathwayRepo
	store    *artifact.MemoryStore
	ai       *scriptedAI
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	log := testLogger(t)
	runRepo := newFakeRunRepo()
	docRepo := newFakeDocRepo()
	pathRepo := newFakePathwayRepo()
	contentRepo := newFakeContentRepo()
	store := artifact.NewMemoryStore()
	ai := &scriptedAI{}

	orch := NewOrchestrator(
		log,
		runRepo,
		store,
		NewRepoIntake(log, docRepo, nil),
		NewDocumentAnalyzer(log, ai, docRepo),
		NewPathwayGenerator(log, ai, docRepo, pathRepo),
		NewContentGenerator(log, ai, docRepo, pathRepo, contentRepo),
	)
	return &orchFixture{orch: orch, runRepo: runRepo, docRepo: docRepo, pathRepo: pathRepo, store: store, ai: ai}
}

func seedRepoDir(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	rels := []string{"README.md", "docs/guide.md", "src/main.go"}
	for _, rel := range rels {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("content of "+rel), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir, rels
}

func scriptFullPipeline(f *orchFixture, paths []string) {
	f.ai.generateJSON = func(schemaName, _, user string) (map[string]any, error) {
		switch schemaName {
		case "document_analysis":
			return map[string]any{
				"title":               "Doc",
				"doc_type":            "guide",
				"complexity_level":    "beginner",
				"key_concepts":        []any{"concept"},
				"learning_objectives": []any{"objective"},
				"summary":             "summary",
			}, nil
		case "learning_pathway":
			return pathwayDraftMap("mod", paths), nil
		case "module_content":
			return contentDraftMap("mod"), nil
		case "pathway_verdict", "content_verdict":
			return map[string]any{"severity": "none", "critique": ""}, nil
		}
		return nil, fmt.Errorf("unexpected schema %s", schemaName)
	}
}

func TestOrchestratorFullPipeline(t *testing.T) {
	f := newOrchFixture(t)
	repoDir, rels := seedRepoDir(t)
	scriptFullPipeline(f, rels)

	ctx := context.Background()
	run, err := f.orch.Start(ctx, uuid.New(), uuid.New(), IntakeParams{
		RepoURL:          "https://example.com/repo.git",
		RepoDir:          repoDir,
		TargetComplexity: "intermediate",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.CurrentStage != string(StageRepoIntake) || run.Status != "pending" {
		t.Fatalf("fresh run should be pending at repo_intake, got %+v", run)
	}

	for i := 0; i < len(Ordered()); i++ {
		next, advErr := f.orch.Advance(ctx, run, NopReporter)
		if advErr != nil {
			t.Fatalf("Advance at %s: %v", run.CurrentStage, advErr)
		}
		if string(next) != run.CurrentStage {
			t.Fatalf("Advance should update the in-memory run, got %s vs %s", next, run.CurrentStage)
		}
	}
	if run.CurrentStage != string(StageCompleted) {
		t.Fatalf("pipeline should finish at completed, got %s", run.CurrentStage)
	}

	for _, stage := range Ordered() {
		if _, err := f.store.Get(ctx, run.CourseID, string(stage)); err != nil {
			t.Fatalf("missing checkpoint for %s: %v", stage, err)
		}
	}

	stored, _ := f.runRepo.GetByIDs(ctx, nil, []uuid.UUID{run.ID})
	if stored[0].CurrentStage != string(StageCompleted) {
		t.Fatalf("stage pointer not durable: %+v", stored[0])
	}
}

func TestOrchestratorAdvanceMissingCheckpointLeavesStage(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	run, err := f.orch.Start(ctx, uuid.New(), uuid.New(), IntakeParams{RepoDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Jump the pointer ahead without any checkpoints existing.
	if err := f.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{"current_stage": string(StagePathwayBuilding)}); err != nil {
		t.Fatalf("seed stage: %v", err)
	}
	run.CurrentStage = string(StagePathwayBuilding)

	_, advErr := f.orch.Advance(ctx, run, NopReporter)
	if !IsMissingCheckpoint(advErr) {
		t.Fatalf("expected MissingCheckpointError, got %v", advErr)
	}

	stored, _ := f.runRepo.GetByIDs(ctx, nil, []uuid.UUID{run.ID})
	if stored[0].CurrentStage != string(StagePathwayBuilding) {
		t.Fatalf("missing checkpoint must not mutate current_stage, got %s", stored[0].CurrentStage)
	}
}

func TestOrchestratorCancel(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()
	courseID := uuid.New()

	run, err := f.orch.Start(ctx, uuid.New(), courseID, IntakeParams{RepoDir: "unused"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancelled, err := f.orch.Cancel(ctx, courseID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != "failed" || cancelled.Error != CancelledMessage {
		t.Fatalf("expected failed/%q, got %s/%q", CancelledMessage, cancelled.Status, cancelled.Error)
	}

	// terminal runs stay as they are
	if err := f.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{"status": "succeeded", "error": ""}); err != nil {
		t.Fatalf("seed succeeded: %v", err)
	}
	if _, err := f.orch.Cancel(ctx, courseID); err != nil {
		t.Fatalf("Cancel succeeded run: %v", err)
	}
	stored, _ := f.runRepo.GetByIDs(ctx, nil, []uuid.UUID{run.ID})
	if stored[0].Status != "succeeded" {
		t.Fatalf("cancel must not overwrite a terminal run, got %s", stored[0].Status)
	}
}

func TestOrchestratorRetryOnlyFailedRuns(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()
	courseID := uuid.New()

	run, err := f.orch.Start(ctx, uuid.New(), courseID, IntakeParams{RepoDir: "unused"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.orch.Retry(ctx, courseID); err == nil {
		t.Fatalf("retry of a pending run must be rejected")
	}

	if err := f.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{"status": "failed", "error": "stage repo_intake: boom", "attempts": 3}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	retried, err := f.orch.Retry(ctx, courseID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != "pending" || retried.Error != "" || retried.Attempts != 0 {
		t.Fatalf("retry should reset the run for re-dispatch, got %+v", retried)
	}
	if retried.CurrentStage != string(StageRepoIntake) {
		t.Fatalf("retry must keep the same stage, got %s", retried.CurrentStage)
	}
}

func TestCancelMidDebateWritesNoCheckpoint(t *testing.T) {
	f := newOrchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	courseID := uuid.New()
	docRepo := f.docRepo
	ids := seedCorpus(t, docRepo, courseID, "a.md", "b.md", "c.md")

	// Put a valid analysis checkpoint in place so pathway_building can load it.
	if err := artifact.PutJSON(ctx, f.store, courseID, string(StageDocumentAnalysis), AnalysisArtifact{DocumentIDs: ids}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	f.ai.generateJSON = func(schemaName, _, _ string) (map[string]any, error) {
		switch schemaName {
		case "learning_pathway":
			return pathwayDraftMap("mod", []string{"a.md", "b.md", "c.md"}), nil
		case "pathway_verdict":
			// cancellation lands between round 1 and round 2
			cancel()
			return map[string]any{"severity": "blocking", "critique": "again"}, nil
		}
		return nil, fmt.Errorf("unexpected schema %s", schemaName)
	}

	run := &types.CourseGenerationRun{
		ID:           uuid.New(),
		CourseID:     courseID,
		Status:       "running",
		CurrentStage: string(StagePathwayBuilding),
	}
	if _, err := f.runRepo.Create(context.Background(), nil, []*types.CourseGenerationRun{run}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	_, advErr := f.orch.Advance(ctx, run, NopReporter)
	if advErr == nil {
		t.Fatalf("cancelled advance must fail")
	}

	if _, err := f.store.Get(context.Background(), courseID, string(StagePathwayBuilding)); err == nil {
		t.Fatalf("cancelled stage must not persist a checkpoint")
	}
}
