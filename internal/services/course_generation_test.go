package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/artifact"
	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type memCourseRepo struct {
	mu      sync.Mutex
	courses map[uuid.UUID]*types.Course
}

func newMemCourseRepo() *memCourseRepo {
	return &memCourseRepo{courses: map[uuid.UUID]*types.Course{}}
}

func (f *memCourseRepo) Create(_ context.Context, _ *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range courses {
		cp := *c
		f.courses[c.ID] = &cp
	}
	return courses, nil
}

func (f *memCourseRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Course{}
	for _, id := range ids {
		if c, ok := f.courses[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memCourseRepo) GetByOwner(_ context.Context, _ *gorm.DB, ownerUserID uuid.UUID) ([]*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Course{}
	for _, c := range f.courses {
		if c.OwnerUserID == ownerUserID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memCourseRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, _ map[string]interface{}) error {
	return nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*types.CourseGenerationRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: map[uuid.UUID]*types.CourseGenerationRun{}}
}

func (f *memRunRepo) Create(_ context.Context, _ *gorm.DB, runs []*types.CourseGenerationRun) ([]*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range runs {
		cp := *r
		f.runs[r.ID] = &cp
	}
	return runs, nil
}

func (f *memRunRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.CourseGenerationRun{}
	for _, id := range ids {
		if r, ok := f.runs[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memRunRepo) GetLatestByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.CourseGenerationRun
	for _, r := range f.runs {
		if r.CourseID != courseID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			cp := *r
			latest = &cp
		}
	}
	return latest, nil
}

func (f *memRunRepo) ClaimNextRunnable(_ context.Context, _ *gorm.DB, _ int, _ time.Duration) (*types.CourseGenerationRun, error) {
	return nil, nil
}

func (f *memRunRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		applyUpdates(r, updates)
	}
	return nil
}

func (f *memRunRepo) UpdateFieldsUnlessStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if r.Status == s {
			return false, nil
		}
	}
	applyUpdates(r, updates)
	return true, nil
}

func (f *memRunRepo) Heartbeat(_ context.Context, _ *gorm.DB, _ uuid.UUID) error { return nil }

func applyUpdates(r *types.CourseGenerationRun, updates map[string]interface{}) {
	if v, ok := updates["status"].(string); ok {
		r.Status = v
	}
	if v, ok := updates["error"].(string); ok {
		r.Error = v
	}
	if v, ok := updates["current_stage"].(string); ok {
		r.CurrentStage = v
	}
	if v, ok := updates["attempts"].(int); ok {
		r.Attempts = v
	}
}

func newTestService(t *testing.T) (CourseGenerationService, *memCourseRepo, *memRunRepo) {
	t.Helper()
	log := testLogger(t)
	courseRepo := newMemCourseRepo()
	runRepo := newMemRunRepo()
	store := artifact.NewMemoryStore()
	orch := coursegen.NewOrchestrator(log, runRepo, store, nil, nil, nil, nil)
	svc := NewCourseGenerationService(nil, log, courseRepo, runRepo, orch, nil, nil)
	return svc, courseRepo, runRepo
}

func TestEnqueueRequiresRepo(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Enqueue(context.Background(), uuid.New(), EnqueueInput{}); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestEnqueueCreatesCourseAndPendingRun(t *testing.T) {
	svc, courseRepo, _ := newTestService(t)
	userID := uuid.New()

	course, run, err := svc.Enqueue(context.Background(), userID, EnqueueInput{
		RepoURL: "https://example.com/repo.git",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if course.OwnerUserID != userID {
		t.Fatalf("owner = %s, want %s", course.OwnerUserID, userID)
	}
	if course.TargetComplexity != "intermediate" {
		t.Fatalf("default complexity = %q", course.TargetComplexity)
	}
	if run.Status != "pending" || run.CurrentStage != string(coursegen.StageRepoIntake) {
		t.Fatalf("run = %s/%s, want pending/repo_intake", run.Status, run.CurrentStage)
	}

	stored, err := courseRepo.GetByIDs(context.Background(), nil, []uuid.UUID{course.ID})
	if err != nil || len(stored) != 1 {
		t.Fatalf("course not stored: %v", err)
	}
}

func TestEnqueueExportRequiresOwnership(t *testing.T) {
	svc, courseRepo, _ := newTestService(t)
	owner := uuid.New()
	course := &types.Course{ID: uuid.New(), OwnerUserID: owner}
	if _, err := courseRepo.Create(context.Background(), nil, []*types.Course{course}); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	if _, err := svc.EnqueueExport(context.Background(), uuid.New(), course.ID); err == nil {
		t.Fatalf("foreign user allowed to export")
	}

	run, err := svc.EnqueueExport(context.Background(), owner, course.ID)
	if err != nil {
		t.Fatalf("EnqueueExport: %v", err)
	}
	if run.CurrentStage != string(coursegen.StageCompleted) {
		t.Fatalf("stage = %q, want completed", run.CurrentStage)
	}
	if payload := string(run.Payload); payload != `{"run_type":"course_export"}` {
		t.Fatalf("payload = %s", payload)
	}
}

func TestCheckpointRejectsUnknownStage(t *testing.T) {
	svc, courseRepo, _ := newTestService(t)
	owner := uuid.New()
	course := &types.Course{ID: uuid.New(), OwnerUserID: owner}
	if _, err := courseRepo.Create(context.Background(), nil, []*types.Course{course}); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	if _, err := svc.Checkpoint(context.Background(), owner, course.ID, "bogus_stage"); err == nil {
		t.Fatalf("unknown stage accepted")
	}
	if _, err := svc.Checkpoint(context.Background(), owner, course.ID, "completed"); err == nil {
		t.Fatalf("completed accepted as checkpoint stage")
	}
}

func TestStatusWithoutRun(t *testing.T) {
	svc, courseRepo, _ := newTestService(t)
	owner := uuid.New()
	course := &types.Course{ID: uuid.New(), OwnerUserID: owner}
	if _, err := courseRepo.Create(context.Background(), nil, []*types.Course{course}); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	if _, err := svc.Status(context.Background(), owner, course.ID); err == nil {
		t.Fatalf("expected error when no run exists")
	}
}
