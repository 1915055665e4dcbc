package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/types"
)

// fakeRunRepo holds a single run and applies the same status guard the real
// repo enforces with SQL.
type fakeRunRepo struct {
	mu  sync.Mutex
	run *types.CourseGenerationRun
}

func newFakeRunRepo(run *types.CourseGenerationRun) *fakeRunRepo {
	return &fakeRunRepo{run: run}
}

func (f *fakeRunRepo) Create(_ context.Context, _ *gorm.DB, runs []*types.CourseGenerationRun) ([]*types.CourseGenerationRun, error) {
	return runs, nil
}

func (f *fakeRunRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if f.run != nil && f.run.ID == id {
			cp := *f.run
			return []*types.CourseGenerationRun{&cp}, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) GetLatestByCourseID(_ context.Context, _ *gorm.DB, _ uuid.UUID) (*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil {
		return nil, nil
	}
	cp := *f.run
	return &cp, nil
}

func (f *fakeRunRepo) ClaimNextRunnable(_ context.Context, _ *gorm.DB, _ int, _ time.Duration) (*types.CourseGenerationRun, error) {
	return nil, nil
}

func (f *fakeRunRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil || f.run.ID != id {
		return fmt.Errorf("run %s not found", id)
	}
	applyRunUpdates(f.run, updates)
	return nil
}

func (f *fakeRunRepo) UpdateFieldsUnlessStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil || f.run.ID != id {
		return false, nil
	}
	for _, s := range disallowed {
		if f.run.Status == s {
			return false, nil
		}
	}
	applyRunUpdates(f.run, updates)
	return true, nil
}

func (f *fakeRunRepo) Heartbeat(_ context.Context, _ *gorm.DB, _ uuid.UUID) error { return nil }

func applyRunUpdates(run *types.CourseGenerationRun, updates map[string]interface{}) {
	if v, ok := updates["status"].(string); ok {
		run.Status = v
	}
	if v, ok := updates["error"].(string); ok {
		run.Error = v
	}
	if v, ok := updates["progress"].(int); ok {
		run.Progress = v
	}
	if v, ok := updates["result"].(datatypes.JSON); ok {
		run.Result = v
	}
}

// recordingNotifier counts the events it saw.
type recordingNotifier struct {
	mu       sync.Mutex
	progress int
	failed   int
	done     int
}

func (n *recordingNotifier) RunCreated(uuid.UUID, *types.CourseGenerationRun) {}

func (n *recordingNotifier) RunProgress(uuid.UUID, *types.CourseGenerationRun, string, int, string) {
	n.mu.Lock()
	n.progress++
	n.mu.Unlock()
}

func (n *recordingNotifier) RunFailed(uuid.UUID, *types.CourseGenerationRun, string, string) {
	n.mu.Lock()
	n.failed++
	n.mu.Unlock()
}

func (n *recordingNotifier) RunDone(uuid.UUID, *types.CourseGenerationRun) {
	n.mu.Lock()
	n.done++
	n.mu.Unlock()
}

func (n *recordingNotifier) ExportReady(uuid.UUID, uuid.UUID, string) {}

func newTestRun(payload string) *types.CourseGenerationRun {
	return &types.CourseGenerationRun{
		ID:           uuid.New(),
		OwnerUserID:  uuid.New(),
		CourseID:     uuid.New(),
		Status:       "running",
		CurrentStage: "repo_intake",
		Payload:      datatypes.JSON(payload),
	}
}

func TestProgressUpdatesRunAndNotifies(t *testing.T) {
	run := newTestRun(`{}`)
	repo := newFakeRunRepo(run)
	notify := &recordingNotifier{}
	jc := NewContext(context.Background(), nil, run, repo, notify)

	jc.Progress("repo_intake", 40, "scanning")

	if run.Progress != 40 {
		t.Fatalf("progress = %d, want 40", run.Progress)
	}
	if run.Status != "running" {
		t.Fatalf("status changed to %q", run.Status)
	}
	if notify.progress != 1 {
		t.Fatalf("progress notifications = %d, want 1", notify.progress)
	}
}

func TestProgressFromConcurrentGoroutines(t *testing.T) {
	run := newTestRun(`{}`)
	row := *run
	repo := newFakeRunRepo(&row)
	notify := &recordingNotifier{}
	jc := NewContext(context.Background(), nil, run, repo, notify)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for pct := 0; pct <= 100; pct += 20 {
				jc.Progress("content_generation", pct, fmt.Sprintf("module %d", worker))
			}
		}(i)
	}
	wg.Wait()

	if run.Progress < 0 || run.Progress > 100 {
		t.Fatalf("progress = %d after concurrent reports", run.Progress)
	}
	if run.HeartbeatAt == nil {
		t.Fatalf("heartbeat not recorded")
	}
	if notify.progress != 8*6 {
		t.Fatalf("progress notifications = %d, want %d", notify.progress, 8*6)
	}
}

func TestProgressDoesNotOverwriteCancelledRun(t *testing.T) {
	run := newTestRun(`{}`)
	run.Status = "failed"
	run.Error = "cancelled"
	repo := newFakeRunRepo(run)
	notify := &recordingNotifier{}
	jc := NewContext(context.Background(), nil, run, repo, notify)

	jc.Progress("document_analysis", 80, "late write")

	if repo.run.Progress != 0 {
		t.Fatalf("guard let progress through: %d", repo.run.Progress)
	}
	if notify.progress != 0 {
		t.Fatalf("notification emitted despite rejected write")
	}
}

func TestFailPreservesCancelledError(t *testing.T) {
	run := newTestRun(`{}`)
	run.Status = "failed"
	run.Error = "cancelled"
	repo := newFakeRunRepo(run)
	notify := &recordingNotifier{}
	jc := NewContext(context.Background(), nil, run, repo, notify)

	jc.Fail("pathway_building", fmt.Errorf("context canceled"))

	if repo.run.Error != "cancelled" {
		t.Fatalf("error = %q, want cancelled preserved", repo.run.Error)
	}
	if notify.failed != 0 {
		t.Fatalf("failure notification emitted for an already-terminal run")
	}
}

func TestSucceedWritesResult(t *testing.T) {
	run := newTestRun(`{}`)
	repo := newFakeRunRepo(run)
	notify := &recordingNotifier{}
	jc := NewContext(context.Background(), nil, run, repo, notify)

	jc.Succeed(map[string]any{"course_id": run.CourseID.String()})

	if repo.run.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", repo.run.Status)
	}
	if repo.run.Progress != 100 {
		t.Fatalf("progress = %d, want 100", repo.run.Progress)
	}
	if len(repo.run.Result) == 0 {
		t.Fatalf("result not persisted")
	}
	if notify.done != 1 {
		t.Fatalf("done notifications = %d, want 1", notify.done)
	}
}

func TestPayloadHelpers(t *testing.T) {
	courseID := uuid.New()
	run := newTestRun(fmt.Sprintf(`{"run_type":"course_export","course_id":"%s"}`, courseID))
	jc := NewContext(context.Background(), nil, run, newFakeRunRepo(run), nil)

	if got := jc.PayloadString("run_type"); got != "course_export" {
		t.Fatalf("run_type = %q", got)
	}
	id, ok := jc.PayloadUUID("course_id")
	if !ok || id != courseID {
		t.Fatalf("course_id = %v ok=%v", id, ok)
	}
	if _, ok := jc.PayloadUUID("missing"); ok {
		t.Fatalf("missing key parsed as uuid")
	}
}

func TestRunTypeOfDefaults(t *testing.T) {
	run := newTestRun(`{}`)
	if got := RunTypeOf(run); got != DefaultRunType {
		t.Fatalf("run type = %q, want %q", got, DefaultRunType)
	}
	run = newTestRun(`{"run_type":"course_export"}`)
	if got := RunTypeOf(run); got != "course_export" {
		t.Fatalf("run type = %q, want course_export", got)
	}
}

type staticHandler struct{ typ string }

func (h staticHandler) Type() string       { return h.typ }
func (h staticHandler) Run(*Context) error { return nil }

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(staticHandler{typ: "course_generation"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(staticHandler{typ: "course_generation"}); err == nil {
		t.Fatalf("duplicate register accepted")
	}
	if err := reg.Register(staticHandler{typ: ""}); err == nil {
		t.Fatalf("empty run type accepted")
	}
	if _, ok := reg.Get("course_generation"); !ok {
		t.Fatalf("registered handler not found")
	}
	if _, ok := reg.Get("unknown"); ok {
		t.Fatalf("unknown handler found")
	}
}
