package coursegen

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// scriptedAI implements the model client with per-call functions.
type scriptedAI struct {
	mu           sync.Mutex
	generateJSON func(schemaName string, system, user string) (map[string]any, error)
	jsonCalls    int
	embedCalls   int
}

func (s *scriptedAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	s.mu.Lock()
	s.embedCalls++
	s.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (s *scriptedAI) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.jsonCalls++
	fn := s.generateJSON
	s.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no script for %s", schemaName)
	}
	return fn(schemaName, system, user)
}

func (s *scriptedAI) GenerateText(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

// ---- in-memory repos ----

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*types.DocumentRecord
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: map[uuid.UUID]*types.DocumentRecord{}}
}

func (f *fakeDocRepo) Create(_ context.Context, _ *gorm.DB, docs []*types.DocumentRecord) ([]*types.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		cp := *d
		f.docs[d.ID] = &cp
	}
	return docs, nil
}

func (f *fakeDocRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.DocumentRecord{}
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) GetByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) ([]*types.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.DocumentRecord{}
	for _, d := range f.docs {
		if d.CourseID == courseID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeDocRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("doc %s not found", id)
	}
	if v, ok := updates["summary"].(string); ok {
		d.Summary = v
	}
	if v, ok := updates["doc_type"].(string); ok {
		d.DocType = v
	}
	if v, ok := updates["complexity_level"].(string); ok {
		d.ComplexityLevel = v
	}
	if v, ok := updates["title"].(string); ok {
		d.Title = v
	}
	return nil
}

func (f *fakeDocRepo) DeleteByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.docs {
		if d.CourseID == courseID {
			delete(f.docs, id)
		}
	}
	return nil
}

type fakePathwayRepo struct {
	mu       sync.Mutex
	pathways map[uuid.UUID]*types.LearningPathway
	modules  map[uuid.UUID][]*types.LearningModule
}

func newFakePathwayRepo() *fakePathwayRepo {
	return &fakePathwayRepo{
		pathways: map[uuid.UUID]*types.LearningPathway{},
		modules:  map[uuid.UUID][]*types.LearningModule{},
	}
}

func (f *fakePathwayRepo) Create(_ context.Context, _ *gorm.DB, pathway *types.LearningPathway, modules []*types.LearningModule) (*types.LearningPathway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pathways[pathway.ID] = pathway
	f.modules[pathway.ID] = modules
	return pathway, nil
}

func (f *fakePathwayRepo) GetByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) (*types.LearningPathway, []*types.LearningModule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pathways {
		if p.CourseID == courseID {
			return p, f.modules[p.ID], nil
		}
	}
	return nil, nil, nil
}

func (f *fakePathwayRepo) GetModulesByPathwayID(_ context.Context, _ *gorm.DB, pathwayID uuid.UUID) ([]*types.LearningModule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modules[pathwayID], nil
}

func (f *fakePathwayRepo) DeleteByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.pathways {
		if p.CourseID == courseID {
			delete(f.pathways, id)
			delete(f.modules, id)
		}
	}
	return nil
}

type fakeContentRepo struct {
	mu       sync.Mutex
	byModule map[uuid.UUID]*types.ModuleContent
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{byModule: map[uuid.UUID]*types.ModuleContent{}}
}

func (f *fakeContentRepo) Upsert(_ context.Context, _ *gorm.DB, contents []*types.ModuleContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range contents {
		cp := *c
		f.byModule[c.ModuleID] = &cp
	}
	return nil
}

func (f *fakeContentRepo) GetByModuleIDs(_ context.Context, _ *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.ModuleContent{}
	for _, id := range moduleIDs {
		if c, ok := f.byModule[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*types.CourseGenerationRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[uuid.UUID]*types.CourseGenerationRun{}}
}

func (f *fakeRunRepo) Create(_ context.Context, _ *gorm.DB, runs []*types.CourseGenerationRun) ([]*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range runs {
		cp := *r
		f.runs[r.ID] = &cp
	}
	return runs, nil
}

func (f *fakeRunRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.CourseGenerationRun, error) {
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

func (f *fakeRunRepo) GetLatestByCourseID(_ context.Context, _ *gorm.DB, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.CourseGenerationRun
	for _, r := range f.runs {
		if r.CourseID != courseID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRunRepo) ClaimNextRunnable(_ context.Context, _ *gorm.DB, maxAttempts int, _ time.Duration) (*types.CourseGenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.Status == "pending" && r.Attempts < maxAttempts {
			now := time.Now()
			r.Status = "running"
			r.Attempts++
			r.LockedAt = &now
			r.HeartbeatAt = &now
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) applyUpdates(r *types.CourseGenerationRun, updates map[string]interface{}) {
	if v, ok := updates["status"].(string); ok {
		r.Status = v
	}
	if v, ok := updates["current_stage"].(string); ok {
		r.CurrentStage = v
	}
	if v, ok := updates["error"].(string); ok {
		r.Error = v
	}
	if v, ok := updates["progress"].(int); ok {
		r.Progress = v
	}
	if v, ok := updates["attempts"].(int); ok {
		r.Attempts = v
	}
}

func (f *fakeRunRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	f.applyUpdates(r, updates)
	return nil
}

func (f *fakeRunRepo) UpdateFieldsUnlessStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
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
	f.applyUpdates(r, updates)
	return true, nil
}

func (f *fakeRunRepo) Heartbeat(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok && r.Status == "running" {
		now := time.Now()
		r.HeartbeatAt = &now
	}
	return nil
}
