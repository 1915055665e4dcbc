package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// EnqueueInput is the user request that starts a generation run.
type EnqueueInput struct {
	RepoURL          string   `json:"repo_url"`
	RepoDir          string   `json:"repo_dir"`
	IncludeGlobs     []string `json:"include_globs,omitempty"`
	ExcludeGlobs     []string `json:"exclude_globs,omitempty"`
	TargetComplexity string   `json:"target_complexity,omitempty"`
}

// CourseGenerationService is the API-facing surface over the pipeline: it
// creates the course row, enqueues runs for the worker pool, and exposes
// status, checkpoints, cancel, and retry.
type CourseGenerationService interface {
	Enqueue(ctx context.Context, userID uuid.UUID, in EnqueueInput) (*types.Course, *types.CourseGenerationRun, error)
	EnqueueExport(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	Status(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	Checkpoint(ctx context.Context, userID uuid.UUID, courseID uuid.UUID, stage string) (json.RawMessage, error)
	Cancel(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	Retry(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
}

type courseGenerationService struct {
	db         *gorm.DB
	log        *logger.Logger
	courseRepo repos.CourseRepo
	runRepo    repos.CourseGenerationRunRepo
	orch       *coursegen.Orchestrator
	notify     sse.RunNotifier
	dispatch   RunDispatcher
}

func NewCourseGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	runRepo repos.CourseGenerationRunRepo,
	orch *coursegen.Orchestrator,
	notify sse.RunNotifier,
	dispatch RunDispatcher,
) CourseGenerationService {
	if dispatch == nil {
		dispatch = NewNoopDispatcher()
	}
	return &courseGenerationService{
		db:         db,
		log:        baseLog.With("service", "CourseGenerationService"),
		courseRepo: courseRepo,
		runRepo:    runRepo,
		orch:       orch,
		notify:     notify,
		dispatch:   dispatch,
	}
}

func (s *courseGenerationService) Enqueue(ctx context.Context, userID uuid.UUID, in EnqueueInput) (*types.Course, *types.CourseGenerationRun, error) {
	if strings.TrimSpace(in.RepoURL) == "" && strings.TrimSpace(in.RepoDir) == "" {
		return nil, nil, fmt.Errorf("repo_url or repo_dir required")
	}
	target := strings.TrimSpace(in.TargetComplexity)
	if target == "" {
		target = "intermediate"
	}

	now := time.Now()
	course := &types.Course{
		ID:               uuid.New(),
		OwnerUserID:      userID,
		RepoURL:          in.RepoURL,
		Title:            "Generating course…",
		Description:      "Analyzing the repository and building your course.",
		TargetComplexity: target,
		Metadata:         datatypes.JSON([]byte(`{"status":"generating"}`)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.courseRepo.Create(ctx, nil, []*types.Course{course}); err != nil {
		return nil, nil, fmt.Errorf("create course: %w", err)
	}

	run, err := s.orch.Start(ctx, userID, course.ID, coursegen.IntakeParams{
		RepoURL:          in.RepoURL,
		RepoDir:          in.RepoDir,
		IncludeGlobs:     in.IncludeGlobs,
		ExcludeGlobs:     in.ExcludeGlobs,
		TargetComplexity: target,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start generation run: %w", err)
	}

	if err := s.dispatch.Dispatch(ctx, run.ID); err != nil {
		s.log.Warn("Run dispatch failed; DB worker will pick it up", "run_id", run.ID, "error", err)
	}
	if s.notify != nil {
		s.notify.RunCreated(userID, run)
	}
	return course, run, nil
}

// EnqueueExport queues a course_export run. The course must have completed
// generation; the export pipeline fails the run otherwise.
func (s *courseGenerationService) EnqueueExport(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}

	now := time.Now()
	run := &types.CourseGenerationRun{
		ID:           uuid.New(),
		OwnerUserID:  userID,
		CourseID:     courseID,
		Status:       "pending",
		CurrentStage: string(coursegen.StageCompleted),
		Payload:      datatypes.JSON([]byte(`{"run_type":"course_export"}`)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.runRepo.Create(ctx, nil, []*types.CourseGenerationRun{run})
	if err != nil {
		return nil, fmt.Errorf("create export run: %w", err)
	}
	if err := s.dispatch.Dispatch(ctx, created[0].ID); err != nil {
		s.log.Warn("Export dispatch failed; DB worker will pick it up", "run_id", created[0].ID, "error", err)
	}
	if s.notify != nil {
		s.notify.RunCreated(userID, created[0])
	}
	return created[0], nil
}

func (s *courseGenerationService) Status(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	run, err := s.orch.Status(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no generation run for course %s", courseID)
	}
	return run, nil
}

func (s *courseGenerationService) Checkpoint(ctx context.Context, userID uuid.UUID, courseID uuid.UUID, stage string) (json.RawMessage, error) {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	st, err := coursegen.ParseStage(stage)
	if err != nil {
		return nil, err
	}
	if st == coursegen.StageCompleted {
		return nil, fmt.Errorf("stage %s carries no checkpoint", st)
	}
	return s.orch.GetCheckpoint(ctx, courseID, st)
}

func (s *courseGenerationService) Cancel(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	run, err := s.orch.Cancel(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if s.notify != nil && run.Status == "failed" && run.Error == coursegen.CancelledMessage {
		s.notify.RunFailed(userID, run, run.CurrentStage, coursegen.CancelledMessage)
	}
	return run, nil
}

func (s *courseGenerationService) Retry(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	run, err := s.orch.Retry(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch.Dispatch(ctx, run.ID); err != nil {
		s.log.Warn("Retry dispatch failed; DB worker will pick it up", "run_id", run.ID, "error", err)
	}
	return run, nil
}

func (s *courseGenerationService) ownedCourse(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*types.Course, error) {
	rows, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].OwnerUserID != userID {
		return nil, fmt.Errorf("course not found or not owned by user")
	}
	return rows[0], nil
}
