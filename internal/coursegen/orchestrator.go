package coursegen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/moarshy/courseforge-backend/internal/artifact"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// CancelledMessage is the error recorded on a run cancelled by request.
const CancelledMessage = "cancelled"

// Orchestrator drives a course's run through the stage sequence. It is the
// only writer of current_stage, and it only ever moves it forward; a failed
// stage leaves the pointer where it was so an external retry re-dispatches
// the same stage against the same prior checkpoint.
type Orchestrator struct {
	log        *logger.Logger
	runRepo    repos.CourseGenerationRunRepo
	store      artifact.Store
	intake     *RepoIntake
	analyzer   *DocumentAnalyzer
	pathwayGen *PathwayGenerator
	contentGen *ContentGenerator
}

func NewOrchestrator(
	baseLog *logger.Logger,
	runRepo repos.CourseGenerationRunRepo,
	store artifact.Store,
	intake *RepoIntake,
	analyzer *DocumentAnalyzer,
	pathwayGen *PathwayGenerator,
	contentGen *ContentGenerator,
) *Orchestrator {
	return &Orchestrator{
		log:        baseLog.With("service", "Orchestrator"),
		runRepo:    runRepo,
		store:      store,
		intake:     intake,
		analyzer:   analyzer,
		pathwayGen: pathwayGen,
		contentGen: contentGen,
	}
}

// Start creates a pending run at the first stage. The worker pool claims it.
func (o *Orchestrator) Start(ctx context.Context, ownerID, courseID uuid.UUID, params IntakeParams) (*types.CourseGenerationRun, error) {
	if courseID == uuid.Nil {
		return nil, fmt.Errorf("course id required")
	}
	now := time.Now()
	run := &types.CourseGenerationRun{
		ID:           uuid.New(),
		OwnerUserID:  ownerID,
		CourseID:     courseID,
		Status:       "pending",
		CurrentStage: string(StageRepoIntake),
		Payload:      datatypes.JSON(mustJSON(params)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := o.runRepo.Create(ctx, nil, []*types.CourseGenerationRun{run})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// Advance executes the run's current stage. On stage success the stage
// pointer moves to the next value and is returned; on failure the pointer
// is untouched and the error is returned for the caller to record. A
// MissingCheckpointError also leaves the pointer untouched.
func (o *Orchestrator) Advance(ctx context.Context, run *types.CourseGenerationRun, rep Reporter) (Stage, error) {
	stage, err := ParseStage(run.CurrentStage)
	if err != nil {
		return "", err
	}
	if stage == StageCompleted {
		return StageCompleted, nil
	}

	if err := o.executeStage(ctx, run, stage, rep); err != nil {
		return stage, err
	}

	next, _ := stage.Next()
	ok, err := o.runRepo.UpdateFieldsUnlessStatus(ctx, nil, run.ID, []string{"failed"}, map[string]interface{}{
		"current_stage": string(next),
	})
	if err != nil {
		return stage, err
	}
	if !ok {
		// The run was cancelled while the stage finished. The checkpoint
		// stands, but the pointer stays put.
		return stage, fmt.Errorf("run %s: %s", run.ID, CancelledMessage)
	}
	run.CurrentStage = string(next)
	return next, nil
}

func (o *Orchestrator) executeStage(ctx context.Context, run *types.CourseGenerationRun, stage Stage, rep Reporter) error {
	var params IntakeParams
	if len(run.Payload) > 0 {
		if err := json.Unmarshal(run.Payload, &params); err != nil {
			return fmt.Errorf("decode run payload: %w", err)
		}
	}

	start, end := stageBand(o.log, stage)
	br := newBandReporter(rep, stage, start, end)
	courseID := run.CourseID

	switch stage {
	case StageRepoIntake:
		_, err := RunStage(ctx, o.store, courseID, stage, func(ctx context.Context, _ *struct{}) (IntakeArtifact, error) {
			return o.intake.Run(ctx, courseID, params, br)
		})
		return err
	case StageDocumentAnalysis:
		_, err := RunStage(ctx, o.store, courseID, stage, func(ctx context.Context, prior *IntakeArtifact) (AnalysisArtifact, error) {
			return o.analyzer.Run(ctx, courseID, *prior, br)
		})
		return err
	case StagePathwayBuilding:
		_, err := RunStage(ctx, o.store, courseID, stage, func(ctx context.Context, prior *AnalysisArtifact) (PathwayArtifact, error) {
			return o.pathwayGen.Run(ctx, courseID, params.TargetComplexity, *prior, br)
		})
		return err
	case StageContentGeneration:
		_, err := RunStage(ctx, o.store, courseID, stage, func(ctx context.Context, prior *PathwayArtifact) (ContentArtifact, error) {
			return o.contentGen.Run(ctx, courseID, *prior, br)
		})
		return err
	default:
		return fmt.Errorf("coursegen: stage %s is not executable", stage)
	}
}

// Cancel marks the course's latest run failed with the cancelled message.
// Best-effort: a checkpoint the stage already persisted stands, and a run
// that already reached a terminal status is left alone.
func (o *Orchestrator) Cancel(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	run, err := o.runRepo.GetLatestByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no generation run for course %s", courseID)
	}
	now := time.Now()
	ok, err := o.runRepo.UpdateFieldsUnlessStatus(ctx, nil, run.ID, []string{"succeeded", "failed"}, map[string]interface{}{
		"status":        "failed",
		"error":         CancelledMessage,
		"last_error_at": now,
		"locked_at":     nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return run, nil
	}
	run.Status = "failed"
	run.Error = CancelledMessage
	run.LastErrorAt = &now
	run.LockedAt = nil
	return run, nil
}

// Retry resets a failed run to pending so the worker pool re-dispatches the
// same stage. This is the only path that reruns a failed run; nothing
// retries automatically.
func (o *Orchestrator) Retry(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	run, err := o.runRepo.GetLatestByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no generation run for course %s", courseID)
	}
	if run.Status != "failed" {
		return nil, fmt.Errorf("run %s is %s, only failed runs can be retried", run.ID, run.Status)
	}
	err = o.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status":       "pending",
		"error":        "",
		"attempts":     0,
		"locked_at":    nil,
		"heartbeat_at": nil,
	})
	if err != nil {
		return nil, err
	}
	run.Status = "pending"
	run.Error = ""
	run.Attempts = 0
	run.LockedAt = nil
	run.HeartbeatAt = nil
	return run, nil
}

// Status returns the latest durable run state for a course.
func (o *Orchestrator) Status(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return o.runRepo.GetLatestByCourseID(ctx, nil, courseID)
}

// GetCheckpoint exposes a stage's raw checkpoint payload.
func (o *Orchestrator) GetCheckpoint(ctx context.Context, courseID uuid.UUID, stage Stage) ([]byte, error) {
	return o.store.Get(ctx, courseID, string(stage))
}
