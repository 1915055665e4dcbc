package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type StageCheckpointRepo interface {
	// Upsert writes the checkpoint for (course_id, stage), overwriting any
	// prior payload. Stage retries converge on the same row.
	Upsert(ctx context.Context, tx *gorm.DB, cp *types.StageCheckpoint) error
	Get(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage string) (*types.StageCheckpoint, error)
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.StageCheckpoint, error)
}

type stageCheckpointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) StageCheckpointRepo {
	return &stageCheckpointRepo{db: db, log: baseLog.With("repo", "StageCheckpointRepo")}
}

func (r *stageCheckpointRepo) Upsert(ctx context.Context, tx *gorm.DB, cp *types.StageCheckpoint) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if cp == nil || cp.CourseID == uuid.Nil || cp.Stage == "" {
		return nil
	}
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if len(cp.Payload) == 0 {
		cp.Payload = datatypes.JSON([]byte("{}"))
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "stage"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(cp).Error
}

func (r *stageCheckpointRepo) Get(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage string) (*types.StageCheckpoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil || stage == "" {
		return nil, nil
	}
	var cp types.StageCheckpoint
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND stage = ?", courseID, stage).
		Limit(1).
		Find(&cp).Error
	if err != nil {
		return nil, err
	}
	if cp.ID == uuid.Nil {
		return nil, nil
	}
	return &cp, nil
}

func (r *stageCheckpointRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.StageCheckpoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.StageCheckpoint
	if courseID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
