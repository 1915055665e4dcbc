package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type CourseGenerationRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.CourseGenerationRun) ([]*types.CourseGenerationRun, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CourseGenerationRun, error)
	GetLatestByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.CourseGenerationRun, error)

	// ClaimNextRunnable claims the next run that is runnable:
	// - status=pending (fresh dispatch or an externally requested retry)
	// - OR status=running with a stale heartbeat (crash recovery)
	// Failed runs are never reclaimed automatically; retry re-dispatches the
	// run by resetting it to pending.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.CourseGenerationRun, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// UpdateFieldsUnlessStatus applies updates only while the run's status is
	// not one of disallowedStatuses. Returns false when the guard rejected the
	// write (e.g. a cancelled run must not be overwritten by late progress).
	UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)

	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type courseGenerationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) CourseGenerationRunRepo {
	return &courseGenerationRunRepo{db: db, log: baseLog.With("repo", "CourseGenerationRunRepo")}
}

func (r *courseGenerationRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.CourseGenerationRun) ([]*types.CourseGenerationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.CourseGenerationRun{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *courseGenerationRunRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CourseGenerationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CourseGenerationRun
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseGenerationRunRepo) GetLatestByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil, nil
	}
	var run types.CourseGenerationRun
	err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *courseGenerationRunRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	staleRunning time.Duration,
) (*types.CourseGenerationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.CourseGenerationRun

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var run types.CourseGenerationRun

		q := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				attempts < ?
				AND (
					status = ?
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, maxAttempts, "pending", "running", staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&types.CourseGenerationRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       "running",
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		run.Status = "running"
		run.Attempts++
		run.LockedAt = &now
		run.HeartbeatAt = &now
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *courseGenerationRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.CourseGenerationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *courseGenerationRunRepo) UpdateFieldsUnlessStatus(
	ctx context.Context,
	tx *gorm.DB,
	id uuid.UUID,
	disallowedStatuses []string,
	updates map[string]interface{},
) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := transaction.WithContext(ctx).
		Model(&types.CourseGenerationRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *courseGenerationRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.CourseGenerationRun{}).
		Where("id = ? AND status = ?", id, "running").
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
