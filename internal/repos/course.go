package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error)
	GetByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*types.Course, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Course
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

func (r *courseRepo) GetByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Course
	if ownerUserID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(updates).Error
}
