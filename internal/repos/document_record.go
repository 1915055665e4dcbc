package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type DocumentRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, docs []*types.DocumentRecord) ([]*types.DocumentRecord, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocumentRecord, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DocumentRecord, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type documentRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRecordRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRecordRepo {
	return &documentRecordRepo{db: db, log: baseLog.With("repo", "DocumentRecordRepo")}
}

func (r *documentRecordRepo) Create(ctx context.Context, tx *gorm.DB, docs []*types.DocumentRecord) ([]*types.DocumentRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.DocumentRecord{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRecordRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocumentRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentRecord
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

func (r *documentRecordRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DocumentRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentRecord
	if courseID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("path ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.DocumentRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteByCourseID clears prior analysis rows so a stage retry converges on
// one canonical record set per course.
func (r *documentRecordRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.DocumentRecord{}).Error
}
