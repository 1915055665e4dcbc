package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type ModuleContentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, contents []*types.ModuleContent) error
	GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleContent, error)
}

type moduleContentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleContentRepo(db *gorm.DB, baseLog *logger.Logger) ModuleContentRepo {
	return &moduleContentRepo{db: db, log: baseLog.With("repo", "ModuleContentRepo")}
}

func (r *moduleContentRepo) Upsert(ctx context.Context, tx *gorm.DB, contents []*types.ModuleContent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(contents) == 0 {
		return nil
	}
	now := time.Now()
	for _, c := range contents {
		if c == nil {
			continue
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"introduction", "main_content", "conclusion", "assessment",
				"summary", "debate_rounds", "debate_passed", "metadata", "updated_at",
			}),
		}).
		Create(&contents).Error
}

func (r *moduleContentRepo) GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleContent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ModuleContent
	if len(moduleIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("module_id IN ?", moduleIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
