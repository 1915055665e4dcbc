package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type PathwayRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pathway *types.LearningPathway, modules []*types.LearningModule) (*types.LearningPathway, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.LearningPathway, []*types.LearningModule, error)
	GetModulesByPathwayID(ctx context.Context, tx *gorm.DB, pathwayID uuid.UUID) ([]*types.LearningModule, error)
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type pathwayRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPathwayRepo(db *gorm.DB, baseLog *logger.Logger) PathwayRepo {
	return &pathwayRepo{db: db, log: baseLog.With("repo", "PathwayRepo")}
}

func (r *pathwayRepo) Create(ctx context.Context, tx *gorm.DB, pathway *types.LearningPathway, modules []*types.LearningModule) (*types.LearningPathway, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if pathway == nil {
		return nil, nil
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(pathway).Error; err != nil {
			return err
		}
		if len(modules) == 0 {
			return nil
		}
		return txx.Create(&modules).Error
	})
	if err != nil {
		return nil, err
	}
	return pathway, nil
}

func (r *pathwayRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.LearningPathway, []*types.LearningModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil, nil, nil
	}
	var pathway types.LearningPathway
	err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Limit(1).
		Find(&pathway).Error
	if err != nil {
		return nil, nil, err
	}
	if pathway.ID == uuid.Nil {
		return nil, nil, nil
	}
	modules, err := r.GetModulesByPathwayID(ctx, transaction, pathway.ID)
	if err != nil {
		return nil, nil, err
	}
	return &pathway, modules, nil
}

func (r *pathwayRepo) GetModulesByPathwayID(ctx context.Context, tx *gorm.DB, pathwayID uuid.UUID) ([]*types.LearningModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var modules []*types.LearningModule
	if pathwayID == uuid.Nil {
		return modules, nil
	}
	if err := transaction.WithContext(ctx).
		Where("pathway_id = ?", pathwayID).
		Order("position ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *pathwayRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var pathways []*types.LearningPathway
		if err := txx.Where("course_id = ?", courseID).Find(&pathways).Error; err != nil {
			return err
		}
		for _, p := range pathways {
			if p == nil {
				continue
			}
			if err := txx.Where("pathway_id = ?", p.ID).Delete(&types.LearningModule{}).Error; err != nil {
				return err
			}
		}
		return txx.Where("course_id = ?", courseID).Delete(&types.LearningPathway{}).Error
	})
}
