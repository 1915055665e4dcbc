package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type LearningPathway struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	Description      string         `gorm:"column:description" json:"description"`
	TargetComplexity string         `gorm:"column:target_complexity" json:"target_complexity"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LearningPathway) TableName() string { return "learning_pathway" }

// LearningModule rows carry the pathway's pedagogical order via Position.
type LearningModule struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PathwayID          uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_module_pathway_key" json:"pathway_id"`
	ModuleKey          string         `gorm:"column:module_key;not null;uniqueIndex:idx_module_pathway_key" json:"module_key"`
	Position           int            `gorm:"column:position;not null" json:"position"`
	Title              string         `gorm:"column:title;not null" json:"title"`
	Description        string         `gorm:"column:description" json:"description"`
	Theme              string         `gorm:"column:theme" json:"theme"`
	TargetComplexity   string         `gorm:"column:target_complexity" json:"target_complexity"`
	LearningObjectives datatypes.JSON `gorm:"type:jsonb;column:learning_objectives" json:"learning_objectives"`
	LinkedDocuments    datatypes.JSON `gorm:"type:jsonb;column:linked_documents" json:"linked_documents"` // []string of DocumentRecord paths
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LearningModule) TableName() string { return "learning_module" }
