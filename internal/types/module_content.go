package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ModuleContent is the generated body for one LearningModule (1:1).
type ModuleContent struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"module_id"`
	Introduction string         `gorm:"column:introduction" json:"introduction"`
	MainContent  string         `gorm:"column:main_content" json:"main_content"`
	Conclusion   string         `gorm:"column:conclusion" json:"conclusion"`
	Assessment   string         `gorm:"column:assessment" json:"assessment"`
	Summary      string         `gorm:"column:summary" json:"summary"`
	DebateRounds int            `gorm:"column:debate_rounds;not null;default:0" json:"debate_rounds"`
	DebatePassed bool           `gorm:"column:debate_passed;not null;default:false" json:"debate_passed"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ModuleContent) TableName() string { return "module_content" }
