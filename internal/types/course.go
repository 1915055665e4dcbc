package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	RepoURL          string         `gorm:"column:repo_url;not null" json:"repo_url"`
	Title            string         `gorm:"column:title" json:"title"`
	Description      string         `gorm:"column:description" json:"description"`
	TargetComplexity string         `gorm:"column:target_complexity" json:"target_complexity"` // beginner|intermediate|advanced
	Metadata         datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }
