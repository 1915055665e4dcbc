package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StageCheckpoint is the durable output of one successfully completed stage,
// keyed by (course_id, stage). Overwritten idempotently on retry; absence
// means the stage has not completed.
type StageCheckpoint struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_checkpoint_course_stage" json:"course_id"`
	Stage     string         `gorm:"column:stage;not null;uniqueIndex:idx_checkpoint_course_stage" json:"stage"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload;not null" json:"payload"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (StageCheckpoint) TableName() string { return "stage_checkpoint" }
