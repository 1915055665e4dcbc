package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// A CourseGenerationRun is the durable state of one course's staged pipeline.
// Stage only moves forward; a stage never starts unless the prior stage's
// checkpoint exists. Status and progress are written through the job runtime
// so a poller always sees the latest durable state.
type CourseGenerationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	CourseID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Status       string         `gorm:"column:status;not null;index" json:"status"` // pending|running|succeeded|failed
	CurrentStage string         `gorm:"column:current_stage;not null;index" json:"current_stage"`
	Progress     int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	LastErrorAt  *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt     *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt  *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Result       datatypes.JSON `gorm:"type:jsonb;column:result" json:"result"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseGenerationRun) TableName() string { return "course_generation_run" }
