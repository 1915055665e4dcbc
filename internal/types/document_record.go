package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentRecord is one analyzed source file. Immutable once the
// document-analysis stage has written it.
type DocumentRecord struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Path               string         `gorm:"column:path;not null" json:"path"`
	Title              string         `gorm:"column:title" json:"title"`
	DocType            string         `gorm:"column:doc_type;index" json:"doc_type"` // guide|reference|api|example|overview|tutorial
	ComplexityLevel    string         `gorm:"column:complexity_level" json:"complexity_level"`
	KeyConcepts        datatypes.JSON `gorm:"type:jsonb;column:key_concepts" json:"key_concepts"` // ordered []string
	LearningObjectives datatypes.JSON `gorm:"type:jsonb;column:learning_objectives" json:"learning_objectives"`
	Summary            string         `gorm:"column:summary" json:"summary"`
	RawContent         string         `gorm:"column:raw_content" json:"raw_content"`
	Embedding          datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (DocumentRecord) TableName() string { return "document_record" }
