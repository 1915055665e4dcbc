// Package artifact is the durable, keyed storage for stage outputs. Each
// checkpoint is an opaque serialized payload keyed by (course_id, stage);
// a stage's checkpoint is the next stage's input, and its absence means the
// stage has not successfully completed.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// ErrNotFound is returned by Get when no checkpoint exists for the key.
var ErrNotFound = errors.New("artifact: not found")

type Store interface {
	Put(ctx context.Context, courseID uuid.UUID, stage string, payload []byte) error
	Get(ctx context.Context, courseID uuid.UUID, stage string) ([]byte, error)
}

// PutJSON marshals v and stores it as the checkpoint payload.
func PutJSON(ctx context.Context, s Store, courseID uuid.UUID, stage string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("artifact: encode %s payload: %w", stage, err)
	}
	return s.Put(ctx, courseID, stage, raw)
}

// GetJSON loads the checkpoint payload for the key and unmarshals it into out.
func GetJSON(ctx context.Context, s Store, courseID uuid.UUID, stage string, out any) error {
	raw, err := s.Get(ctx, courseID, stage)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("artifact: decode %s payload: %w", stage, err)
	}
	return nil
}

type postgresStore struct {
	db   *gorm.DB
	repo repos.StageCheckpointRepo
}

func NewPostgresStore(db *gorm.DB, repo repos.StageCheckpointRepo) Store {
	return &postgresStore{db: db, repo: repo}
}

func (s *postgresStore) Put(ctx context.Context, courseID uuid.UUID, stage string, payload []byte) error {
	if courseID == uuid.Nil || stage == "" {
		return fmt.Errorf("artifact: missing key")
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return s.repo.Upsert(ctx, nil, &types.StageCheckpoint{
		CourseID: courseID,
		Stage:    stage,
		Payload:  datatypes.JSON(payload),
	})
}

func (s *postgresStore) Get(ctx context.Context, courseID uuid.UUID, stage string) ([]byte, error) {
	cp, err := s.repo.Get(ctx, nil, courseID, stage)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ErrNotFound
	}
	return []byte(cp.Payload), nil
}
