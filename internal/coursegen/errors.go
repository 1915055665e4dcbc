package coursegen

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEmptyCorpus means a generator was asked to propose with no document
// corpus to work from. Generators fail fast on it before any model call.
var ErrEmptyCorpus = errors.New("coursegen: empty document corpus")

// MissingCheckpointError means a stage was dispatched before the stage it
// depends on wrote its checkpoint. The stage pointer is left untouched.
type MissingCheckpointError struct {
	CourseID uuid.UUID
	Stage    Stage
}

func (e *MissingCheckpointError) Error() string {
	return fmt.Sprintf("coursegen: missing %s checkpoint for course %s", e.Stage, e.CourseID)
}

func IsMissingCheckpoint(err error) bool {
	var mc *MissingCheckpointError
	return errors.As(err, &mc)
}

// StageError wraps a stage function failure with the stage it came from, so
// the run's error message names the failing stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
