// Package coursegen implements the staged course-generation pipeline: a
// repository is walked into a document corpus, each document is analyzed,
// a learning pathway is synthesized, and per-module content is generated.
// Each stage writes a durable checkpoint keyed by (course_id, stage); the
// orchestrator only moves the stage pointer forward and never starts a
// stage whose prior checkpoint is missing.
package coursegen

import "fmt"

type Stage string

const (
	StageRepoIntake        Stage = "repo_intake"
	StageDocumentAnalysis  Stage = "document_analysis"
	StagePathwayBuilding   Stage = "pathway_building"
	StageContentGeneration Stage = "content_generation"
	// StageCompleted is a terminal marker, not a unit of work.
	StageCompleted Stage = "completed"
)

var stageOrder = []Stage{
	StageRepoIntake,
	StageDocumentAnalysis,
	StagePathwayBuilding,
	StageContentGeneration,
}

// Ordered returns the work stages in execution order.
func Ordered() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

func (s Stage) String() string { return string(s) }

func (s Stage) Valid() bool {
	if s == StageCompleted {
		return true
	}
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the stage after s. The last work stage advances to
// StageCompleted; StageCompleted has no successor.
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st != s {
			continue
		}
		if i == len(stageOrder)-1 {
			return StageCompleted, true
		}
		return stageOrder[i+1], true
	}
	return "", false
}

// Prior returns the stage whose checkpoint s consumes. The first stage has
// no prior and starts from the run payload alone.
func (s Stage) Prior() (Stage, bool) {
	for i, st := range stageOrder {
		if st != s {
			continue
		}
		if i == 0 {
			return "", false
		}
		return stageOrder[i-1], true
	}
	return "", false
}

func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("coursegen: unknown stage %q", raw)
	}
	return s, nil
}
