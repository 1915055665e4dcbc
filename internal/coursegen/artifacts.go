package coursegen

import "github.com/google/uuid"

// Checkpoint payloads. Each stage's artifact is the next stage's input;
// heavy content (raw text, generated bodies) lives in its own table and the
// artifact carries row IDs, so checkpoints stay small and re-runs converge.

// IntakeArtifact is the repo_intake checkpoint.
type IntakeArtifact struct {
	RepoURL      string      `json:"repo_url"`
	SnapshotKey  string      `json:"snapshot_key,omitempty"`
	DocumentIDs  []uuid.UUID `json:"document_ids"`
	FileCount    int         `json:"file_count"`
	TotalBytes   int64       `json:"total_bytes"`
	SkippedPaths []string    `json:"skipped_paths,omitempty"`
}

// AnalysisArtifact is the document_analysis checkpoint.
type AnalysisArtifact struct {
	DocumentIDs  []uuid.UUID    `json:"document_ids"`
	ByDocType    map[string]int `json:"by_doc_type"`
	ByComplexity map[string]int `json:"by_complexity"`
}

// PathwayArtifact is the pathway_building checkpoint. DebateAccepted false
// means the pathway is a best-effort result kept after round exhaustion.
type PathwayArtifact struct {
	PathwayID      uuid.UUID   `json:"pathway_id"`
	Title          string      `json:"title"`
	ModuleIDs      []uuid.UUID `json:"module_ids"`
	ModuleCount    int         `json:"module_count"`
	DebateRounds   int         `json:"debate_rounds"`
	DebateAccepted bool        `json:"debate_accepted"`
}

// ModuleContentResult is one module's outcome inside the content stage.
type ModuleContentResult struct {
	ModuleID     uuid.UUID `json:"module_id"`
	ModuleKey    string    `json:"module_key"`
	Passed       bool      `json:"passed"`
	DebateRounds int       `json:"debate_rounds"`
	Error        string    `json:"error,omitempty"`
}

// ContentArtifact is the content_generation checkpoint.
type ContentArtifact struct {
	Results   []ModuleContentResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}
