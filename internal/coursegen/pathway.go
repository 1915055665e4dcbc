package coursegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/moarshy/courseforge-backend/internal/debate"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/platform/openai"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// PathwayDraft is the debated artifact for pathway building.
type PathwayDraft struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Modules     []ModuleDraft `json:"modules"`
}

type ModuleDraft struct {
	ModuleKey          string   `json:"module_key"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Theme              string   `json:"theme"`
	LearningObjectives []string `json:"learning_objectives"`
	LinkedDocuments    []string `json:"linked_documents"`
}

// PathwayGenerator synthesizes a LearningPathway from the analyzed corpus
// through the debate loop. An exhausted debate still yields a persisted
// pathway; the checkpoint records that it never passed review.
type PathwayGenerator struct {
	log         *logger.Logger
	ai          openai.Client
	docRepo     repos.DocumentRecordRepo
	pathwayRepo repos.PathwayRepo
}

func NewPathwayGenerator(baseLog *logger.Logger, ai openai.Client, docRepo repos.DocumentRecordRepo, pathwayRepo repos.PathwayRepo) *PathwayGenerator {
	return &PathwayGenerator{
		log:         baseLog.With("stage", string(StagePathwayBuilding)),
		ai:          ai,
		docRepo:     docRepo,
		pathwayRepo: pathwayRepo,
	}
}

func (pg *PathwayGenerator) Run(ctx context.Context, courseID uuid.UUID, target string, prior AnalysisArtifact, rep Reporter) (PathwayArtifact, error) {
	var out PathwayArtifact
	if rep == nil {
		rep = NopReporter
	}

	docs, err := pg.docRepo.GetByIDs(ctx, nil, prior.DocumentIDs)
	if err != nil {
		return out, err
	}
	if len(docs) == 0 {
		return out, fmt.Errorf("%w: no analyzed documents for pathway", ErrEmptyCorpus)
	}

	minModules := stageConfigInt(pg.log, StagePathwayBuilding, "min_modules", 3)
	maxModules := stageConfigInt(pg.log, StagePathwayBuilding, "max_modules", 10)
	maxRounds := stageConfigInt(pg.log, StagePathwayBuilding, "max_rounds", debate.DefaultMaxRounds)

	digest := corpusDigest(docs)
	knownPaths := make(map[string]bool, len(docs))
	for _, d := range docs {
		knownPaths[d.Path] = true
	}

	rep.Progress(string(StagePathwayBuilding), 5, "Debating pathway structure")

	proposer := debate.ProposeFunc[PathwayDraft](func(ctx context.Context, req debate.Request[PathwayDraft]) (PathwayDraft, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Target complexity: %s\n", target)
		fmt.Fprintf(&b, "Module count must be between %d and %d.\n\n", minModules, maxModules)
		fmt.Fprintf(&b, "CORPUS:\n%s\n", digest)
		if req.Prior != nil {
			fmt.Fprintf(&b, "\nPREVIOUS DRAFT:\n%s\n", string(mustJSON(req.Prior)))
		}
		if len(req.Critiques) > 0 {
			b.WriteString("\nCRITIQUES TO ADDRESS (oldest first):\n")
			for i, c := range req.Critiques {
				fmt.Fprintf(&b, "%d. %s\n", i+1, c)
			}
			b.WriteString("\nRevise the draft to address every critique.\n")
		}

		obj, genErr := pg.ai.GenerateJSON(ctx, pathwayProposeSystem, b.String(), "learning_pathway", pathwaySchema())
		if genErr != nil {
			return PathwayDraft{}, genErr
		}
		return pathwayDraftFromMap(obj)
	})

	critic := debate.EvaluateFunc[PathwayDraft](func(ctx context.Context, draft PathwayDraft) (debate.Verdict, error) {
		if problems := pg.structuralProblems(draft, minModules, maxModules, knownPaths); len(problems) > 0 {
			return debate.Verdict{
				Severity: debate.SeverityMajor,
				Critique: "Structural problems: " + strings.Join(problems, "; "),
			}, nil
		}

		obj, evalErr := pg.ai.GenerateJSON(
			ctx,
			pathwayCriticSystem,
			fmt.Sprintf("CORPUS:\n%s\n\nPROPOSED PATHWAY:\n%s", digest, string(mustJSON(draft))),
			"pathway_verdict",
			verdictSchema(),
		)
		if evalErr != nil {
			return debate.Verdict{}, evalErr
		}
		return debate.Verdict{
			Severity: debate.ParseSeverity(stringField(obj, "severity")),
			Critique: stringField(obj, "critique"),
		}, nil
	})

	res, err := debate.Run(ctx, proposer, critic, maxRounds)
	if err != nil {
		return out, err
	}
	if !res.Accepted {
		pg.log.Warn("Pathway debate exhausted; keeping best-effort draft",
			"course_id", courseID, "rounds", len(res.Rounds))
	}

	rep.Progress(string(StagePathwayBuilding), 80, "Persisting pathway")

	art, err := pg.persist(ctx, courseID, target, res)
	if err != nil {
		return out, err
	}

	rep.Progress(string(StagePathwayBuilding), 100, fmt.Sprintf("Pathway ready with %d modules", art.ModuleCount))
	return art, nil
}

func (pg *PathwayGenerator) structuralProblems(draft PathwayDraft, minModules, maxModules int, knownPaths map[string]bool) []string {
	var problems []string
	if n := len(draft.Modules); n < minModules || n > maxModules {
		problems = append(problems, fmt.Sprintf("module count %d outside [%d,%d]", n, minModules, maxModules))
	}
	seenKeys := map[string]bool{}
	for _, m := range draft.Modules {
		key := strings.TrimSpace(m.ModuleKey)
		if key == "" {
			problems = append(problems, fmt.Sprintf("module %q has no module_key", m.Title))
		} else if seenKeys[key] {
			problems = append(problems, fmt.Sprintf("duplicate module_key %q", key))
		}
		seenKeys[key] = true
		if len(m.LinkedDocuments) == 0 {
			problems = append(problems, fmt.Sprintf("module %q links no documents", m.Title))
		}
		for _, p := range m.LinkedDocuments {
			if !knownPaths[p] {
				problems = append(problems, fmt.Sprintf("module %q links unknown document %q", m.Title, p))
			}
		}
	}
	return problems
}

func (pg *PathwayGenerator) persist(ctx context.Context, courseID uuid.UUID, target string, res debate.Result[PathwayDraft]) (PathwayArtifact, error) {
	var out PathwayArtifact

	if err := pg.pathwayRepo.DeleteByCourseID(ctx, nil, courseID); err != nil {
		return out, fmt.Errorf("clear prior pathway: %w", err)
	}

	draft := res.Artifact
	now := time.Now()
	pathway := &types.LearningPathway{
		ID:               uuid.New(),
		CourseID:         courseID,
		Title:            clampString(draft.Title, 300),
		Description:      draft.Description,
		TargetComplexity: target,
		Metadata: datatypes.JSON(mustJSON(map[string]any{
			"debate_rounds":   len(res.Rounds),
			"debate_accepted": res.Accepted,
		})),
		CreatedAt: now,
		UpdatedAt: now,
	}

	modules := make([]*types.LearningModule, 0, len(draft.Modules))
	for i, m := range draft.Modules {
		key := strings.TrimSpace(m.ModuleKey)
		if key == "" {
			key = fmt.Sprintf("module-%d", i+1)
		}
		modules = append(modules, &types.LearningModule{
			ID:                 uuid.New(),
			PathwayID:          pathway.ID,
			ModuleKey:          key,
			Position:           i,
			Title:              clampString(m.Title, 300),
			Description:        m.Description,
			Theme:              m.Theme,
			TargetComplexity:   target,
			LearningObjectives: datatypes.JSON(mustJSON(m.LearningObjectives)),
			LinkedDocuments:    datatypes.JSON(mustJSON(m.LinkedDocuments)),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	if _, err := pg.pathwayRepo.Create(ctx, nil, pathway, modules); err != nil {
		return out, fmt.Errorf("create pathway: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	return PathwayArtifact{
		PathwayID:      pathway.ID,
		Title:          pathway.Title,
		ModuleIDs:      ids,
		ModuleCount:    len(modules),
		DebateRounds:   len(res.Rounds),
		DebateAccepted: res.Accepted,
	}, nil
}

func pathwayDraftFromMap(obj map[string]any) (PathwayDraft, error) {
	var draft PathwayDraft
	if err := json.Unmarshal(mustJSON(obj), &draft); err != nil {
		return draft, fmt.Errorf("decode pathway draft: %w", err)
	}
	if len(draft.Modules) == 0 {
		return draft, fmt.Errorf("pathway draft has no modules")
	}
	return draft, nil
}

// corpusDigest renders the analyzed corpus compactly for prompts: path,
// type, complexity, key concepts, and a truncated summary per document.
func corpusDigest(docs []*types.DocumentRecord) string {
	var b strings.Builder
	for _, d := range docs {
		concepts := []string{}
		_ = json.Unmarshal(d.KeyConcepts, &concepts)
		fmt.Fprintf(&b, "- path: %s\n  type: %s  complexity: %s\n", d.Path, d.DocType, d.ComplexityLevel)
		if len(concepts) > 0 {
			fmt.Fprintf(&b, "  key_concepts: %s\n", strings.Join(concepts, ", "))
		}
		if s := clampString(d.Summary, 400); s != "" {
			fmt.Fprintf(&b, "  summary: %s\n", s)
		}
	}
	return b.String()
}
