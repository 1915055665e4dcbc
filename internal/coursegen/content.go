package coursegen

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/moarshy/courseforge-backend/internal/debate"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/platform/openai"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// ContentDraft is the debated artifact for one module's content.
type ContentDraft struct {
	Introduction string `json:"introduction"`
	MainContent  string `json:"main_content"`
	Conclusion   string `json:"conclusion"`
	Assessment   string `json:"assessment"`
	Summary      string `json:"summary"`
}

// ContentGenerator writes content for every pathway module, one debate per
// module, concurrently on a bounded pool. Modules share nothing mutable, so
// one module's exhausted debate marks that module failed without aborting
// siblings; the stage fails only when successes fall below the configured
// ratio.
type ContentGenerator struct {
	log         *logger.Logger
	ai          openai.Client
	docRepo     repos.DocumentRecordRepo
	pathwayRepo repos.PathwayRepo
	contentRepo repos.ModuleContentRepo
}

func NewContentGenerator(
	baseLog *logger.Logger,
	ai openai.Client,
	docRepo repos.DocumentRecordRepo,
	pathwayRepo repos.PathwayRepo,
	contentRepo repos.ModuleContentRepo,
) *ContentGenerator {
	return &ContentGenerator{
		log:         baseLog.With("stage", string(StageContentGeneration)),
		ai:          ai,
		docRepo:     docRepo,
		pathwayRepo: pathwayRepo,
		contentRepo: contentRepo,
	}
}

func (cg *ContentGenerator) Run(ctx context.Context, courseID uuid.UUID, prior PathwayArtifact, rep Reporter) (ContentArtifact, error) {
	var out ContentArtifact
	if rep == nil {
		rep = NopReporter
	}

	modules, err := cg.pathwayRepo.GetModulesByPathwayID(ctx, nil, prior.PathwayID)
	if err != nil {
		return out, err
	}
	if len(modules) == 0 {
		return out, fmt.Errorf("pathway %s has no modules", prior.PathwayID)
	}

	docs, err := cg.docRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return out, err
	}
	docsByPath := make(map[string]*types.DocumentRecord, len(docs))
	for _, d := range docs {
		docsByPath[d.Path] = d
	}

	concurrency := stageConfigInt(cg.log, StageContentGeneration, "concurrency", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	maxRounds := stageConfigInt(cg.log, StageContentGeneration, "max_rounds", debate.DefaultMaxRounds)
	minWords := stageConfigInt(cg.log, StageContentGeneration, "min_words", 150)
	maxWords := stageConfigInt(cg.log, StageContentGeneration, "max_words", 4000)
	minSuccessRatio := stageConfigFloat(cg.log, StageContentGeneration, "min_success_ratio", 0.5)

	rep.Progress(string(StageContentGeneration), 2, fmt.Sprintf("Generating content for %d modules", len(modules)))

	results := make([]ModuleContentResult, len(modules))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, mod := range modules {
		i, mod := i, mod
		g.Go(func() error {
			// Cooperative cancellation between modules: a cancelled run
			// stops dispatching work but never half-writes this module.
			if err := gctx.Err(); err != nil {
				results[i] = ModuleContentResult{ModuleID: mod.ID, ModuleKey: mod.ModuleKey, Error: err.Error()}
				return err
			}

			res := cg.generateModule(gctx, mod, docsByPath, maxRounds, minWords, maxWords)
			results[i] = res

			n := done.Add(1)
			rep.Progress(string(StageContentGeneration), int(2+97*n/int64(len(modules))), fmt.Sprintf("Module %d/%d done", n, len(modules)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			succeeded++
		} else {
			failed++
		}
	}

	if need := int(math.Ceil(minSuccessRatio * float64(len(modules)))); succeeded < need {
		return out, fmt.Errorf("content generation succeeded for %d/%d modules, need at least %d", succeeded, len(modules), need)
	}

	return ContentArtifact{Results: results, Succeeded: succeeded, Failed: failed}, nil
}

func (cg *ContentGenerator) generateModule(
	ctx context.Context,
	mod *types.LearningModule,
	docsByPath map[string]*types.DocumentRecord,
	maxRounds, minWords, maxWords int,
) ModuleContentResult {
	result := ModuleContentResult{ModuleID: mod.ID, ModuleKey: mod.ModuleKey}

	objectives := []string{}
	_ = json.Unmarshal(mod.LearningObjectives, &objectives)
	linked := []string{}
	_ = json.Unmarshal(mod.LinkedDocuments, &linked)

	sources := moduleSourceDigest(linked, docsByPath)

	proposer := debate.ProposeFunc[ContentDraft](func(ctx context.Context, req debate.Request[ContentDraft]) (ContentDraft, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Module: %s\nTheme: %s\nDescription: %s\nTarget complexity: %s\n", mod.Title, mod.Theme, mod.Description, mod.TargetComplexity)
		b.WriteString("\nLEARNING OBJECTIVES:\n")
		for _, o := range objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		fmt.Fprintf(&b, "\nSOURCE DOCUMENTS:\n%s\n", sources)
		fmt.Fprintf(&b, "\nMain content must be between %d and %d words.\n", minWords, maxWords)
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

		obj, genErr := cg.ai.GenerateJSON(ctx, contentProposeSystem, b.String(), "module_content", moduleContentSchema())
		if genErr != nil {
			return ContentDraft{}, genErr
		}
		var draft ContentDraft
		if err := json.Unmarshal(mustJSON(obj), &draft); err != nil {
			return ContentDraft{}, fmt.Errorf("decode content draft: %w", err)
		}
		return draft, nil
	})

	critic := debate.EvaluateFunc[ContentDraft](func(ctx context.Context, draft ContentDraft) (debate.Verdict, error) {
		if wc := wordCount(draft.MainContent); wc < minWords || wc > maxWords {
			return debate.Verdict{
				Severity: debate.SeverityMajor,
				Critique: fmt.Sprintf("main content is %d words, must be between %d and %d", wc, minWords, maxWords),
			}, nil
		}

		var b strings.Builder
		b.WriteString("LEARNING OBJECTIVES:\n")
		for _, o := range objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		fmt.Fprintf(&b, "\nCONTENT:\n%s", string(mustJSON(draft)))

		obj, evalErr := cg.ai.GenerateJSON(ctx, contentCriticSystem, b.String(), "content_verdict", verdictSchema())
		if evalErr != nil {
			return debate.Verdict{}, evalErr
		}
		return debate.Verdict{
			Severity: debate.ParseSeverity(stringField(obj, "severity")),
			Critique: stringField(obj, "critique"),
		}, nil
	})

	res, err := debate.Run(ctx, proposer, critic, maxRounds)
	result.DebateRounds = len(res.Rounds)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	now := time.Now()
	content := &types.ModuleContent{
		ID:           uuid.New(),
		ModuleID:     mod.ID,
		Introduction: res.Artifact.Introduction,
		MainContent:  res.Artifact.MainContent,
		Conclusion:   res.Artifact.Conclusion,
		Assessment:   res.Artifact.Assessment,
		Summary:      res.Artifact.Summary,
		DebateRounds: len(res.Rounds),
		DebatePassed: res.Accepted,
		Metadata:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if upErr := cg.contentRepo.Upsert(ctx, nil, []*types.ModuleContent{content}); upErr != nil {
		result.Error = upErr.Error()
		return result
	}

	result.Passed = res.Accepted
	if !res.Accepted {
		result.Error = "debate exhausted without acceptance"
	}
	return result
}

// moduleSourceDigest renders the module's linked documents for the prompt.
// Missing paths are noted rather than dropped so the critic can see them.
func moduleSourceDigest(linked []string, docsByPath map[string]*types.DocumentRecord) string {
	var b strings.Builder
	for _, p := range linked {
		d, ok := docsByPath[p]
		if !ok {
			fmt.Fprintf(&b, "--- %s (missing from corpus) ---\n", p)
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p, clampString(d.RawContent, 6000))
	}
	return b.String()
}
