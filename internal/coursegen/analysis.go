package coursegen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/moarshy/courseforge-backend/internal/ingestion"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/platform/openai"
	"github.com/moarshy/courseforge-backend/internal/repos"
)

// analysisExcerptBytes bounds how much of a document goes into the prompt.
const analysisExcerptBytes = 12000

// DocumentAnalyzer classifies every intake document and records key
// concepts, learning objectives, a summary, and a summary embedding.
// Documents are analyzed concurrently on a bounded pool; one document's
// failure fails the stage, since a partial corpus would silently skew the
// pathway built on top of it.
type DocumentAnalyzer struct {
	log     *logger.Logger
	ai      openai.Client
	docRepo repos.DocumentRecordRepo
}

func NewDocumentAnalyzer(baseLog *logger.Logger, ai openai.Client, docRepo repos.DocumentRecordRepo) *DocumentAnalyzer {
	return &DocumentAnalyzer{
		log:     baseLog.With("stage", string(StageDocumentAnalysis)),
		ai:      ai,
		docRepo: docRepo,
	}
}

func (da *DocumentAnalyzer) Run(ctx context.Context, courseID uuid.UUID, prior IntakeArtifact, rep Reporter) (AnalysisArtifact, error) {
	var out AnalysisArtifact
	if rep == nil {
		rep = NopReporter
	}

	docs, err := da.docRepo.GetByIDs(ctx, nil, prior.DocumentIDs)
	if err != nil {
		return out, err
	}
	if len(docs) == 0 {
		return out, fmt.Errorf("%w: intake checkpoint lists no document records", ErrEmptyCorpus)
	}

	da.log.Info("Starting document analysis", "course_id", courseID, "documents", len(docs))
	rep.Progress(string(StageDocumentAnalysis), 2, fmt.Sprintf("Analyzing %d documents", len(docs)))

	concurrency := stageConfigInt(da.log, StageDocumentAnalysis, "concurrency", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu           sync.Mutex
		byDocType    = map[string]int{}
		byComplexity = map[string]int{}
		done         atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			excerpt := analysisExcerpt(doc.RawContent)

			obj, genErr := da.ai.GenerateJSON(
				gctx,
				documentAnalysisSystem,
				fmt.Sprintf("File path: %s\n\nFILE CONTENT:\n%s", doc.Path, excerpt),
				"document_analysis",
				documentAnalysisSchema(),
			)
			if genErr != nil {
				return fmt.Errorf("analyze %s: %w", doc.Path, genErr)
			}

			summary := stringField(obj, "summary")
			vecs, embErr := da.ai.Embed(gctx, []string{summary})
			if embErr != nil {
				return fmt.Errorf("embed %s: %w", doc.Path, embErr)
			}

			docType := stringField(obj, "doc_type")
			complexity := stringField(obj, "complexity_level")

			updates := map[string]interface{}{
				"title":               clampString(stringField(obj, "title"), 300),
				"doc_type":            docType,
				"complexity_level":    complexity,
				"key_concepts":        datatypes.JSON(mustJSON(toStringSlice(obj["key_concepts"]))),
				"learning_objectives": datatypes.JSON(mustJSON(toStringSlice(obj["learning_objectives"]))),
				"summary":             summary,
				"embedding":           datatypes.JSON(mustJSON(vecs[0])),
			}
			if upErr := da.docRepo.UpdateFields(gctx, nil, doc.ID, updates); upErr != nil {
				return fmt.Errorf("persist analysis for %s: %w", doc.Path, upErr)
			}

			mu.Lock()
			byDocType[docType]++
			byComplexity[complexity]++
			mu.Unlock()

			n := done.Add(1)
			rep.Progress(string(StageDocumentAnalysis), int(2+97*n/int64(len(docs))), fmt.Sprintf("Analyzed %d/%d documents", n, len(docs)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return AnalysisArtifact{
		DocumentIDs:  ids,
		ByDocType:    byDocType,
		ByComplexity: byComplexity,
	}, nil
}

// analysisExcerpt bounds the prompt to the document's leading chunks.
func analysisExcerpt(raw string) string {
	if len(raw) <= analysisExcerptBytes {
		return raw
	}
	chunks := ingestion.ChunkText(raw, 4000, 200)
	var b []byte
	for _, ch := range chunks {
		if len(b)+len(ch.Text)+2 > analysisExcerptBytes {
			break
		}
		b = append(b, ch.Text...)
		b = append(b, '\n', '\n')
	}
	return string(b)
}
