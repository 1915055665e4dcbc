package coursegen

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/clients/gcp"
	"github.com/moarshy/courseforge-backend/internal/ingestion"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// IntakeParams are the user inputs carried on the run payload.
type IntakeParams struct {
	RepoURL          string   `json:"repo_url"`
	RepoDir          string   `json:"repo_dir"`
	IncludeGlobs     []string `json:"include_globs,omitempty"`
	ExcludeGlobs     []string `json:"exclude_globs,omitempty"`
	TargetComplexity string   `json:"target_complexity,omitempty"`
}

// RepoIntake turns a cloned repository tree into DocumentRecord rows and an
// IntakeArtifact checkpoint. Re-running replaces the prior record set, so
// the stage converges on one canonical corpus per course.
type RepoIntake struct {
	log     *logger.Logger
	docRepo repos.DocumentRecordRepo
	bucket  gcp.BucketService
}

// NewRepoIntake builds the intake stage. bucket may be nil; snapshot upload
// is then skipped.
func NewRepoIntake(baseLog *logger.Logger, docRepo repos.DocumentRecordRepo, bucket gcp.BucketService) *RepoIntake {
	return &RepoIntake{
		log:     baseLog.With("stage", string(StageRepoIntake)),
		docRepo: docRepo,
		bucket:  bucket,
	}
}

func (ri *RepoIntake) Run(ctx context.Context, courseID uuid.UUID, params IntakeParams, rep Reporter) (IntakeArtifact, error) {
	var out IntakeArtifact
	if rep == nil {
		rep = NopReporter
	}
	if strings.TrimSpace(params.RepoDir) == "" {
		return out, fmt.Errorf("repo_dir required")
	}

	rep.Progress(string(StageRepoIntake), 5, "Discovering repository files")

	files, err := ingestion.Discover(params.RepoDir, ingestion.Filters{
		IncludeGlobs: params.IncludeGlobs,
		ExcludeGlobs: params.ExcludeGlobs,
		MaxFileBytes: int64(stageConfigInt(ri.log, StageRepoIntake, "max_file_bytes", ingestion.DefaultMaxFileBytes)),
		MaxFiles:     stageConfigInt(ri.log, StageRepoIntake, "max_files", ingestion.DefaultMaxFiles),
	})
	if err != nil {
		return out, err
	}
	if len(files) == 0 {
		return out, fmt.Errorf("%w: no source files discovered under %s", ErrEmptyCorpus, params.RepoDir)
	}

	if err := ri.docRepo.DeleteByCourseID(ctx, nil, courseID); err != nil {
		return out, fmt.Errorf("clear prior records: %w", err)
	}

	snapshotPrefix := ""
	if ri.bucket != nil {
		snapshotPrefix = fmt.Sprintf("courses/%s/snapshot", courseID)
	}

	now := time.Now()
	docs := make([]*types.DocumentRecord, 0, len(files))
	skipped := []string{}
	var totalBytes int64

	for i, f := range files {
		text, readErr := ingestion.ReadText(f)
		if readErr != nil {
			skipped = append(skipped, f.RelPath)
			continue
		}

		if ri.bucket != nil {
			key := snapshotPrefix + "/" + f.RelPath
			if upErr := ri.bucket.UploadFile(ctx, gcp.BucketCategorySnapshot, key, strings.NewReader(text)); upErr != nil {
				ri.log.Warn("Snapshot upload failed", "path", f.RelPath, "error", upErr.Error())
			}
		}

		docs = append(docs, &types.DocumentRecord{
			ID:         uuid.New(),
			CourseID:   courseID,
			Path:       f.RelPath,
			Title:      titleFromPath(f.RelPath),
			RawContent: text,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		totalBytes += f.Size

		if (i+1)%25 == 0 {
			rep.Progress(string(StageRepoIntake), 5+90*(i+1)/len(files), fmt.Sprintf("Read %d/%d files", i+1, len(files)))
		}
	}

	if len(docs) == 0 {
		return out, fmt.Errorf("%w: all %d discovered files were unreadable", ErrEmptyCorpus, len(files))
	}

	if _, err := ri.docRepo.Create(ctx, nil, docs); err != nil {
		return out, fmt.Errorf("create document records: %w", err)
	}

	rep.Progress(string(StageRepoIntake), 100, fmt.Sprintf("Ingested %d files", len(docs)))

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return IntakeArtifact{
		RepoURL:      params.RepoURL,
		SnapshotKey:  snapshotPrefix,
		DocumentIDs:  ids,
		FileCount:    len(docs),
		TotalBytes:   totalBytes,
		SkippedPaths: skipped,
	}, nil
}

func titleFromPath(rel string) string {
	base := path.Base(rel)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}
