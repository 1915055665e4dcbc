package course_export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/clients/gcp"
	"github.com/moarshy/courseforge-backend/internal/jobs/runtime"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// Run renders the generated course as a markdown bundle and uploads it to
// the export bucket under courses/<course_id>/export/. Re-exports replace
// the previous bundle.
func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	ctx := jc.Ctx
	courseID := jc.Run.CourseID

	if p.bucket == nil {
		jc.Fail("export", fmt.Errorf("export storage not configured: set EXPORT_GCS_BUCKET_NAME"))
		return nil
	}

	jc.Progress("export", 5, "Loading generated course")

	pathway, modules, err := p.pathwayRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		jc.Fail("export", fmt.Errorf("load pathway: %w", err))
		return nil
	}
	if pathway == nil || len(modules) == 0 {
		jc.Fail("export", fmt.Errorf("course %s has no generated pathway to export", courseID))
		return nil
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Position < modules[j].Position })

	moduleIDs := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}
	contents, err := p.contentRepo.GetByModuleIDs(ctx, nil, moduleIDs)
	if err != nil {
		jc.Fail("export", fmt.Errorf("load module content: %w", err))
		return nil
	}
	byModule := make(map[uuid.UUID]*types.ModuleContent, len(contents))
	for _, c := range contents {
		byModule[c.ModuleID] = c
	}

	prefix := fmt.Sprintf("courses/%s/export/", courseID)
	if err := p.bucket.DeletePrefix(ctx, gcp.BucketCategoryExport, prefix); err != nil {
		jc.Fail("export", fmt.Errorf("clear previous export: %w", err))
		return nil
	}

	keys := make([]string, 0, len(modules)+1)
	for i, m := range modules {
		content := byModule[m.ID]
		if content == nil {
			// A module that never produced content is skipped, matching
			// the partial success the generation stage allowed.
			continue
		}
		key := fmt.Sprintf("%s%02d-%s.md", prefix, m.Position+1, m.ModuleKey)
		body := renderModule(m, content)
		if err := p.bucket.UploadFile(ctx, gcp.BucketCategoryExport, key, strings.NewReader(body)); err != nil {
			jc.Fail("export", fmt.Errorf("upload %s: %w", key, err))
			return nil
		}
		keys = append(keys, key)
		jc.Progress("export", 10+int(float64(i+1)/float64(len(modules))*80.0), fmt.Sprintf("Exported %s", m.ModuleKey))
	}

	indexKey := prefix + "index.md"
	if err := p.bucket.UploadFile(ctx, gcp.BucketCategoryExport, indexKey, strings.NewReader(renderIndex(pathway, modules, byModule))); err != nil {
		jc.Fail("export", fmt.Errorf("upload index: %w", err))
		return nil
	}
	keys = append(keys, indexKey)

	url := p.bucket.GetPublicURL(gcp.BucketCategoryExport, indexKey)
	if jc.Notify != nil {
		jc.Notify.ExportReady(jc.Run.OwnerUserID, courseID, url)
	}
	jc.Succeed(map[string]any{
		"course_id": courseID.String(),
		"keys":      keys,
		"index_url": url,
	})
	return nil
}

func renderIndex(pathway *types.LearningPathway, modules []*types.LearningModule, byModule map[uuid.UUID]*types.ModuleContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n## Modules\n\n", pathway.Title, pathway.Description)
	for _, m := range modules {
		status := "not generated"
		if c := byModule[m.ID]; c != nil {
			status = fmt.Sprintf("%d debate rounds", c.DebateRounds)
			if !c.DebatePassed {
				status += ", best effort"
			}
		}
		fmt.Fprintf(&b, "%d. **%s** (%s): %s\n", m.Position+1, m.Title, m.ModuleKey, status)
	}
	return b.String()
}

func renderModule(m *types.LearningModule, c *types.ModuleContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}
	sections := []struct {
		heading string
		body    string
	}{
		{"Introduction", c.Introduction},
		{"", c.MainContent},
		{"Conclusion", c.Conclusion},
		{"Assessment", c.Assessment},
		{"Summary", c.Summary},
	}
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		if s.heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", s.heading)
		}
		fmt.Fprintf(&b, "%s\n\n", s.body)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
