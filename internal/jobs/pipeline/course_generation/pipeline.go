package course_generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/jobs/runtime"
)

// Run walks the claimed run through its remaining stages. Each Advance call
// executes exactly one stage and persists its checkpoint before the stage
// pointer moves, so a crash resumes at the stage that was interrupted.
func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	run := jc.Run

	for {
		stage, err := coursegen.ParseStage(run.CurrentStage)
		if err != nil {
			jc.Fail("dispatch", err)
			return nil
		}
		if stage == coursegen.StageCompleted {
			break
		}

		if _, err := p.orch.Advance(jc.Ctx, run, jc); err != nil {
			jc.Fail(string(stage), err)
			return nil
		}
	}

	result := map[string]any{
		"course_id": run.CourseID.String(),
	}
	var pathway coursegen.PathwayArtifact
	if raw, err := p.orch.GetCheckpoint(jc.Ctx, run.CourseID, coursegen.StagePathwayBuilding); err == nil {
		if json.Unmarshal(raw, &pathway) == nil {
			result["pathway_id"] = pathway.PathwayID.String()
			result["module_count"] = pathway.ModuleCount
			result["pathway_debate_accepted"] = pathway.DebateAccepted
		}
	}
	var content coursegen.ContentArtifact
	if raw, err := p.orch.GetCheckpoint(jc.Ctx, run.CourseID, coursegen.StageContentGeneration); err == nil {
		if json.Unmarshal(raw, &content) == nil {
			result["modules_succeeded"] = content.Succeeded
			result["modules_failed"] = content.Failed
		}
	}

	p.markCourseReady(jc, pathway.Title)

	jc.Succeed(result)
	return nil
}

func (p *Pipeline) markCourseReady(jc *runtime.Context, title string) {
	if p.courseRepo == nil {
		return
	}
	meta := map[string]any{"status": "ready"}
	if rows, err := p.courseRepo.GetByIDs(jc.Ctx, nil, []uuid.UUID{jc.Run.CourseID}); err == nil && len(rows) > 0 {
		var current map[string]any
		_ = json.Unmarshal(rows[0].Metadata, &current)
		for k, v := range current {
			if k != "status" {
				meta[k] = v
			}
		}
	}
	b, _ := json.Marshal(meta)
	updates := map[string]interface{}{
		"metadata":   datatypes.JSON(b),
		"updated_at": time.Now(),
	}
	if title != "" {
		updates["title"] = title
	}
	if err := p.courseRepo.UpdateFields(jc.Ctx, nil, jc.Run.CourseID, updates); err != nil {
		p.log.Warn("Failed to mark course ready", "course_id", jc.Run.CourseID, "error", err)
	}
}
