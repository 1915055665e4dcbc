package runtime

import (
	"encoding/json"

	"github.com/moarshy/courseforge-backend/internal/types"
)

// DefaultRunType is assumed when a run payload does not name one.
const DefaultRunType = "course_generation"

// RunTypeOf resolves the handler type for a run from its payload.
func RunTypeOf(run *types.CourseGenerationRun) string {
	if run == nil || len(run.Payload) == 0 {
		return DefaultRunType
	}
	var m map[string]any
	if err := json.Unmarshal(run.Payload, &m); err != nil {
		return DefaultRunType
	}
	if s, ok := m["run_type"].(string); ok && s != "" {
		return s
	}
	return DefaultRunType
}
