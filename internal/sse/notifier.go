package sse

import (
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/types"
)

// RunNotifier pushes course generation run lifecycle events to the owner's
// SSE channel. It lives here rather than next to its implementation so the
// worker and pipeline packages can depend on it without pulling in the
// service layer.
type RunNotifier interface {
	RunCreated(userID uuid.UUID, run *types.CourseGenerationRun)
	RunProgress(userID uuid.UUID, run *types.CourseGenerationRun, stage string, progress int, message string)
	RunFailed(userID uuid.UUID, run *types.CourseGenerationRun, stage string, errorMessage string)
	RunDone(userID uuid.UUID, run *types.CourseGenerationRun)
	ExportReady(userID uuid.UUID, courseID uuid.UUID, url string)
}
