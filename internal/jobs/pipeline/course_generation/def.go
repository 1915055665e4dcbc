package course_generation

import (
	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
)

type Pipeline struct {
	log        *logger.Logger
	orch       *coursegen.Orchestrator
	courseRepo repos.CourseRepo
}

func New(baseLog *logger.Logger, orch *coursegen.Orchestrator, courseRepo repos.CourseRepo) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("run", "course_generation"),
		orch:       orch,
		courseRepo: courseRepo,
	}
}

func (p *Pipeline) Type() string { return "course_generation" }
