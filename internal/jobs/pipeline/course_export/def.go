package course_export

import (
	"github.com/moarshy/courseforge-backend/internal/clients/gcp"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
)

type Pipeline struct {
	log         *logger.Logger
	courseRepo  repos.CourseRepo
	pathwayRepo repos.PathwayRepo
	contentRepo repos.ModuleContentRepo
	bucket      gcp.BucketService
}

func New(
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	pathwayRepo repos.PathwayRepo,
	contentRepo repos.ModuleContentRepo,
	bucket gcp.BucketService,
) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("run", "course_export"),
		courseRepo:  courseRepo,
		pathwayRepo: pathwayRepo,
		contentRepo: contentRepo,
		bucket:      bucket,
	}
}

func (p *Pipeline) Type() string { return "course_export" }
