package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// CourseDetail is the read model for a single course: the generated pathway
// with its modules and whatever content exists for them.
type CourseDetail struct {
	Course  *types.Course          `json:"course"`
	Pathway *types.LearningPathway `json:"pathway,omitempty"`
	Modules []CourseDetailModule   `json:"modules,omitempty"`
}

type CourseDetailModule struct {
	Module  *types.LearningModule `json:"module"`
	Content *types.ModuleContent  `json:"content,omitempty"`
}

type CourseService interface {
	GetUserCourses(ctx context.Context, userID uuid.UUID) ([]*types.Course, error)
	GetCourseDetail(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*CourseDetail, error)
}

type courseService struct {
	db          *gorm.DB
	log         *logger.Logger
	courseRepo  repos.CourseRepo
	pathwayRepo repos.PathwayRepo
	contentRepo repos.ModuleContentRepo
}

func NewCourseService(db *gorm.DB, baseLog *logger.Logger, courseRepo repos.CourseRepo, pathwayRepo repos.PathwayRepo, contentRepo repos.ModuleContentRepo) CourseService {
	return &courseService{
		db:          db,
		log:         baseLog.With("service", "CourseService"),
		courseRepo:  courseRepo,
		pathwayRepo: pathwayRepo,
		contentRepo: contentRepo,
	}
}

func (s *courseService) GetUserCourses(ctx context.Context, userID uuid.UUID) ([]*types.Course, error) {
	return s.courseRepo.GetByOwner(ctx, nil, userID)
}

func (s *courseService) GetCourseDetail(ctx context.Context, userID uuid.UUID, courseID uuid.UUID) (*CourseDetail, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{courseID})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 || courses[0].OwnerUserID != userID {
		return nil, fmt.Errorf("course %s not found", courseID)
	}
	detail := &CourseDetail{Course: courses[0]}

	pathway, modules, err := s.pathwayRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if pathway == nil {
		// Generation has not produced a pathway yet.
		return detail, nil
	}
	detail.Pathway = pathway

	sort.Slice(modules, func(i, j int) bool { return modules[i].Position < modules[j].Position })

	moduleIDs := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}
	contents, err := s.contentRepo.GetByModuleIDs(ctx, nil, moduleIDs)
	if err != nil {
		return nil, err
	}
	byModule := make(map[uuid.UUID]*types.ModuleContent, len(contents))
	for _, c := range contents {
		byModule[c.ModuleID] = c
	}
	for _, m := range modules {
		detail.Modules = append(detail.Modules, CourseDetailModule{
			Module:  m,
			Content: byModule[m.ID],
		})
	}
	return detail, nil
}
