package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/artifact"
	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/http/response"
	"github.com/moarshy/courseforge-backend/internal/pkg/ctxutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/services"
)

type CourseGenHandler struct {
	log        *logger.Logger
	genService services.CourseGenerationService
}

func NewCourseGenHandler(log *logger.Logger, genService services.CourseGenerationService) *CourseGenHandler {
	return &CourseGenHandler{
		log:        log.With("handler", "CourseGenHandler"),
		genService: genService,
	}
}

// Generate creates a course row and enqueues a generation run for it.
func (h *CourseGenHandler) Generate(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	var in services.EnqueueInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	course, run, err := h.genService.Enqueue(c.Request.Context(), rd.UserID, in)
	if err != nil {
		h.log.Error("Enqueue failed", "error", err, "user_id", rd.UserID)
		response.RespondError(c, http.StatusBadRequest, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"course": course, "run": run})
}

func (h *CourseGenHandler) Status(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	courseID, ok := h.courseID(c)
	if !ok {
		return
	}
	run, err := h.genService.Status(c.Request.Context(), rd.UserID, courseID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "run_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// Checkpoint returns the persisted artifact for one completed stage.
func (h *CourseGenHandler) Checkpoint(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	courseID, ok := h.courseID(c)
	if !ok {
		return
	}
	stage := c.Param("stage")
	payload, err := h.genService.Checkpoint(c.Request.Context(), rd.UserID, courseID, stage)
	if err != nil {
		status := http.StatusBadRequest
		code := "checkpoint_failed"
		if coursegen.IsMissingCheckpoint(err) || errors.Is(err, artifact.ErrNotFound) {
			status = http.StatusNotFound
			code = "checkpoint_not_found"
		}
		response.RespondError(c, status, code, err)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (h *CourseGenHandler) Cancel(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	courseID, ok := h.courseID(c)
	if !ok {
		return
	}
	run, err := h.genService.Cancel(c.Request.Context(), rd.UserID, courseID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "cancel_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

func (h *CourseGenHandler) Retry(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	courseID, ok := h.courseID(c)
	if !ok {
		return
	}
	run, err := h.genService.Retry(c.Request.Context(), rd.UserID, courseID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "retry_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// Export enqueues a run that renders the generated course to object storage.
func (h *CourseGenHandler) Export(c *gin.Context) {
	rd, ok := h.identity(c)
	if !ok {
		return
	}
	courseID, ok := h.courseID(c)
	if !ok {
		return
	}
	run, err := h.genService.EnqueueExport(c.Request.Context(), rd.UserID, courseID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "export_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (h *CourseGenHandler) identity(c *gin.Context) (*ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return nil, false
	}
	return rd, true
}

func (h *CourseGenHandler) courseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return uuid.Nil, false
	}
	return id, true
}
