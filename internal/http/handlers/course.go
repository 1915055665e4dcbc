package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/http/response"
	"github.com/moarshy/courseforge-backend/internal/pkg/ctxutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/services"
)

type CourseHandler struct {
	log           *logger.Logger
	courseService services.CourseService
}

func NewCourseHandler(log *logger.Logger, courseService services.CourseService) *CourseHandler {
	return &CourseHandler{
		log:           log.With("handler", "CourseHandler"),
		courseService: courseService,
	}
}

func (h *CourseHandler) ListUserCourses(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	courses, err := h.courseService.GetUserCourses(c.Request.Context(), rd.UserID)
	if err != nil {
		h.log.Error("ListUserCourses failed", "error", err, "user_id", rd.UserID)
		response.RespondError(c, http.StatusInternalServerError, "load_courses_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

func (h *CourseHandler) GetCourse(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	detail, err := h.courseService.GetCourseDetail(c.Request.Context(), rd.UserID, courseID)
	if err != nil {
		h.log.Error("GetCourse failed", "error", err, "user_id", rd.UserID, "course_id", courseID)
		response.RespondError(c, http.StatusNotFound, "course_not_found", err)
		return
	}
	response.RespondOK(c, detail)
}
