package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/moarshy/courseforge-backend/internal/http/handlers"
	"github.com/moarshy/courseforge-backend/internal/middleware"
	"github.com/moarshy/courseforge-backend/internal/platform/envutil"
)

type RouterConfig struct {
	IdentityMiddleware *middleware.IdentityMiddleware
	HealthHandler      *handlers.HealthHandler
	RealtimeHandler    *handlers.RealtimeHandler
	CourseHandler      *handlers.CourseHandler
	CourseGenHandler   *handlers.CourseGenHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("courseforge-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			envutil.String("CORS_ORIGIN", "http://localhost:3000"),
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID", "X-Session-ID"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	// Protected
	protected := router.Group("/api")
	protected.Use(cfg.IdentityMiddleware.RequireIdentity())

	// SSE
	protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
	protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
	protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)

	// Courses
	protected.GET("/courses", cfg.CourseHandler.ListUserCourses)
	protected.GET("/courses/:id", cfg.CourseHandler.GetCourse)

	// Generation
	protected.POST("/courses/generate", cfg.CourseGenHandler.Generate)
	protected.GET("/courses/:id/generation", cfg.CourseGenHandler.Status)
	protected.GET("/courses/:id/generation/checkpoints/:stage", cfg.CourseGenHandler.Checkpoint)
	protected.POST("/courses/:id/generation/cancel", cfg.CourseGenHandler.Cancel)
	protected.POST("/courses/:id/generation/retry", cfg.CourseGenHandler.Retry)
	protected.POST("/courses/:id/export", cfg.CourseGenHandler.Export)

	return router
}
