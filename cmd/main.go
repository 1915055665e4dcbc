package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moarshy/courseforge-backend/internal/artifact"
	"github.com/moarshy/courseforge-backend/internal/clients/gcp"
	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/db"
	"github.com/moarshy/courseforge-backend/internal/http/handlers"
	"github.com/moarshy/courseforge-backend/internal/jobs/pipeline/course_export"
	"github.com/moarshy/courseforge-backend/internal/jobs/pipeline/course_generation"
	jobrt "github.com/moarshy/courseforge-backend/internal/jobs/runtime"
	"github.com/moarshy/courseforge-backend/internal/jobs/worker"
	"github.com/moarshy/courseforge-backend/internal/middleware"
	"github.com/moarshy/courseforge-backend/internal/observability"
	"github.com/moarshy/courseforge-backend/internal/platform/envutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/platform/openai"
	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/server"
	"github.com/moarshy/courseforge-backend/internal/services"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/temporalx"
	"github.com/moarshy/courseforge-backend/internal/temporalx/temporalworker"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "courseforge-backend",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	courseRepo := repos.NewCourseRepo(thePG, log)
	runRepo := repos.NewCourseGenerationRunRepo(thePG, log)
	checkpointRepo := repos.NewStageCheckpointRepo(thePG, log)
	docRepo := repos.NewDocumentRecordRepo(thePG, log)
	pathwayRepo := repos.NewPathwayRepo(thePG, log)
	contentRepo := repos.NewModuleContentRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub...")
	sseHub := sse.NewSSEHub(log)
	var sseBus services.SSEBus
	if bus, err := services.NewRedisSSEBus(log); err != nil {
		log.Warn("Redis SSE bus unavailable; events stay on the local hub", "error", err)
	} else {
		sseBus = bus
		if err := bus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
			log.Warn("Redis SSE forwarder failed to start", "error", err)
		}
	}
	notify := services.NewRunNotifier(sseHub, sseBus)

	// Clients
	log.Info("Setting up clients...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService; snapshots and exports disabled", "error", err)
	}

	// Pipeline stages
	store := artifact.NewPostgresStore(thePG, checkpointRepo)
	intake := coursegen.NewRepoIntake(log, docRepo, bucketService)
	analyzer := coursegen.NewDocumentAnalyzer(log, openaiClient, docRepo)
	pathwayGen := coursegen.NewPathwayGenerator(log, openaiClient, docRepo, pathwayRepo)
	contentGen := coursegen.NewContentGenerator(log, openaiClient, docRepo, pathwayRepo, contentRepo)
	orch := coursegen.NewOrchestrator(log, runRepo, store, intake, analyzer, pathwayGen, contentGen)

	// Run handlers
	registry := jobrt.NewRegistry()
	if err := registry.Register(course_generation.New(log, orch, courseRepo)); err != nil {
		log.Error("Could not register course generation pipeline", "error", err)
		os.Exit(1)
	}
	if err := registry.Register(course_export.New(log, courseRepo, pathwayRepo, contentRepo, bucketService)); err != nil {
		log.Error("Could not register course export pipeline", "error", err)
		os.Exit(1)
	}

	// Temporal is optional; when unconfigured the DB worker carries all runs.
	var dispatch services.RunDispatcher
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Warn("Temporal client init failed; falling back to DB worker", "error", err)
	}
	if temporalClient != nil {
		defer temporalClient.Close()
		if d, err := services.NewTemporalDispatcher(log, temporalClient); err == nil {
			dispatch = d
		}
		runner, err := temporalworker.NewRunner(log, temporalClient, thePG, runRepo, registry, notify)
		if err != nil {
			log.Error("Temporal worker init failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := runner.Start(ctx); err != nil {
				log.Error("Temporal worker stopped", "error", err)
			}
		}()
	}

	// DB polling worker claims pending runs and stale Temporal runs alike.
	dbWorker := worker.NewWorker(thePG, log, runRepo, registry, notify)
	dbWorker.Start(ctx)

	// Services
	log.Info("Setting up services...")
	courseService := services.NewCourseService(thePG, log, courseRepo, pathwayRepo, contentRepo)
	courseGenService := services.NewCourseGenerationService(thePG, log, courseRepo, runRepo, orch, notify, dispatch)

	// Handlers
	log.Info("Setting up handlers...")
	healthHandler := handlers.NewHealthHandler()
	realtimeHandler := handlers.NewRealtimeHandler(log, sseHub)
	courseHandler := handlers.NewCourseHandler(log, courseService)
	courseGenHandler := handlers.NewCourseGenHandler(log, courseGenService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		IdentityMiddleware: middleware.NewIdentityMiddleware(log),
		HealthHandler:      healthHandler,
		RealtimeHandler:    realtimeHandler,
		CourseHandler:      courseHandler,
		CourseGenHandler:   courseGenHandler,
	})

	port := envutil.String("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	if sseBus != nil {
		if err := sseBus.Close(); err != nil {
			log.Warn("SSE bus close failed", "error", err)
		}
	}
	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("Otel shutdown failed", "error", err)
		}
	}
}
