package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/coursegen"
	"github.com/moarshy/courseforge-backend/internal/middleware"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/services"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// fakeGenService scripts each service call per test.
type fakeGenService struct {
	enqueue       func(userID uuid.UUID, in services.EnqueueInput) (*types.Course, *types.CourseGenerationRun, error)
	enqueueExport func(userID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	status        func(userID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	checkpoint    func(userID, courseID uuid.UUID, stage string) (json.RawMessage, error)
	cancel        func(userID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	retry         func(userID, courseID uuid.UUID) (*types.CourseGenerationRun, error)
}

func (f *fakeGenService) Enqueue(_ context.Context, userID uuid.UUID, in services.EnqueueInput) (*types.Course, *types.CourseGenerationRun, error) {
	return f.enqueue(userID, in)
}

func (f *fakeGenService) EnqueueExport(_ context.Context, userID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.enqueueExport(userID, courseID)
}

func (f *fakeGenService) Status(_ context.Context, userID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.status(userID, courseID)
}

func (f *fakeGenService) Checkpoint(_ context.Context, userID, courseID uuid.UUID, stage string) (json.RawMessage, error) {
	return f.checkpoint(userID, courseID, stage)
}

func (f *fakeGenService) Cancel(_ context.Context, userID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.cancel(userID, courseID)
}

func (f *fakeGenService) Retry(_ context.Context, userID, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.retry(userID, courseID)
}

func testRouter(t *testing.T, svc services.CourseGenerationService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := NewCourseGenHandler(log, svc)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.NewIdentityMiddleware(log).RequireIdentity())
	api.POST("/courses/generate", h.Generate)
	api.GET("/courses/:id/generation", h.Status)
	api.GET("/courses/:id/generation/checkpoints/:stage", h.Checkpoint)
	api.POST("/courses/:id/generation/cancel", h.Cancel)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateRequiresIdentity(t *testing.T) {
	r := testRouter(t, &fakeGenService{})
	w := doRequest(t, r, http.MethodPost, "/api/courses/generate", "", `{"repo_url":"https://example.com/repo.git"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGenerateAcceptsRun(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()
	svc := &fakeGenService{
		enqueue: func(gotUser uuid.UUID, in services.EnqueueInput) (*types.Course, *types.CourseGenerationRun, error) {
			if gotUser != userID {
				t.Fatalf("user = %s, want %s", gotUser, userID)
			}
			if in.RepoURL != "https://example.com/repo.git" {
				t.Fatalf("repo_url = %q", in.RepoURL)
			}
			course := &types.Course{ID: courseID, OwnerUserID: userID}
			run := &types.CourseGenerationRun{ID: uuid.New(), CourseID: courseID, Status: "pending"}
			return course, run, nil
		},
	}
	r := testRouter(t, svc)

	w := doRequest(t, r, http.MethodPost, "/api/courses/generate", userID.String(), `{"repo_url":"https://example.com/repo.git"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Run struct {
			Status string `json:"status"`
		} `json:"run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Run.Status != "pending" {
		t.Fatalf("run status = %q, want pending", resp.Run.Status)
	}
}

func TestStatusRejectsBadCourseID(t *testing.T) {
	r := testRouter(t, &fakeGenService{})
	w := doRequest(t, r, http.MethodGet, "/api/courses/not-a-uuid/generation", uuid.NewString(), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCheckpointMissingMapsToNotFound(t *testing.T) {
	courseID := uuid.New()
	svc := &fakeGenService{
		checkpoint: func(_, gotCourse uuid.UUID, stage string) (json.RawMessage, error) {
			if stage != "pathway_building" {
				t.Fatalf("stage = %q", stage)
			}
			return nil, &coursegen.MissingCheckpointError{CourseID: gotCourse, Stage: coursegen.StagePathwayBuilding}
		},
	}
	r := testRouter(t, svc)

	w := doRequest(t, r, http.MethodGet, fmt.Sprintf("/api/courses/%s/generation/checkpoints/pathway_building", courseID), uuid.NewString(), "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
}

func TestCheckpointReturnsRawArtifact(t *testing.T) {
	courseID := uuid.New()
	payload := json.RawMessage(`{"documents":[{"path":"README.md"}]}`)
	svc := &fakeGenService{
		checkpoint: func(_, _ uuid.UUID, _ string) (json.RawMessage, error) {
			return payload, nil
		},
	}
	r := testRouter(t, svc)

	w := doRequest(t, r, http.MethodGet, fmt.Sprintf("/api/courses/%s/generation/checkpoints/document_analysis", courseID), uuid.NewString(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != string(payload) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCancelSurfacesServiceError(t *testing.T) {
	svc := &fakeGenService{
		cancel: func(_, _ uuid.UUID) (*types.CourseGenerationRun, error) {
			return nil, fmt.Errorf("run already succeeded")
		},
	}
	r := testRouter(t, svc)

	w := doRequest(t, r, http.MethodPost, fmt.Sprintf("/api/courses/%s/generation/cancel", uuid.New()), uuid.NewString(), "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "run already succeeded") {
		t.Fatalf("error message not surfaced: %s", w.Body.String())
	}
}
