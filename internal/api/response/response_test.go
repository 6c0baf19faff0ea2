package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
)

// requestWithID runs a request through the RequestID middleware so the context
// carries the given ID.
func requestWithID(t *testing.T, method, path, id string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, id)

	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), req)
	return processed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode problem: %v", err)
	}
	return problem
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/trips/trip-1", "req_abc")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"id": "trip-1"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req_abc" {
		t.Errorf("expected X-Request-Id req_abc, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json, got %q", got)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	if got := rec.Header().Get("X-Request-Id"); got != "" {
		t.Errorf("expected no X-Request-Id, got %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestCreated_SetsLocation(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/trips", "req_new")
	rec := httptest.NewRecorder()

	response.Created(rec, req, "/v1/trips/trip-9", map[string]string{"id": "trip-9"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/v1/trips/trip-9" {
		t.Errorf("expected Location /v1/trips/trip-9, got %q", got)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req_new" {
		t.Errorf("expected X-Request-Id req_new, got %q", got)
	}
}

func TestProblemWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "validation failed", []models.FieldError{{Field: "destination", Message: "is required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "trip not found")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) {
			response.Conflict(w, r, "trip changed")
		}, http.StatusConflict, models.ProblemTypeConflict},
		{"unprocessable", func(w http.ResponseWriter, r *http.Request) {
			response.Unprocessable(w, r, "No driving route could be found between those locations.")
		}, http.StatusUnprocessableEntity, models.ProblemTypeUnprocessable},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "an unexpected error occurred")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "directions are down", 0)
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodPost, "/v1/trips/trip-1/stops/search", "req_problem")
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
				t.Errorf("expected application/problem+json, got %q", got)
			}
			problem := decodeProblem(t, rec)
			if problem.Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, problem.Type)
			}
			if problem.TraceID != "req_problem" {
				t.Errorf("expected traceId req_problem, got %q", problem.TraceID)
			}
			if problem.Instance != "/v1/trips/trip-1/stops/search" {
				t.Errorf("expected instance to be the request path, got %q", problem.Instance)
			}
		})
	}
}

func TestServiceUnavailable_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       string
	}{
		{"none", 0, ""},
		{"whole seconds", 30 * time.Second, "30"},
		{"rounds up", 1500 * time.Millisecond, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/trips", http.NoBody)
			rec := httptest.NewRecorder()

			response.ServiceUnavailable(rec, req, "directions are down", tt.retryAfter)

			if got := rec.Header().Get("Retry-After"); got != tt.want {
				t.Errorf("expected Retry-After %q, got %q", tt.want, got)
			}
		})
	}
}
