// Package response writes JSON bodies and RFC 7807 problems for the API handlers.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/api/models"
)

// JSON writes a JSON response with the given status code and echoes the request ID.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Created writes a 201 with a Location header pointing at the new resource.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// Error writes a Problem+JSON error response for the current request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 with per-field validation errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(middleware.GetRequestID(r.Context()), detail))
}

// Unprocessable writes a 422 for requests that are well formed but cannot be
// planned, such as an address that does not geocode.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnprocessable(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503. A positive retryAfter is sent as Retry-After,
// rounded up to whole seconds.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}
