package middleware

import (
	"mime"
	"net/http"

	"github.com/roadtripper/roadtripper/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json unless the
// handler already chose one.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST, PUT, and PATCH bodies declared as anything other than
// JSON with a 415 problem. A missing Content-Type is accepted.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					problem := models.NewProblem(models.ProblemTypeUnsupportedType, "Unsupported media type",
						http.StatusUnsupportedMediaType, GetRequestID(r.Context()))
					problem.Detail = "request body must be application/json"
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
