package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure it
// writes a 400 problem and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.BadRequest(w, r, "request validation failed", fieldErrors(verrs))
			return false
		}
		response.BadRequest(w, r, err.Error(), nil)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) []models.FieldError {
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   trimNamespace(fe.Namespace()),
			Message: fieldMessage(fe),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}

// trimNamespace drops the top-level struct name from "PlanTripRequest.originPoint.lat".
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}
