package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/tripmatch/internal/matcher"
	"github.com/example/tripmatch/internal/models"
	"github.com/example/tripmatch/internal/scoring"
	"github.com/example/tripmatch/internal/storage"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, StatusCode: status}
}

func badRequest(message string) *APIError {
	return NewAPIError("bad_request", message, http.StatusBadRequest)
}

var errMissingUser = NewAPIError("missing_user", "X-User-ID header is required", http.StatusUnauthorized)

// toAPIError maps service errors onto HTTP responses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	var verr *models.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &verr):
		return NewAPIError("validation_failed", verr.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		return NewAPIError("not_found", "resource not found", http.StatusNotFound)
	case errors.Is(err, matcher.ErrForbidden):
		return NewAPIError("forbidden", err.Error(), http.StatusForbidden)
	case errors.Is(err, matcher.ErrMatchExpired):
		return NewAPIError("match_expired", err.Error(), http.StatusGone)
	case errors.Is(err, models.ErrInvalidTransition):
		return NewAPIError("invalid_transition", err.Error(), http.StatusConflict)
	case errors.Is(err, matcher.ErrTripClosed):
		return NewAPIError("trip_closed", err.Error(), http.StatusConflict)
	case errors.Is(err, scoring.ErrNotMatchable):
		return NewAPIError("not_matchable", err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrConflict):
		return NewAPIError("conflict", err.Error(), http.StatusConflict)
	default:
		return NewAPIError("internal_error", "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, apiErr.StatusCode, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
