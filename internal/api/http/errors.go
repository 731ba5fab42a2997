package httpapi

import (
	"errors"
	"net/http"

	"github.com/openshelf/lending-hub/internal/domain/loan"
)

// classify maps the lending error taxonomy onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, loan.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, loan.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, loan.ErrUnauthorized), errors.Is(err, loan.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, loan.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, loan.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_PARAM"
	case errors.Is(err, loan.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var te *loan.TransitionError
	if errors.As(err, &te) {
		allowed := te.Allowed
		if allowed == nil {
			allowed = []loan.Status{}
		}
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "INVALID_TRANSITION",
			"message": te.Error(),
			"allowed": allowed,
		})
		return
	}

	status, code := classify(err)
	switch status {
	case http.StatusServiceUnavailable:
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		respondError(w, status, code, "store unavailable, retry later")
	case http.StatusInternalServerError:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		respondError(w, status, code, err.Error())
	default:
		respondError(w, status, code, err.Error())
	}
}
