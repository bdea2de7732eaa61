package api

import (
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "5"

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	var timeout *pipeline.StageTimeoutError
	switch {
	case errors.As(err, &timeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrGateway):
		if llm.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
