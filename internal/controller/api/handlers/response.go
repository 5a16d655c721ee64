package handlers

import (
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/pipeline"
)

// APIError is the body of every failed request: {"success": false,
// "error": "..."}. The browser client shows Err as-is.
type APIError struct {
	status  int
	Success bool   `json:"success"`
	Err     string `json:"error"`
}

func (e *APIError) Error() string  { return e.Err }
func (e *APIError) GetStatus() int { return e.status }

// InitErrors makes huma build APIError values. Schema violations are
// flattened to "field: problem" with the request location prefix dropped,
// e.g. "username: expected length >= 1".
func InitErrors() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if len(errs) == 0 {
			return &APIError{status: status, Err: msg}
		}
		parts := make([]string, 0, len(errs))
		for _, err := range errs {
			parts = append(parts, describe(err))
		}
		return &APIError{status: status, Err: msg + ": " + strings.Join(parts, "; ")}
	}
}

func describe(err error) string {
	var detail *huma.ErrorDetail
	if !errors.As(err, &detail) {
		return err.Error()
	}
	field := detail.Location
	for _, prefix := range []string{"body.", "path.", "query."} {
		field = strings.TrimPrefix(field, prefix)
	}
	if field == "" || field == "body" {
		return detail.Message
	}
	return field + ": " + detail.Message
}

// submitError maps pipeline rejections onto HTTP statuses.
func submitError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInvalidParams):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, pipeline.ErrShuttingDown):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		log.Error().Err(err).Msg("submit failed")
		return huma.Error500InternalServerError("failed to submit job")
	}
}

type EmptyInput struct{}
