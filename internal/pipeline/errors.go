package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
)

// ErrEmptyInput is returned when a stage receives blank text it cannot work on.
var ErrEmptyInput = errors.New("empty input")

// ErrValidation is returned for malformed caller input.
var ErrValidation = errors.New("invalid input")

// StageTimeoutError reports a stage that exceeded its deadline.
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
	Err     error
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.Stage, e.Timeout)
}

func (e *StageTimeoutError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed run may succeed if submitted again.
func IsRetryable(err error) bool {
	var timeout *StageTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	return llm.IsRetryable(err)
}

// Validationf returns an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// EmptyInput returns an ErrEmptyInput naming the blank field.
func EmptyInput(field string) error {
	return fmt.Errorf("%w: %s is empty", ErrEmptyInput, field)
}
