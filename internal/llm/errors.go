package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrGateway matches every *GatewayError via errors.Is.
var ErrGateway = errors.New("language model gateway error")

// ErrSchema marks a response that did not conform to the requested shape.
var ErrSchema = errors.New("response failed schema validation")

// GatewayError is returned for any failed completion or embedding call,
// including responses that fail schema validation.
type GatewayError struct {
	Op        string // "complete" or "embed"
	Model     string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// IsRetryable reports whether err is a gateway failure worth retrying later.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

func newGatewayError(op, model string, err error) *GatewayError {
	return &GatewayError{Op: op, Model: model, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, ErrSchema) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var anthErr *AnthropicError
	if errors.As(err, &anthErr) {
		return retryableStatus(anthErr.StatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// SchemaViolation reports a structurally valid response whose values break a
// constraint the JSON schema cannot express, such as a numeric range.
func SchemaViolation(role ModelRole, format string, args ...any) error {
	return &GatewayError{
		Op:    "complete",
		Model: string(role),
		Err:   fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...)),
	}
}
