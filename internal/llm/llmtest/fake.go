// Package llmtest provides a scripted llm.Gateway for stage and pipeline tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
)

// Responder computes a response for a single structured request. The
// returned value is marshalled to JSON unless it is a string, which is used
// as the raw model output.
type Responder func(req llm.StructuredRequest) (any, error)

// Gateway answers structured requests by schema name. Responses pass through
// the same schema validation as the production client, so a scripted reply
// that violates the schema fails the way a real one would.
type Gateway struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      map[string]int
	requests   map[string][]llm.StructuredRequest
	embedCalls int
	embedTexts []string

	// EmbedFunc answers Embed. Defaults to a deterministic 3-dimensional vector.
	EmbedFunc func(text string) ([]float64, error)
}

func New() *Gateway {
	return &Gateway{
		responders: make(map[string]Responder),
		calls:      make(map[string]int),
		requests:   make(map[string][]llm.StructuredRequest),
	}
}

// On scripts a fixed response for schema name.
func (g *Gateway) On(name string, resp any) *Gateway {
	return g.OnFunc(name, func(llm.StructuredRequest) (any, error) { return resp, nil })
}

// OnFunc scripts a computed response for schema name.
func (g *Gateway) OnFunc(name string, fn Responder) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responders[name] = fn
	return g
}

// Fail makes every request for schema name return a gateway error wrapping err.
func (g *Gateway) Fail(name string, err error) *Gateway {
	return g.OnFunc(name, func(llm.StructuredRequest) (any, error) { return nil, err })
}

func (g *Gateway) CompleteStructured(ctx context.Context, req llm.StructuredRequest, out any) error {
	g.mu.Lock()
	g.calls[req.Name]++
	g.requests[req.Name] = append(g.requests[req.Name], req)
	fn, ok := g.responders[req.Name]
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &llm.GatewayError{Op: "complete", Model: string(req.Model), Retryable: errors.Is(err, context.DeadlineExceeded), Err: err}
	}
	if !ok {
		return &llm.GatewayError{Op: "complete", Model: string(req.Model), Err: fmt.Errorf("no scripted response for %q", req.Name)}
	}

	resp, err := fn(req)
	if err != nil {
		return &llm.GatewayError{Op: "complete", Model: string(req.Model), Retryable: llm.IsRetryable(err), Err: err}
	}

	raw, ok := resp.(string)
	if !ok {
		b, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("marshal scripted response: %w", err)
		}
		raw = string(b)
	}
	if err := llm.DecodeStructured(raw, req, out); err != nil {
		return &llm.GatewayError{Op: "complete", Model: string(req.Model), Err: err}
	}
	return nil
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	g.mu.Lock()
	g.embedCalls++
	g.embedTexts = append(g.embedTexts, text)
	fn := g.EmbedFunc
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &llm.GatewayError{Op: "embed", Retryable: true, Err: err}
	}
	if fn == nil {
		return []float64{float64(len(text)), 1, 0}, nil
	}
	vec, err := fn(text)
	if err != nil {
		return nil, &llm.GatewayError{Op: "embed", Err: err}
	}
	return vec, nil
}

// Calls returns how many structured requests were made for schema name.
func (g *Gateway) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

// TotalCalls counts every structured and embedding request.
func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.embedCalls
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *Gateway) EmbedCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.embedCalls
}

// EmbedTexts returns the inputs passed to Embed, in call order.
func (g *Gateway) EmbedTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.embedTexts...)
}

// Requests returns the requests made for schema name, in call order.
func (g *Gateway) Requests(name string) []llm.StructuredRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.StructuredRequest(nil), g.requests[name]...)
}
