package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/galaxy/internal/metrics"
)

// ModelRole selects a model by what the call needs rather than by id.
type ModelRole string

const (
	// RoleReasoning is used for judgement-heavy stages: intent, discovery, profile summary, trending hooks.
	RoleReasoning ModelRole = "reasoning"
	// RoleGeneration is used for drafting and extraction: replies and per-cast topics.
	RoleGeneration ModelRole = "generation"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }
func UserMessage(content string) Message   { return Message{Role: "user", Content: content} }

// StructuredRequest asks a model for a JSON object conforming to Schema.
type StructuredRequest struct {
	Model    ModelRole
	Name     string // schema name sent to providers that support named schemas
	Messages []Message
	Schema   jsonschema.Definition
	Strict   bool // reject top-level keys not declared in Schema
}

// Gateway is the language-model capability consumed by pipeline stages.
type Gateway interface {
	CompleteStructured(ctx context.Context, req StructuredRequest, out any) error
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ResponseSchema is passed to completers that can constrain their output.
type ResponseSchema struct {
	Name       string
	Definition jsonschema.Definition
}

// Completer returns the raw text of a chat completion.
type Completer interface {
	Complete(ctx context.Context, model string, messages []Message, schema *ResponseSchema) (string, error)
}

// Embedder returns the embedding vector for a single text.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float64, error)
}

type Models struct {
	Reasoning  string
	Generation string
	Embedding  string
}

type Options struct {
	Models Models
	// RPS bounds gateway calls per second across all runs; <= 0 disables limiting.
	RPS    float64
	Logger *slog.Logger
}

// Client is the production Gateway: provider backends behind a shared rate
// limiter and per-operation circuit breakers, with schema validation of every
// structured response.
type Client struct {
	completer  Completer
	embedder   Embedder
	models     Models
	limiter    *rate.Limiter
	completeCB *gobreaker.CircuitBreaker[string]
	embedCB    *gobreaker.CircuitBreaker[[]float64]
	logger     *slog.Logger
}

func NewClient(completer Completer, embedder Embedder, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		if b := int(opts.RPS); b > burst {
			burst = b
		}
	}

	return &Client{
		completer:  completer,
		embedder:   embedder,
		models:     opts.Models,
		limiter:    rate.NewLimiter(limit, burst),
		completeCB: gobreaker.NewCircuitBreaker[string](breakerSettings("llm-complete", logger)),
		embedCB:    gobreaker.NewCircuitBreaker[[]float64](breakerSettings("llm-embed", logger)),
		logger:     logger,
	}
}

func breakerSettings(name string, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

// ModelFor resolves a role to the configured model id.
func (c *Client) ModelFor(role ModelRole) string {
	if role == RoleReasoning {
		return c.models.Reasoning
	}
	return c.models.Generation
}

// CompleteStructured runs a chat completion and decodes the validated JSON
// object into out. Any transport or validation failure is a *GatewayError.
func (c *Client) CompleteStructured(ctx context.Context, req StructuredRequest, out any) error {
	model := c.ModelFor(req.Model)

	if err := c.limiter.Wait(ctx); err != nil {
		return newGatewayError("complete", model, err)
	}

	start := time.Now()
	raw, err := c.completeCB.Execute(func() (string, error) {
		return c.completer.Complete(ctx, model, req.Messages, &ResponseSchema{Name: req.Name, Definition: req.Schema})
	})
	metrics.RecordGateway("complete", model, err, time.Since(start))
	if err != nil {
		c.logger.Error("gateway completion failed", "schema", req.Name, "model", model, "error", err)
		return newGatewayError("complete", model, err)
	}

	if err := decodeStructured(raw, req.Schema, req.Strict, out); err != nil {
		c.logger.Error("failed to parse structured response",
			"schema", req.Name,
			"model", model,
			"error", err,
			"raw", raw,
		)
		return newGatewayError("complete", model, err)
	}
	return nil
}

// Embed returns the embedding of text using the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	model := c.models.Embedding
	if c.embedder == nil {
		return nil, newGatewayError("embed", model, errors.New("no embedding backend configured"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newGatewayError("embed", model, err)
	}

	start := time.Now()
	vec, err := c.embedCB.Execute(func() ([]float64, error) {
		return c.embedder.Embed(ctx, model, text)
	})
	metrics.RecordGateway("embed", model, err, time.Since(start))
	if err != nil {
		c.logger.Error("gateway embedding failed", "model", model, "error", err)
		return nil, newGatewayError("embed", model, err)
	}
	if len(vec) == 0 {
		return nil, newGatewayError("embed", model, errors.New("empty embedding"))
	}
	return vec, nil
}
