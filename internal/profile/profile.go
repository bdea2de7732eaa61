package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
)

const SchemaSummary = "user_summary"

const (
	minKeywords = 3
	maxKeywords = 10
)

var keywordPattern = regexp.MustCompile(`^[\p{L}\p{N}]+(-[\p{L}\p{N}]+)+$`)

// Fields are the profile attributes the summary is derived from.
type Fields struct {
	Bio            string   `json:"bio"`
	FollowerCount  int      `json:"follower_count"`
	FollowingCount int      `json:"following_count"`
	Channels       []string `json:"channels"`
}

// Profile is a user's keyword summary and the embedding of that summary.
type Profile struct {
	Summary   string    `json:"summary"`
	Embedding []float64 `json:"embedding"`
}

// Embedding is a vector with its dimensionality, as served to callers.
type Embedding struct {
	Vector     []float64 `json:"vector"`
	Dimensions int       `json:"dimensions"`
}

// Summarize asks the reasoning model for 3-10 hyphenated keyword pairs
// describing the profile. Any field besides summary is rejected.
func Summarize(ctx context.Context, gw llm.Gateway, f Fields) (string, error) {
	if f.Channels == nil {
		f.Channels = []string{}
	}
	input, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}

	var resp struct {
		Summary string `json:"summary"`
	}
	err = gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleReasoning,
		Name:  SchemaSummary,
		Messages: []llm.Message{
			llm.SystemMessage(summaryPrompt),
			llm.UserMessage(string(input)),
		},
		Schema: summarySchema,
		Strict: true,
	}, &resp)
	if err != nil {
		return "", err
	}

	keywords, err := ParseKeywords(resp.Summary)
	if err != nil {
		return "", llm.SchemaViolation(llm.RoleReasoning, "%v", err)
	}
	return strings.Join(keywords, ", "), nil
}

// ParseKeywords splits a summary into its keyword pairs and checks their
// count and shape.
func ParseKeywords(summary string) ([]string, error) {
	var keywords []string
	for _, kw := range strings.Split(summary, ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if !keywordPattern.MatchString(kw) {
			return nil, fmt.Errorf("keyword %q is not hyphenated", kw)
		}
		keywords = append(keywords, kw)
	}
	if len(keywords) < minKeywords || len(keywords) > maxKeywords {
		return nil, fmt.Errorf("summary has %d keywords, want %d-%d", len(keywords), minKeywords, maxKeywords)
	}
	return keywords, nil
}

// Embed embeds a profile summary. Blank summaries are rejected before any
// gateway call; raw profile fields are never embedded.
func Embed(ctx context.Context, gw llm.Gateway, summary string) ([]float64, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, pipeline.EmptyInput("profile summary")
	}
	return gw.Embed(ctx, summary)
}

// EmbedText embeds arbitrary caller text.
func EmbedText(ctx context.Context, gw llm.Gateway, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, pipeline.EmptyInput("input data")
	}
	vec, err := gw.Embed(ctx, text)
	if err != nil {
		return Embedding{}, err
	}
	return Embedding{Vector: vec, Dimensions: len(vec)}, nil
}
