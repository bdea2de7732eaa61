package galaxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
)

const SchemaHook = "viral_hook"

// DefaultHookConcurrency bounds concurrent hook requests when no limit is configured.
const DefaultHookConcurrency = 5

const hookPrompt = `You are an expert Farcaster reply writer. Given a trending cast and its topic, write one short reply that adds something worth engaging with: a sharp take, a useful fact, or a question that invites the author to respond. No hashtags, no emoji spam, no generic praise.

Return a JSON object with a single field, suggested_reply.`

var hookSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"suggested_reply": {Type: jsonschema.String},
	},
	Required: []string{"suggested_reply"},
}

// ViralSuggestion is a reply idea for one trending cast, for a human to review.
type ViralSuggestion struct {
	Topic          string         `json:"topic"`
	Cast           farcaster.Cast `json:"cast"`
	SuggestedReply string         `json:"suggested_reply"`
}

type hookInput struct {
	Topic         string `json:"topic"`
	CastText      string `json:"cast_text"`
	Channel       string `json:"channel,omitempty"`
	ReaderSummary string `json:"reader_interests,omitempty"`
}

// SuggestHooks asks for one reply idea per top cast of every matched cluster,
// with at most concurrency requests in flight. Suggestions come back in
// cluster rank then cast rank order. The first failure cancels the rest and
// is returned.
func SuggestHooks(ctx context.Context, gw llm.Gateway, matched []ScoredCluster, userSummary string, concurrency int) ([]ViralSuggestion, error) {
	var jobs []ViralSuggestion
	for _, cluster := range matched {
		for _, c := range cluster.TopCasts {
			jobs = append(jobs, ViralSuggestion{Topic: cluster.Topic, Cast: c})
		}
	}
	if len(jobs) == 0 {
		return []ViralSuggestion{}, nil
	}

	if concurrency <= 0 {
		concurrency = DefaultHookConcurrency
	}

	results := make([]ViralSuggestion, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			reply, err := suggestHook(gctx, gw, job, userSummary)
			if err != nil {
				return fmt.Errorf("hook for %q cast %s: %w", job.Topic, job.Cast.PostID, err)
			}
			job.SuggestedReply = reply
			results[i] = job
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func suggestHook(ctx context.Context, gw llm.Gateway, job ViralSuggestion, userSummary string) (string, error) {
	input, err := json.MarshalIndent(hookInput{
		Topic:         job.Topic,
		CastText:      job.Cast.Text,
		Channel:       job.Cast.Channel,
		ReaderSummary: userSummary,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal hook input: %w", err)
	}

	var resp struct {
		SuggestedReply string `json:"suggested_reply"`
	}
	err = gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleReasoning,
		Name:  SchemaHook,
		Messages: []llm.Message{
			llm.SystemMessage(hookPrompt),
			llm.UserMessage(string(input)),
		},
		Schema: hookSchema,
		Strict: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SuggestedReply, nil
}
