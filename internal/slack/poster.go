package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/galaxy"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostViralSuggestions posts the matched clusters of a trending run for
// human review, then threads one reply per suggestion under it.
// Returns the parent message timestamp.
func (p *Poster) PostViralSuggestions(ctx context.Context, runID uuid.UUID, matched []galaxy.ScoredCluster, suggestions []galaxy.ViralSuggestion) (string, error) {
	text := formatSuggestionsMessage(runID, matched, suggestions)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Suggested replies are in the thread. Nothing is posted to Farcaster automatically.",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	for _, s := range suggestions {
		if err := p.PostThread(ctx, ts, formatSuggestion(s)); err != nil {
			p.logger.Warn("failed to thread suggestion", "ts", ts, "post_id", s.Cast.PostID, "error", err)
		}
	}

	p.logger.Info("posted viral suggestions to slack", "ts", ts, "run_id", runID, "suggestions", len(suggestions))
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatSuggestionsMessage(runID uuid.UUID, matched []galaxy.ScoredCluster, suggestions []galaxy.ViralSuggestion) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Trending run:* %s\n\n", runID.String())

	if len(matched) == 0 {
		sb.WriteString("_No trending clusters matched this user._")
		return sb.String()
	}

	fmt.Fprintf(&sb, "*Matched clusters: %d*\n", len(matched))
	for i, c := range matched {
		fmt.Fprintf(&sb, "%d. %s\n   Score: %.2f | Casts: %d\n", i+1, c.Topic, c.Score, len(c.TopCasts))
	}
	fmt.Fprintf(&sb, "\n*Suggestions: %d*", len(suggestions))
	return sb.String()
}

func formatSuggestion(s galaxy.ViralSuggestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*", s.Topic)
	if s.Cast.Channel != "" {
		fmt.Fprintf(&sb, " in /%s", s.Cast.Channel)
	}
	fmt.Fprintf(&sb, " (%d engagement)\n", s.Cast.Engagement)
	fmt.Fprintf(&sb, "> %s\n", strings.ReplaceAll(s.Cast.Text, "\n", "\n> "))
	fmt.Fprintf(&sb, "Suggested reply: %s", s.SuggestedReply)
	return sb.String()
}
