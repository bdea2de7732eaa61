package reply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/metrics"
)

// ErrGroundingViolation means a drafted reply did not quote the selected
// content in the required form.
var ErrGroundingViolation = errors.New("reply is not grounded in selected content")

var replyPattern = regexp.MustCompile(`(?s)^You should connect with @?(\S+?), who said: '(.*)'(?:\s*Join the conversation in the /\S+ channel\.)?$`)

type draftInput struct {
	CastText        string         `json:"cast_text"`
	SelectedContent draftSelection `json:"selected_content"`
}

type draftSelection struct {
	SelectedContent
	Text string `json:"text,omitempty"`
}

// DraftReply writes the reply for content. nil content yields NoReply without
// a gateway call. A draft that fails ValidateGrounding is replaced with
// Fallback rather than returned.
func DraftReply(ctx context.Context, gw llm.Gateway, castText string, content *DiscoveredContent, host string) (Reply, error) {
	if content == nil {
		return NoReply(), nil
	}

	input, err := json.MarshalIndent(draftInput{
		CastText:        castText,
		SelectedContent: draftSelection{SelectedContent: content.SelectedContent, Text: content.Source.Text},
	}, "", "  ")
	if err != nil {
		return Reply{}, fmt.Errorf("marshal draft input: %w", err)
	}

	var draft struct {
		ReplyText string `json:"reply_text"`
	}
	err = gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleGeneration,
		Name:  SchemaDraft,
		Messages: []llm.Message{
			llm.SystemMessage(draftPrompt),
			llm.UserMessage(string(input)),
		},
		Schema: draftSchema,
	}, &draft)
	if err != nil {
		return Reply{}, err
	}

	quote, err := ValidateGrounding(draft.ReplyText, content)
	if err != nil {
		metrics.GroundingFallbacks.Inc()
		return Fallback(), nil
	}

	sel := content.SelectedContent
	return Reply{
		ReplyText: FormatReply(sel.AuthorUsername, quote, sel.ChannelName),
		Link:      farcaster.CastLink(host, sel.AuthorUsername, sel.CastHash),
	}, nil
}

// FormatReply renders the reply template, with the channel invitation when
// channel is set.
func FormatReply(author, quote, channel string) string {
	text := fmt.Sprintf("You should connect with %s, who said: '%s'", author, quote)
	if channel != "" {
		text += fmt.Sprintf(" Join the conversation in the /%s channel.", channel)
	}
	return text
}

// ValidateGrounding checks that text follows the reply template, names the
// selected author, and quotes a non-empty exact substring of the selected
// feed item's text or title. It returns the quote on success.
func ValidateGrounding(text string, content *DiscoveredContent) (string, error) {
	if content == nil {
		return "", fmt.Errorf("%w: no selected content", ErrGroundingViolation)
	}

	m := replyPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", fmt.Errorf("%w: reply does not match template", ErrGroundingViolation)
	}
	author, quote := m[1], m[2]

	if normalizeUsername(author) != normalizeUsername(content.SelectedContent.AuthorUsername) {
		return "", fmt.Errorf("%w: author %q is not %q", ErrGroundingViolation, author, content.SelectedContent.AuthorUsername)
	}
	if strings.TrimSpace(quote) == "" {
		return "", fmt.Errorf("%w: empty quote", ErrGroundingViolation)
	}

	for _, src := range groundingSources(content) {
		if strings.Contains(src, quote) {
			return quote, nil
		}
	}
	return "", fmt.Errorf("%w: quote not found in selected content", ErrGroundingViolation)
}

// groundingSources is the feed text a quote may come from. Key points are
// written by the model and never count.
func groundingSources(content *DiscoveredContent) []string {
	sources := []string{content.Source.Text, content.Source.Title}
	out := sources[:0]
	for _, s := range sources {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
