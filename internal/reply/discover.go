package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/metrics"
)

type discoveryInput struct {
	CastText        string               `json:"cast_text"`
	IdentifiedNeeds []string             `json:"identified_needs"`
	Feeds           []farcaster.FeedItem `json:"feeds"`
}

// DiscoverContent selects the feed item that best answers the cast. It returns
// nil without calling the gateway when no reply is warranted or the feed is
// empty, and nil when the model's selection cannot be matched to a feed item.
//
// Excluding airdrop and giveaway content is an instruction to the model only;
// nothing here filters for it.
func DiscoverContent(ctx context.Context, gw llm.Gateway, castText string, intent IntentAnalysis, feeds []farcaster.FeedItem) (*DiscoveredContent, error) {
	if !intent.ShouldReply || len(feeds) == 0 {
		return nil, nil
	}

	input, err := json.MarshalIndent(discoveryInput{
		CastText:        castText,
		IdentifiedNeeds: intent.IdentifiedNeeds,
		Feeds:           feeds,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal discovery input: %w", err)
	}

	var found DiscoveredContent
	err = gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleReasoning,
		Name:  SchemaDiscovery,
		Messages: []llm.Message{
			llm.SystemMessage(discoveryPrompt),
			llm.UserMessage(string(input)),
		},
		Schema: discoverySchema,
	}, &found)
	if err != nil {
		return nil, err
	}

	if !inUnitRange(found.RelevanceScore) || !inUnitRange(found.SelectedContent.RelevanceScore) {
		return nil, llm.SchemaViolation(llm.RoleReasoning, "relevance_score outside [0,1]")
	}

	if isEmptySelection(found) {
		return nil, nil
	}

	item, ok := resolveSelection(found.SelectedContent, feeds)
	if !ok {
		metrics.DiscoveryRejections.Inc()
		return nil, nil
	}

	sel := &found.SelectedContent
	sel.AuthorUsername = item.AuthorUsername
	sel.CastHash = item.CastHash
	sel.ChannelName = item.ChannelName
	sel.URL = item.URL
	sel.Title = item.Title
	if sel.Title == "" {
		sel.Title = item.Text
	}
	sel.KeyPoints = nonEmpty(sel.KeyPoints)
	found.KeyPoints = nonEmpty(found.KeyPoints)
	found.Source = item

	return &found, nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}

// isEmptySelection reports the model's "nothing relevant" answer.
func isEmptySelection(d DiscoveredContent) bool {
	s := d.SelectedContent
	if s.CastHash != "" || s.AuthorUsername != "" {
		return false
	}
	return s.Title == "" || (d.RelevanceScore == 0 && s.RelevanceScore == 0)
}

// resolveSelection finds the feed item the model selected: by cast hash when
// one was given, otherwise by author and content.
func resolveSelection(sel SelectedContent, feeds []farcaster.FeedItem) (farcaster.FeedItem, bool) {
	if hash := strings.TrimSpace(sel.CastHash); hash != "" {
		for _, item := range feeds {
			if item.CastHash != "" && strings.EqualFold(item.CastHash, hash) {
				return item, true
			}
		}
		return farcaster.FeedItem{}, false
	}

	author := normalizeUsername(sel.AuthorUsername)
	for _, item := range feeds {
		if author != "" && normalizeUsername(item.AuthorUsername) != author {
			continue
		}
		if matchesContent(sel, item) {
			return item, true
		}
	}
	return farcaster.FeedItem{}, false
}

func matchesContent(sel SelectedContent, item farcaster.FeedItem) bool {
	title := strings.TrimSpace(sel.Title)
	if title != "" && (title == strings.TrimSpace(item.Text) || title == strings.TrimSpace(item.Title)) {
		return true
	}
	if title != "" && strings.Contains(item.Text, title) {
		return true
	}
	for _, kp := range sel.KeyPoints {
		if kp = strings.TrimSpace(kp); kp != "" && strings.Contains(item.Text, kp) {
			return true
		}
	}
	return false
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
