package galaxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
)

const SchemaTopics = "cast_topics"

const maxTopicsPerCast = 3

const topicsPrompt = `Extract 1-3 short, high-level topics for each Farcaster post.

The user message is a JSON array of post texts. Return a JSON object whose "topics" field is an array with exactly one entry per post, in the same order as the input. Each entry is an array of 1-3 topic labels such as "AI", "Gaming" or "Base".`

var topicsSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"topics": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type:  jsonschema.Array,
				Items: &jsonschema.Definition{Type: jsonschema.String},
			},
		},
	},
	Required: []string{"topics"},
}

// CastTopics pairs a cast with the topic labels extracted for it.
type CastTopics struct {
	Cast   farcaster.Cast `json:"cast"`
	Topics []string       `json:"topics"`
}

// TopicCluster is every cast sharing one normalized topic.
type TopicCluster struct {
	Topic     string           `json:"topic"`
	Posts     []farcaster.Cast `json:"posts"`
	Embedding []float64        `json:"embedding"`
}

// ExtractTopics labels every cast with 1-3 topics in a single batched call.
// The model answers positionally; the answer is paired back to casts here and
// a length mismatch is treated as a malformed response.
func ExtractTopics(ctx context.Context, gw llm.Gateway, casts []farcaster.Cast) ([]CastTopics, error) {
	if len(casts) == 0 {
		return []CastTopics{}, nil
	}

	texts := make([]string, len(casts))
	for i, c := range casts {
		texts[i] = c.Text
	}
	input, err := json.MarshalIndent(texts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cast texts: %w", err)
	}

	var resp struct {
		Topics [][]string `json:"topics"`
	}
	err = gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleGeneration,
		Name:  SchemaTopics,
		Messages: []llm.Message{
			llm.SystemMessage(topicsPrompt),
			llm.UserMessage(string(input)),
		},
		Schema: topicsSchema,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Topics) != len(casts) {
		return nil, llm.SchemaViolation(llm.RoleGeneration, "got topics for %d casts, sent %d", len(resp.Topics), len(casts))
	}

	records := make([]CastTopics, len(casts))
	for i, c := range casts {
		records[i] = CastTopics{Cast: c, Topics: cleanTopics(resp.Topics[i])}
	}
	return records, nil
}

func cleanTopics(labels []string) []string {
	out := make([]string, 0, maxTopicsPerCast)
	for _, l := range labels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(l))
		if len(out) == maxTopicsPerCast {
			break
		}
	}
	return out
}

// NormalizeTopic is the cluster key for a label: lower-cased, trimmed, with
// inner whitespace collapsed to single spaces.
func NormalizeTopic(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// GroupByTopic builds one cluster per normalized topic. A cast with several
// topics lands in each of their clusters. Posts keep input order; clusters
// are sorted by topic so the result does not depend on cast order.
func GroupByTopic(records []CastTopics) []TopicCluster {
	index := make(map[string]int)
	var clusters []TopicCluster

	for _, rec := range records {
		seen := make(map[string]bool, len(rec.Topics))
		for _, label := range rec.Topics {
			key := NormalizeTopic(label)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			i, ok := index[key]
			if !ok {
				i = len(clusters)
				index[key] = i
				clusters = append(clusters, TopicCluster{Topic: key})
			}
			clusters[i].Posts = append(clusters[i].Posts, rec.Cast)
		}
	}

	sort.Slice(clusters, func(a, b int) bool { return clusters[a].Topic < clusters[b].Topic })
	if clusters == nil {
		clusters = []TopicCluster{}
	}
	return clusters
}

// ClusterByTopic extracts topics, groups casts by them, and embeds each
// cluster once from the newline-joined texts of its posts.
func ClusterByTopic(ctx context.Context, gw llm.Gateway, casts []farcaster.Cast) ([]TopicCluster, error) {
	records, err := ExtractTopics(ctx, gw, casts)
	if err != nil {
		return nil, fmt.Errorf("extract topics: %w", err)
	}

	clusters := GroupByTopic(records)
	for i := range clusters {
		vec, err := gw.Embed(ctx, clusterText(clusters[i].Posts))
		if err != nil {
			return nil, fmt.Errorf("embed cluster %q: %w", clusters[i].Topic, err)
		}
		clusters[i].Embedding = vec
	}
	return clusters, nil
}

func clusterText(posts []farcaster.Cast) string {
	texts := make([]string, len(posts))
	for i, p := range posts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}
