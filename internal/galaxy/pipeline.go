package galaxy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

const (
	WorkflowTrending = "galaxy_trending"
	WorkflowTopicMap = "galaxy_topics"
)

const (
	StageGenerateClusters = "generate_trending_clusters"
	StageMatchToUser      = "match_to_user"
	StageSuggestHooks     = "suggest_viral_hooks"

	StageEmbedCasts    = "embed_casts"
	StageExtractTopics = "extract_topics"
	StageBuildTopicMap = "build_topic_map"
)

// State is the trending pipeline's accumulated output.
type State struct {
	Casts         []farcaster.Cast
	UserEmbedding []float64
	UserSummary   string

	Clusters    []TopicCluster
	Matched     []ScoredCluster
	Suggestions []ViralSuggestion
}

type Result struct {
	RunID            uuid.UUID         `json:"run_id"`
	TrendingClusters []TopicCluster    `json:"trending_clusters"`
	MatchedClusters  []ScoredCluster   `json:"matched_clusters"`
	ViralSuggestions []ViralSuggestion `json:"viral_suggestions"`
}

// CastEmbedding is the embedding of a single cast.
type CastEmbedding struct {
	Cast      farcaster.Cast `json:"cast"`
	Embedding []float64      `json:"embedding"`
}

// TopicGroup is one entry of a topic map: the casts on a topic and their
// individual embeddings, index-aligned.
type TopicGroup struct {
	Topic      string           `json:"topic"`
	Posts      []farcaster.Cast `json:"posts"`
	Embeddings [][]float64      `json:"embeddings"`
}

type TopicMapState struct {
	Casts      []farcaster.Cast
	Embeddings []CastEmbedding
	Topics     []CastTopics
	TopicMap   []TopicGroup
}

type TopicMapResult struct {
	RunID    uuid.UUID    `json:"run_id"`
	TopicMap []TopicGroup `json:"topic_map"`
}

type Options struct {
	HookConcurrency int
	StageTimeout    time.Duration
}

// Pipeline runs both trending workflows: clusters matched to a user with
// reply hooks, and the per-cast topic map.
type Pipeline struct {
	trending *pipeline.Graph[State]
	topicMap *pipeline.Graph[TopicMapState]
}

func NewPipeline(gw llm.Gateway, tr *tracker.Tracker, opts Options) *Pipeline {
	p := &Pipeline{}

	p.trending = pipeline.NewGraph[State](WorkflowTrending, tr).
		AddStage(StageGenerateClusters, func(ctx context.Context, s *State) error {
			clusters, err := ClusterByTopic(ctx, gw, s.Casts)
			if err != nil {
				return err
			}
			s.Clusters = clusters
			return nil
		}).
		AddStage(StageMatchToUser, func(_ context.Context, s *State) error {
			matched, err := MatchToUser(s.UserEmbedding, s.Clusters)
			if err != nil {
				return err
			}
			s.Matched = matched
			return nil
		}).
		AddStage(StageSuggestHooks, func(ctx context.Context, s *State) error {
			suggestions, err := SuggestHooks(ctx, gw, s.Matched, s.UserSummary, opts.HookConcurrency)
			if err != nil {
				return err
			}
			s.Suggestions = suggestions
			return nil
		}).
		SetEntry(StageGenerateClusters).
		AddEdge(StageGenerateClusters, StageMatchToUser).
		AddEdge(StageMatchToUser, StageSuggestHooks).
		AddEdge(StageSuggestHooks, pipeline.End).
		SetStageTimeout(opts.StageTimeout)

	p.topicMap = pipeline.NewGraph[TopicMapState](WorkflowTopicMap, tr).
		AddStage(StageEmbedCasts, func(ctx context.Context, s *TopicMapState) error {
			embeddings, err := EmbedCasts(ctx, gw, s.Casts)
			if err != nil {
				return err
			}
			s.Embeddings = embeddings
			return nil
		}).
		AddStage(StageExtractTopics, func(ctx context.Context, s *TopicMapState) error {
			topics, err := ExtractTopics(ctx, gw, s.Casts)
			if err != nil {
				return err
			}
			s.Topics = topics
			return nil
		}).
		AddStage(StageBuildTopicMap, func(_ context.Context, s *TopicMapState) error {
			groups, err := BuildTopicMap(s.Topics, s.Embeddings)
			if err != nil {
				return err
			}
			s.TopicMap = groups
			return nil
		}).
		SetEntry(StageEmbedCasts).
		AddEdge(StageEmbedCasts, StageExtractTopics).
		AddEdge(StageExtractTopics, StageBuildTopicMap).
		AddEdge(StageBuildTopicMap, pipeline.End).
		SetStageTimeout(opts.StageTimeout)

	return p
}

// Run clusters casts, matches the clusters to the user and suggests hooks.
// A missing user embedding is rejected before the run starts.
func (p *Pipeline) Run(ctx context.Context, casts []farcaster.Cast, userEmbedding []float64, userSummary string) (*Result, uuid.UUID, error) {
	if len(userEmbedding) == 0 {
		return nil, uuid.Nil, pipeline.Validationf("user_embedding is required")
	}

	state := &State{Casts: casts, UserEmbedding: userEmbedding, UserSummary: userSummary}
	runID, err := p.trending.Run(ctx, state)
	if err != nil {
		return nil, runID, err
	}
	return &Result{
		RunID:            runID,
		TrendingClusters: state.Clusters,
		MatchedClusters:  state.Matched,
		ViralSuggestions: state.Suggestions,
	}, runID, nil
}

// TopicMap embeds each cast, extracts topics and groups casts by topic.
func (p *Pipeline) TopicMap(ctx context.Context, casts []farcaster.Cast) (*TopicMapResult, uuid.UUID, error) {
	state := &TopicMapState{Casts: casts}
	runID, err := p.topicMap.Run(ctx, state)
	if err != nil {
		return nil, runID, err
	}
	return &TopicMapResult{RunID: runID, TopicMap: state.TopicMap}, runID, nil
}

// EmbedCasts embeds every cast individually, in input order.
func EmbedCasts(ctx context.Context, gw llm.Gateway, casts []farcaster.Cast) ([]CastEmbedding, error) {
	out := make([]CastEmbedding, len(casts))
	for i, c := range casts {
		vec, err := gw.Embed(ctx, c.Text)
		if err != nil {
			return nil, fmt.Errorf("embed cast %s: %w", c.PostID, err)
		}
		out[i] = CastEmbedding{Cast: c, Embedding: vec}
	}
	return out, nil
}

// BuildTopicMap groups casts by normalized topic, carrying each cast's own
// embedding. topics and embeddings must describe the same casts in the same
// order.
func BuildTopicMap(topics []CastTopics, embeddings []CastEmbedding) ([]TopicGroup, error) {
	if len(topics) != len(embeddings) {
		return nil, fmt.Errorf("topic map: %d topic records for %d embeddings", len(topics), len(embeddings))
	}

	index := make(map[string]int)
	var groups []TopicGroup
	for i, rec := range topics {
		if rec.Cast != embeddings[i].Cast {
			return nil, fmt.Errorf("topic map: record %d cast %q does not match embedding cast %q", i, rec.Cast.PostID, embeddings[i].Cast.PostID)
		}
		seen := make(map[string]bool, len(rec.Topics))
		for _, label := range rec.Topics {
			key := NormalizeTopic(label)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			g, ok := index[key]
			if !ok {
				g = len(groups)
				index[key] = g
				groups = append(groups, TopicGroup{Topic: key})
			}
			groups[g].Posts = append(groups[g].Posts, rec.Cast)
			groups[g].Embeddings = append(groups[g].Embeddings, embeddings[i].Embedding)
		}
	}

	sort.Slice(groups, func(a, b int) bool { return groups[a].Topic < groups[b].Topic })
	if groups == nil {
		groups = []TopicGroup{}
	}
	return groups, nil
}
