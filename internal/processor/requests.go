package processor

import (
	"strings"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/profile"
)

// Request bodies shared by the HTTP and NATS surfaces.

// CastInput is the cast being replied to.
type CastInput struct {
	Text string `json:"text"`
}

type ReplyRequest struct {
	Cast             CastInput            `json:"cast"`
	SimilarFeeds     []farcaster.FeedItem `json:"similarFeeds,omitempty"`
	SimilarUserFeeds []farcaster.FeedItem `json:"similarUserFeeds,omitempty"`
	TrendingFeeds    []farcaster.FeedItem `json:"trendingFeeds,omitempty"`
}

// Feeds returns similar-user feeds first, then trending.
func (r ReplyRequest) Feeds() []farcaster.FeedItem {
	similar := r.SimilarFeeds
	if len(similar) == 0 {
		similar = r.SimilarUserFeeds
	}
	return farcaster.MergeFeeds(similar, r.TrendingFeeds)
}

type SummaryRequest struct {
	UserData *profile.Fields `json:"user_data"`
}

func (r SummaryRequest) Validate() error {
	if r.UserData == nil {
		return pipeline.Validationf("user_data is required")
	}
	return nil
}

type EmbeddingRequest struct {
	InputData string `json:"input_data"`
}

type TrendingRequest struct {
	Casts         []farcaster.Cast `json:"casts"`
	UserEmbedding []float64        `json:"user_embedding"`
	UserSummary   string           `json:"user_summary"`
}

func (r TrendingRequest) Validate() error {
	if len(r.UserEmbedding) == 0 {
		return pipeline.Validationf("user_embedding is required")
	}
	for i, c := range r.Casts {
		if strings.TrimSpace(c.PostID) == "" {
			return pipeline.Validationf("casts[%d].post_id is required", i)
		}
		if c.Engagement < 0 {
			return pipeline.Validationf("casts[%d].engagement must not be negative", i)
		}
	}
	return nil
}

type TopicMapRequest struct {
	Casts []farcaster.Cast `json:"casts"`
}
