package galaxy

import (
	"fmt"
	"math"
	"sort"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
)

const (
	maxMatchedClusters = 3
	maxTopCasts        = 3
)

// ErrDimensionMismatch is returned when the user and cluster embeddings come
// from different spaces. It is a validation error.
var ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", pipeline.ErrValidation)

// ScoredCluster is a topic cluster ranked against a user's interests.
type ScoredCluster struct {
	Topic    string           `json:"topic"`
	Score    float64          `json:"score"`
	TopCasts []farcaster.Cast `json:"top_casts"`
}

// MatchToUser scores every cluster by cosine similarity to userEmbedding and
// returns the best three, each with its three most engaged casts. There is no
// score floor: low or negative matches are returned if they rank.
func MatchToUser(userEmbedding []float64, clusters []TopicCluster) ([]ScoredCluster, error) {
	if len(userEmbedding) == 0 {
		return nil, pipeline.Validationf("user embedding is empty")
	}

	scored := make([]ScoredCluster, 0, len(clusters))
	for _, c := range clusters {
		if len(c.Embedding) != len(userEmbedding) {
			return nil, fmt.Errorf("%w: user %d, cluster %q %d", ErrDimensionMismatch, len(userEmbedding), c.Topic, len(c.Embedding))
		}
		scored = append(scored, ScoredCluster{
			Topic:    c.Topic,
			Score:    cosineSimilarity(userEmbedding, c.Embedding),
			TopCasts: topByEngagement(c.Posts, maxTopCasts),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	if len(scored) > maxMatchedClusters {
		scored = scored[:maxMatchedClusters]
	}
	return scored, nil
}

// topByEngagement returns up to n casts by descending engagement, ties in
// input order. posts is not modified.
func topByEngagement(posts []farcaster.Cast, n int) []farcaster.Cast {
	ranked := append([]farcaster.Cast(nil), posts...)
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Engagement > ranked[b].Engagement })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	if ranked == nil {
		ranked = []farcaster.Cast{}
	}
	return ranked
}

// cosineSimilarity calculates cosine similarity between two vectors.
// Zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
