package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/galaxy"
	"github.com/MikeSquared-Agency/galaxy/internal/hermes"
	"github.com/MikeSquared-Agency/galaxy/internal/llm/llmtest"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/profile"
	"github.com/MikeSquared-Agency/galaxy/internal/reply"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePoster struct {
	mu    sync.Mutex
	calls int
	last  []galaxy.ViralSuggestion
	err   error
}

func (f *fakePoster) PostViralSuggestions(_ context.Context, _ uuid.UUID, _ []galaxy.ScoredCluster, suggestions []galaxy.ViralSuggestion) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = suggestions
	return "1.0", f.err
}

type fakeRouter struct {
	subjects []string
}

func (r *fakeRouter) Handle(subject string, _ hermes.RequestHandler) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func newProcessor(gw *llmtest.Gateway, sl SuggestionPoster) *Processor {
	return New(gw, tracker.New(discardLogger()), sl, Options{HookConcurrency: 2}, discardLogger())
}

var trendingCasts = []farcaster.Cast{
	{Text: "agents are the new apps", AuthorID: "1", PostID: "0x1", Engagement: 10},
	{Text: "open models keep closing the gap", AuthorID: "2", PostID: "0x2", Engagement: 30},
}

func trendingGateway() *llmtest.Gateway {
	return llmtest.New().
		On(galaxy.SchemaTopics, map[string]any{"topics": [][]string{{"AI"}, {"ai"}}}).
		On(galaxy.SchemaHook, map[string]string{"suggested_reply": "Which eval convinced you?"})
}

func TestReplyRequest_FeedsSimilarFirst(t *testing.T) {
	var req ReplyRequest
	req.SimilarUserFeeds = []farcaster.FeedItem{{Text: "similar", CastHash: "0xs"}}
	req.TrendingFeeds = []farcaster.FeedItem{{Text: "trending", CastHash: "0xt"}}

	feeds := req.Feeds()

	require.Len(t, feeds, 2)
	assert.Equal(t, "0xs", feeds[0].CastHash)
	assert.Equal(t, "0xt", feeds[1].CastHash)
}

func TestReplyRequest_SimilarFeedsWinsOverAlias(t *testing.T) {
	var req ReplyRequest
	req.SimilarFeeds = []farcaster.FeedItem{{CastHash: "0xa"}}
	req.SimilarUserFeeds = []farcaster.FeedItem{{CastHash: "0xb"}}

	feeds := req.Feeds()

	require.Len(t, feeds, 1)
	assert.Equal(t, "0xa", feeds[0].CastHash)
}

func TestGenerateReply_GateClosed(t *testing.T) {
	gw := llmtest.New().
		On(reply.SchemaIntent, reply.IntentAnalysis{ShouldReply: false, IdentifiedNeeds: []string{}, Confidence: 0.9})

	res, err := newProcessor(gw, nil).GenerateReply(context.Background(), ReplyRequest{Cast: CastInput{Text: "gm"}})

	require.NoError(t, err)
	assert.Equal(t, reply.NoReply(), res.Reply)
	assert.Equal(t, 1, gw.TotalCalls())
}

func TestSummarizeUser_Success(t *testing.T) {
	gw := llmtest.New().
		On(profile.SchemaSummary, map[string]string{"summary": "base-builder, nft-collector, zk-researcher"})

	prof, err := newProcessor(gw, nil).SummarizeUser(context.Background(), SummaryRequest{
		UserData: &profile.Fields{Bio: "building on base", FollowerCount: 120, Channels: []string{"base"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "base-builder, nft-collector, zk-researcher", prof.Summary)
	assert.NotEmpty(t, prof.Embedding)
}

func TestSummarizeUser_MissingUserData(t *testing.T) {
	gw := llmtest.New()

	_, err := newProcessor(gw, nil).SummarizeUser(context.Background(), SummaryRequest{})

	assert.ErrorIs(t, err, pipeline.ErrValidation)
	assert.Equal(t, 0, gw.TotalCalls())
}

func TestGenerateEmbedding(t *testing.T) {
	gw := llmtest.New()
	p := newProcessor(gw, nil)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{InputData: "hello"})
	require.NoError(t, err)
	assert.Equal(t, len(emb.Vector), emb.Dimensions)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{InputData: "  "})
	assert.ErrorIs(t, err, pipeline.ErrEmptyInput)
}

func TestAnalyzeTrending_PostsSuggestions(t *testing.T) {
	poster := &fakePoster{}

	res, err := newProcessor(trendingGateway(), poster).AnalyzeTrending(context.Background(), TrendingRequest{
		Casts:         trendingCasts,
		UserEmbedding: []float64{1, 1, 0},
		UserSummary:   "ai-researcher, agent-builder, open-source",
	})

	require.NoError(t, err)
	require.Len(t, res.MatchedClusters, 1)
	assert.Equal(t, "ai", res.MatchedClusters[0].Topic)
	require.Len(t, res.ViralSuggestions, 2)
	assert.Equal(t, "0x2", res.ViralSuggestions[0].Cast.PostID, "highest engagement first")
	assert.Equal(t, 1, poster.calls)
	assert.Len(t, poster.last, 2)
}

func TestAnalyzeTrending_SlackFailureDoesNotFailRun(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel_not_found")}

	res, err := newProcessor(trendingGateway(), poster).AnalyzeTrending(context.Background(), TrendingRequest{
		Casts:         trendingCasts,
		UserEmbedding: []float64{1, 1, 0},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, res.ViralSuggestions)
}

func TestAnalyzeTrending_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  TrendingRequest
	}{
		{"missing embedding", TrendingRequest{Casts: trendingCasts}},
		{"missing post id", TrendingRequest{Casts: []farcaster.Cast{{Text: "x"}}, UserEmbedding: []float64{1}}},
		{"negative engagement", TrendingRequest{Casts: []farcaster.Cast{{Text: "x", PostID: "0x1", Engagement: -1}}, UserEmbedding: []float64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := trendingGateway()
			poster := &fakePoster{}

			_, err := newProcessor(gw, poster).AnalyzeTrending(context.Background(), tt.req)

			assert.ErrorIs(t, err, pipeline.ErrValidation)
			assert.Equal(t, 0, gw.TotalCalls())
			assert.Equal(t, 0, poster.calls)
		})
	}
}

func TestTopicMap(t *testing.T) {
	res, err := newProcessor(trendingGateway(), nil).TopicMap(context.Background(), TopicMapRequest{Casts: trendingCasts})

	require.NoError(t, err)
	require.Len(t, res.TopicMap, 1)
	assert.Equal(t, "ai", res.TopicMap[0].Topic)
	assert.Len(t, res.TopicMap[0].Embeddings, 2)
}

func TestRegisterHandlers(t *testing.T) {
	r := &fakeRouter{}

	require.NoError(t, newProcessor(llmtest.New(), nil).RegisterHandlers(r))

	sort.Strings(r.subjects)
	assert.Equal(t, []string{
		hermes.SubjectProfileSummarize,
		hermes.SubjectReplyGenerate,
		hermes.SubjectTrendingAnalyze,
	}, r.subjects)
}

func TestHandleReplyGenerate(t *testing.T) {
	gw := llmtest.New().
		On(reply.SchemaIntent, reply.IntentAnalysis{ShouldReply: false, IdentifiedNeeds: []string{}, Confidence: 0.9})
	p := newProcessor(gw, nil)

	out, err := p.HandleReplyGenerate(context.Background(), []byte(`{"cast":{"text":"gm"},"similarUserFeeds":[]}`))
	require.NoError(t, err)
	res, ok := out.(*reply.Result)
	require.True(t, ok)
	assert.Equal(t, reply.NoReplyText, res.Reply.ReplyText)

	_, err = p.HandleReplyGenerate(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, pipeline.ErrValidation)
}

func TestHandleTrendingAnalyze_MissingEmbedding(t *testing.T) {
	_, err := newProcessor(trendingGateway(), nil).HandleTrendingAnalyze(context.Background(), []byte(`{"casts":[]}`))

	assert.ErrorIs(t, err, pipeline.ErrValidation)
}
