package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/galaxy"
	"github.com/MikeSquared-Agency/galaxy/internal/hermes"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/profile"
	"github.com/MikeSquared-Agency/galaxy/internal/reply"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

// SuggestionPoster delivers viral hook suggestions for human review.
type SuggestionPoster interface {
	PostViralSuggestions(ctx context.Context, runID uuid.UUID, matched []galaxy.ScoredCluster, suggestions []galaxy.ViralSuggestion) (string, error)
}

// RequestRouter registers request/reply handlers on a transport.
type RequestRouter interface {
	Handle(subject string, handler hermes.RequestHandler) error
}

type Options struct {
	Host            string
	HookConcurrency int
	StageTimeout    time.Duration
}

// Processor is the single entry point to the reply, profile and trending
// pipelines, shared by the HTTP and NATS surfaces.
type Processor struct {
	reply   *reply.Pipeline
	profile *profile.Pipeline
	galaxy  *galaxy.Pipeline
	slack   SuggestionPoster
	logger  *slog.Logger
}

// New builds every pipeline on one gateway and tracker. sl may be nil.
func New(gw llm.Gateway, tr *tracker.Tracker, sl SuggestionPoster, opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		reply: reply.NewPipeline(gw, tr, reply.Options{
			Host:         opts.Host,
			StageTimeout: opts.StageTimeout,
			Logger:       logger,
		}),
		profile: profile.NewPipeline(gw, tr, opts.StageTimeout),
		galaxy: galaxy.NewPipeline(gw, tr, galaxy.Options{
			HookConcurrency: opts.HookConcurrency,
			StageTimeout:    opts.StageTimeout,
		}),
		slack:  sl,
		logger: logger,
	}
}

// GenerateReply runs the reply pipeline for one cast.
func (p *Processor) GenerateReply(ctx context.Context, req ReplyRequest) (*reply.Result, error) {
	feeds := req.Feeds()
	res, runID, err := p.reply.Run(ctx, req.Cast.Text, feeds)
	if err != nil {
		p.logger.Error("reply run failed", "run_id", runID, "error", err)
		return nil, err
	}
	p.logger.Info("reply generated",
		"run_id", runID,
		"should_reply", res.IntentAnalysis.ShouldReply,
		"feeds", len(feeds),
		"grounded", res.DiscoveredContent != nil,
	)
	return res, nil
}

// SummarizeUser derives a keyword summary for a profile and embeds it.
func (p *Processor) SummarizeUser(ctx context.Context, req SummaryRequest) (profile.Profile, error) {
	if err := req.Validate(); err != nil {
		return profile.Profile{}, err
	}
	prof, runID, err := p.profile.Run(ctx, *req.UserData)
	if err != nil {
		p.logger.Error("user summary run failed", "run_id", runID, "error", err)
		return profile.Profile{}, err
	}
	p.logger.Info("user summarized", "run_id", runID, "dimensions", len(prof.Embedding))
	return prof, nil
}

// GenerateEmbedding embeds arbitrary text.
func (p *Processor) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (profile.Embedding, error) {
	emb, runID, err := p.profile.EmbedText(ctx, req.InputData)
	if err != nil {
		p.logger.Error("embedding run failed", "run_id", runID, "error", err)
		return profile.Embedding{}, err
	}
	return emb, nil
}

// AnalyzeTrending clusters casts, matches them to the user and suggests
// hooks. Suggestions are posted to Slack when a poster is configured; a
// failed post does not fail the run.
func (p *Processor) AnalyzeTrending(ctx context.Context, req TrendingRequest) (*galaxy.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, runID, err := p.galaxy.Run(ctx, req.Casts, req.UserEmbedding, req.UserSummary)
	if err != nil {
		p.logger.Error("trending run failed", "run_id", runID, "error", err)
		return nil, err
	}
	p.logger.Info("trending analyzed",
		"run_id", runID,
		"casts", len(req.Casts),
		"clusters", len(res.TrendingClusters),
		"matched", len(res.MatchedClusters),
		"suggestions", len(res.ViralSuggestions),
	)

	if p.slack != nil && len(res.ViralSuggestions) > 0 {
		if _, err := p.slack.PostViralSuggestions(ctx, runID, res.MatchedClusters, res.ViralSuggestions); err != nil {
			p.logger.Error("slack post failed", "run_id", runID, "error", err)
		}
	}
	return res, nil
}

// TopicMap groups casts by extracted topic with per-cast embeddings.
func (p *Processor) TopicMap(ctx context.Context, req TopicMapRequest) (*galaxy.TopicMapResult, error) {
	res, runID, err := p.galaxy.TopicMap(ctx, req.Casts)
	if err != nil {
		p.logger.Error("topic map run failed", "run_id", runID, "error", err)
		return nil, err
	}
	return res, nil
}

// RegisterHandlers serves the pipelines over request/reply subjects.
func (p *Processor) RegisterHandlers(r RequestRouter) error {
	handlers := map[string]hermes.RequestHandler{
		hermes.SubjectReplyGenerate:    p.HandleReplyGenerate,
		hermes.SubjectProfileSummarize: p.HandleProfileSummarize,
		hermes.SubjectTrendingAnalyze:  p.HandleTrendingAnalyze,
	}
	for subject, h := range handlers {
		if err := r.Handle(subject, h); err != nil {
			return err
		}
	}
	return nil
}

// HandleReplyGenerate is the NATS handler for galaxy.reply.generate.
func (p *Processor) HandleReplyGenerate(ctx context.Context, data []byte) (any, error) {
	var req ReplyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return p.GenerateReply(ctx, req)
}

// HandleProfileSummarize is the NATS handler for galaxy.profile.summarize.
func (p *Processor) HandleProfileSummarize(ctx context.Context, data []byte) (any, error) {
	var req SummaryRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return p.SummarizeUser(ctx, req)
}

// HandleTrendingAnalyze is the NATS handler for galaxy.trending.analyze.
func (p *Processor) HandleTrendingAnalyze(ctx context.Context, data []byte) (any, error) {
	var req TrendingRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return p.AnalyzeTrending(ctx, req)
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrValidation, err)
	}
	return nil
}
