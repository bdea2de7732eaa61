package reply

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

const Workflow = "reply_generation"

const (
	StageCheckIntent     = "check_intent"
	StageDiscoverContent = "discover_content"
	StageDraftReply      = "draft_reply"
)

// State accumulates the outputs of one reply run. Fields are set once by
// their stage and never cleared.
type State struct {
	CastText string
	Feeds    []farcaster.FeedItem

	Intent     *IntentAnalysis
	Discovered *DiscoveredContent
	Reply      *Reply
}

// Result is the outcome of a successful run.
type Result struct {
	RunID             uuid.UUID          `json:"run_id"`
	IntentAnalysis    IntentAnalysis     `json:"intent_analysis"`
	DiscoveredContent *DiscoveredContent `json:"discovered_content"`
	Reply             Reply              `json:"reply"`
}

type Options struct {
	Host         string
	StageTimeout time.Duration
	Logger       *slog.Logger
}

// Pipeline runs check_intent, then discover_content and draft_reply only when
// the intent gate opens.
type Pipeline struct {
	gw     llm.Gateway
	host   string
	graph  *pipeline.Graph[State]
	logger *slog.Logger
}

func NewPipeline(gw llm.Gateway, tr *tracker.Tracker, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := opts.Host
	if host == "" {
		host = farcaster.DefaultHost
	}

	p := &Pipeline{gw: gw, host: host, logger: logger}
	p.graph = pipeline.NewGraph[State](Workflow, tr).
		AddStage(StageCheckIntent, p.checkIntent).
		AddStage(StageDiscoverContent, p.discoverContent).
		AddStage(StageDraftReply, p.draftReply).
		SetEntry(StageCheckIntent).
		AddConditionalEdge(StageCheckIntent, routeOnIntent).
		AddEdge(StageDiscoverContent, StageDraftReply).
		AddEdge(StageDraftReply, pipeline.End).
		SetStageTimeout(opts.StageTimeout)
	return p
}

func routeOnIntent(s *State) string {
	if s.Intent == nil || !s.Intent.ShouldReply {
		return pipeline.End
	}
	return StageDiscoverContent
}

// Run executes the pipeline for one cast. On failure no partial result is
// returned; the run id is still reported for tracker lookups.
func (p *Pipeline) Run(ctx context.Context, castText string, feeds []farcaster.FeedItem) (*Result, uuid.UUID, error) {
	state := &State{CastText: castText, Feeds: feeds}

	runID, err := p.graph.Run(ctx, state)
	if err != nil {
		return nil, runID, err
	}

	res := &Result{RunID: runID, IntentAnalysis: *state.Intent, DiscoveredContent: state.Discovered}
	if state.Reply != nil {
		res.Reply = *state.Reply
	} else {
		res.Reply = NoReply()
	}
	return res, runID, nil
}

func (p *Pipeline) checkIntent(ctx context.Context, s *State) error {
	intent, err := CheckIntent(ctx, p.gw, s.CastText)
	if err != nil {
		return err
	}
	s.Intent = &intent
	return nil
}

func (p *Pipeline) discoverContent(ctx context.Context, s *State) error {
	found, err := DiscoverContent(ctx, p.gw, s.CastText, *s.Intent, s.Feeds)
	if err != nil {
		return err
	}
	if found == nil {
		p.logger.Info("no feed content selected", "feeds", len(s.Feeds))
	}
	s.Discovered = found
	return nil
}

func (p *Pipeline) draftReply(ctx context.Context, s *State) error {
	r, err := DraftReply(ctx, p.gw, s.CastText, s.Discovered, p.host)
	if err != nil {
		return err
	}
	if r.ReplyText == FallbackText {
		p.logger.Warn("drafted reply failed grounding checks",
			"author", s.Discovered.SelectedContent.AuthorUsername,
			"cast_hash", s.Discovered.SelectedContent.CastHash,
		)
	}
	s.Reply = &r
	return nil
}
