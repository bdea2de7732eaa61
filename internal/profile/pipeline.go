package profile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

const (
	WorkflowSummary    = "user_summary"
	WorkflowEmbeddings = "embeddings"
)

const (
	StageSummarize         = "summarize_profile"
	StageEmbedSummary      = "embed_summary"
	StageGenerateEmbedding = "generate_embedding"
)

type State struct {
	Fields    Fields
	Summary   string
	Embedding []float64
}

type embedState struct {
	Text      string
	Embedding Embedding
}

// Pipeline runs summarize_profile then embed_summary, and the single-stage
// embeddings workflow.
type Pipeline struct {
	summary *pipeline.Graph[State]
	embed   *pipeline.Graph[embedState]
}

func NewPipeline(gw llm.Gateway, tr *tracker.Tracker, stageTimeout time.Duration) *Pipeline {
	p := &Pipeline{}

	p.summary = pipeline.NewGraph[State](WorkflowSummary, tr).
		AddStage(StageSummarize, func(ctx context.Context, s *State) error {
			summary, err := Summarize(ctx, gw, s.Fields)
			if err != nil {
				return err
			}
			s.Summary = summary
			return nil
		}).
		AddStage(StageEmbedSummary, func(ctx context.Context, s *State) error {
			vec, err := Embed(ctx, gw, s.Summary)
			if err != nil {
				return err
			}
			s.Embedding = vec
			return nil
		}).
		SetEntry(StageSummarize).
		AddEdge(StageSummarize, StageEmbedSummary).
		AddEdge(StageEmbedSummary, pipeline.End).
		SetStageTimeout(stageTimeout)

	p.embed = pipeline.NewGraph[embedState](WorkflowEmbeddings, tr).
		AddStage(StageGenerateEmbedding, func(ctx context.Context, s *embedState) error {
			emb, err := EmbedText(ctx, gw, s.Text)
			if err != nil {
				return err
			}
			s.Embedding = emb
			return nil
		}).
		SetEntry(StageGenerateEmbedding).
		AddEdge(StageGenerateEmbedding, pipeline.End).
		SetStageTimeout(stageTimeout)

	return p
}

// Run summarizes and embeds one profile.
func (p *Pipeline) Run(ctx context.Context, f Fields) (Profile, uuid.UUID, error) {
	state := &State{Fields: f}
	runID, err := p.summary.Run(ctx, state)
	if err != nil {
		return Profile{}, runID, err
	}
	return Profile{Summary: state.Summary, Embedding: state.Embedding}, runID, nil
}

// EmbedText embeds free text through the tracked embeddings workflow.
func (p *Pipeline) EmbedText(ctx context.Context, text string) (Embedding, uuid.UUID, error) {
	state := &embedState{Text: text}
	runID, err := p.embed.Run(ctx, state)
	if err != nil {
		return Embedding{}, runID, err
	}
	return state.Embedding, runID, nil
}
