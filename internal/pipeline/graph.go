package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

// End is the terminal node name.
const End = "__end__"

// Stage reads from and writes to the run's state.
type Stage[S any] func(ctx context.Context, state *S) error

// Router picks the next stage after a conditional node.
type Router[S any] func(state *S) string

// Graph is a small directed state machine over a typed state S. It is
// immutable once built and safe to Run concurrently.
type Graph[S any] struct {
	workflow string
	tracker  *tracker.Tracker
	stages   map[string]Stage[S]
	edges    map[string]string
	routers  map[string]Router[S]
	entry    string
	timeout  time.Duration
}

func NewGraph[S any](workflow string, tr *tracker.Tracker) *Graph[S] {
	if tr == nil {
		tr = tracker.New(nil)
	}
	return &Graph[S]{
		workflow: workflow,
		tracker:  tr,
		stages:   make(map[string]Stage[S]),
		edges:    make(map[string]string),
		routers:  make(map[string]Router[S]),
	}
}

func (g *Graph[S]) AddStage(name string, fn Stage[S]) *Graph[S] {
	g.stages[name] = fn
	return g
}

func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddConditionalEdge routes from a stage using fn instead of a fixed edge.
func (g *Graph[S]) AddConditionalEdge(from string, fn Router[S]) *Graph[S] {
	g.routers[from] = fn
	return g
}

func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// SetStageTimeout bounds each stage. Zero disables the limit.
func (g *Graph[S]) SetStageTimeout(d time.Duration) *Graph[S] {
	g.timeout = d
	return g
}

func (g *Graph[S]) Workflow() string { return g.workflow }

// Validate checks that every stage is reachable through declared edges.
func (g *Graph[S]) Validate() error {
	if g.entry == "" {
		return errors.New("graph has no entry stage")
	}
	if _, ok := g.stages[g.entry]; !ok {
		return fmt.Errorf("entry stage %q not defined", g.entry)
	}
	for name := range g.stages {
		_, fixed := g.edges[name]
		_, routed := g.routers[name]
		if !fixed && !routed {
			return fmt.Errorf("stage %q has no outgoing edge", name)
		}
		if fixed && routed {
			return fmt.Errorf("stage %q has both a fixed and a conditional edge", name)
		}
	}
	for from, to := range g.edges {
		if _, ok := g.stages[from]; !ok {
			return fmt.Errorf("edge from undefined stage %q", from)
		}
		if _, ok := g.stages[to]; !ok && to != End {
			return fmt.Errorf("edge to undefined stage %q", to)
		}
	}
	return nil
}

// Run executes the graph from the entry stage until End. The run id is
// returned even on failure so callers can look the run up in the tracker.
func (g *Graph[S]) Run(ctx context.Context, state *S) (uuid.UUID, error) {
	if err := g.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%s graph: %w", g.workflow, err)
	}

	id := g.tracker.Start(g.workflow)
	current := g.entry

	// Every stage runs at most once per pass; anything longer is a cycle.
	for hops := 0; current != End; hops++ {
		if hops > len(g.stages) {
			err := fmt.Errorf("%s graph: cycle detected at %q", g.workflow, current)
			g.tracker.Fail(ctx, id, err)
			return id, err
		}

		g.tracker.StartStep(id, current)
		if err := g.runStage(ctx, current, state); err != nil {
			g.tracker.FailStep(id, current, err)
			g.tracker.Fail(ctx, id, err)
			return id, fmt.Errorf("%s: %w", current, err)
		}
		g.tracker.CompleteStep(id, current)

		next, err := g.next(current, state)
		if err != nil {
			g.tracker.Fail(ctx, id, err)
			return id, err
		}
		current = next
	}

	g.tracker.Complete(ctx, id)
	return id, nil
}

func (g *Graph[S]) runStage(ctx context.Context, name string, state *S) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.timeout <= 0 {
		return g.stages[name](ctx, state)
	}

	stageCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.stages[name](stageCtx, state)
	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &StageTimeoutError{Stage: name, Timeout: g.timeout, Err: err}
	}
	return err
}

func (g *Graph[S]) next(current string, state *S) (string, error) {
	if route, ok := g.routers[current]; ok {
		next := route(state)
		if _, ok := g.stages[next]; !ok && next != End {
			return "", fmt.Errorf("%s graph: router at %q chose undefined stage %q", g.workflow, current, next)
		}
		return next, nil
	}
	return g.edges[current], nil
}
