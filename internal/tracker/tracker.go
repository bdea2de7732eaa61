package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/metrics"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is one stage execution within a run.
type Step struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Run is a snapshot of one pipeline execution.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Workflow   string    `json:"workflow"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Steps      []Step    `json:"steps"`
	Error      string    `json:"error,omitempty"`
}

// Publisher announces finished runs, e.g. over NATS.
type Publisher interface {
	PublishRun(ctx context.Context, run Run) error
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

type Option func(*Tracker)

// WithRetention bounds how many runs are kept in memory. Oldest runs are
// evicted first. n <= 0 keeps every run.
func WithRetention(n int) Option {
	return func(t *Tracker) { t.retention = n }
}

func WithPublisher(p Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.recorder = r }
}

type entry struct {
	mu  sync.Mutex
	run Run
}

// Tracker records step transitions for concurrent pipeline runs. Each run has
// its own lock, so runs never contend with each other beyond the index map.
type Tracker struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*entry
	order     []uuid.UUID
	retention int
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func New(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		runs:   make(map[uuid.UUID]*entry),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers a new run of workflow and returns its id.
func (t *Tracker) Start(workflow string) uuid.UUID {
	id := uuid.New()
	e := &entry{run: Run{
		ID:        id,
		Workflow:  workflow,
		Status:    StatusRunning,
		StartedAt: t.now(),
	}}

	t.mu.Lock()
	t.runs[id] = e
	t.order = append(t.order, id)
	t.evictLocked()
	t.mu.Unlock()

	metrics.RunsInFlight.WithLabelValues(workflow).Inc()
	t.logger.Info("workflow started", "run_id", id, "workflow", workflow)
	return id
}

// evictLocked drops the oldest finished runs beyond the retention limit.
// Running runs are never evicted so they can still be finished and reported.
// t.mu must be held.
func (t *Tracker) evictLocked() {
	excess := len(t.order) - t.retention
	if t.retention <= 0 || excess <= 0 {
		return
	}
	kept := t.order[:0]
	for _, id := range t.order {
		if excess > 0 && !t.runs[id].running() {
			delete(t.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

func (e *entry) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.Status == StatusRunning
}

func (t *Tracker) lookup(id uuid.UUID) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runs[id]
}

// StartStep appends a running step to the run.
func (t *Tracker) StartStep(id uuid.UUID, name string) {
	e := t.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.run.Steps = append(e.run.Steps, Step{Name: name, Status: StatusRunning, StartedAt: t.now()})
	workflow := e.run.Workflow
	e.mu.Unlock()

	t.logger.Info("step started", "run_id", id, "workflow", workflow, "stage", name)
}

// CompleteStep marks the latest running step called name as completed.
func (t *Tracker) CompleteStep(id uuid.UUID, name string) {
	t.finishStep(id, name, nil)
}

// FailStep marks the latest running step called name as failed.
func (t *Tracker) FailStep(id uuid.UUID, name string, err error) {
	t.finishStep(id, name, err)
}

func (t *Tracker) finishStep(id uuid.UUID, name string, err error) {
	e := t.lookup(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	var step Step
	for i := len(e.run.Steps) - 1; i >= 0; i-- {
		s := &e.run.Steps[i]
		if s.Name != name || s.Status != StatusRunning {
			continue
		}
		s.FinishedAt = t.now()
		s.Duration = s.FinishedAt.Sub(s.StartedAt)
		s.Status = StatusCompleted
		if err != nil {
			s.Status = StatusFailed
			s.Error = err.Error()
		}
		step = *s
		break
	}
	workflow := e.run.Workflow
	e.mu.Unlock()

	if step.Name == "" {
		t.logger.Warn("finish for unknown step", "run_id", id, "stage", name)
		return
	}

	metrics.RecordStage(workflow, name, string(step.Status), step.Duration)
	if err != nil {
		t.logger.Error("step failed", "run_id", id, "workflow", workflow, "stage", name, "duration", step.Duration, "error", err)
		return
	}
	t.logger.Info("step completed", "run_id", id, "workflow", workflow, "stage", name, "duration", step.Duration)
}

// Complete marks the run as completed and notifies the sinks.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID) {
	t.finish(ctx, id, nil)
}

// Fail marks the run as failed and notifies the sinks.
func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, err error) {
	t.finish(ctx, id, err)
}

func (t *Tracker) finish(ctx context.Context, id uuid.UUID, err error) {
	e := t.lookup(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.run.Status != StatusRunning {
		e.mu.Unlock()
		return
	}
	e.run.FinishedAt = t.now()
	e.run.Status = StatusCompleted
	if err != nil {
		e.run.Status = StatusFailed
		e.run.Error = err.Error()
	}
	snapshot := copyRun(e.run)
	e.mu.Unlock()

	t.mu.Lock()
	t.evictLocked()
	t.mu.Unlock()

	metrics.RunsInFlight.WithLabelValues(snapshot.Workflow).Dec()
	metrics.RunsTotal.WithLabelValues(snapshot.Workflow, string(snapshot.Status)).Inc()

	elapsed := snapshot.FinishedAt.Sub(snapshot.StartedAt)
	if err != nil {
		t.logger.Error("workflow failed", "run_id", id, "workflow", snapshot.Workflow, "duration", elapsed, "error", err)
	} else {
		t.logger.Info("workflow completed", "run_id", id, "workflow", snapshot.Workflow, "duration", elapsed, "steps", len(snapshot.Steps))
	}

	t.notify(ctx, snapshot)
}

// notify delivers a finished run to the sinks. A cancelled request still
// gets its run recorded.
func (t *Tracker) notify(ctx context.Context, run Run) {
	if t.publisher == nil && t.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if t.recorder != nil {
		if err := t.recorder.RecordRun(ctx, run); err != nil {
			t.logger.Error("failed to record run", "run_id", run.ID, "error", err)
		}
	}
	if t.publisher != nil {
		if err := t.publisher.PublishRun(ctx, run); err != nil {
			t.logger.Error("failed to publish run event", "run_id", run.ID, "error", err)
		}
	}
}

// Get returns a snapshot of the run, or false if it is unknown or evicted.
func (t *Tracker) Get(id uuid.UUID) (Run, bool) {
	e := t.lookup(id)
	if e == nil {
		return Run{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRun(e.run), true
}

// Len returns the number of runs held in memory.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}

func copyRun(r Run) Run {
	r.Steps = append([]Step(nil), r.Steps...)
	return r
}
