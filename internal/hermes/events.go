package hermes

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

// Run lifecycle subjects.
const (
	SubjectRunCompleted = "galaxy.run.completed"
	SubjectRunFailed    = "galaxy.run.failed"
)

// RunEvent announces a finished pipeline run.
type RunEvent struct {
	RunID       string `json:"run_id"`
	Workflow    string `json:"workflow"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	DurationMS  int64  `json:"duration_ms"`
	Steps       int    `json:"steps"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewRunEvent summarizes a tracker snapshot for publishing.
func NewRunEvent(run tracker.Run) RunEvent {
	evt := RunEvent{
		RunID:      run.ID.String(),
		Workflow:   run.Workflow,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339Nano),
		DurationMS: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		Steps:      len(run.Steps),
		Error:      run.Error,
	}
	for _, s := range run.Steps {
		if s.Status == tracker.StatusFailed {
			evt.FailedStage = s.Name
		}
	}
	return evt
}

// RunSubject picks the lifecycle subject for a run's final status.
func RunSubject(run tracker.Run) string {
	if run.Status == tracker.StatusFailed {
		return SubjectRunFailed
	}
	return SubjectRunCompleted
}

// PublishRun emits the run's lifecycle event.
func (c *Client) PublishRun(_ context.Context, run tracker.Run) error {
	return c.Publish(RunSubject(run), NewRunEvent(run))
}
