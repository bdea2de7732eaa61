package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

// ErrNotFound is returned when a run is not in the history.
var ErrNotFound = errors.New("run not found")

// RecordRun writes a finished run and its steps. Recording the same run
// twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, run tracker.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO pipeline_runs (id, workflow, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Workflow, string(run.Status), run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for i, step := range run.Steps {
		var finished *time.Time
		if !step.FinishedAt.IsZero() {
			finished = &step.FinishedAt
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pipeline_run_steps (run_id, seq, name, status, error, started_at, finished_at, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID, i, step.Name, string(step.Status), step.Error, step.StartedAt, finished, step.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert step %s: %w", step.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GetRun loads a recorded run with its steps in execution order.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (tracker.Run, error) {
	var run tracker.Run
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow, status, error, started_at, finished_at
		FROM pipeline_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Workflow, &status, &run.Error, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Run{}, ErrNotFound
	}
	if err != nil {
		return tracker.Run{}, fmt.Errorf("query run: %w", err)
	}
	run.Status = tracker.Status(status)

	rows, err := s.pool.Query(ctx, `
		SELECT name, status, error, started_at, finished_at, duration_ms
		FROM pipeline_run_steps WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return tracker.Run{}, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step tracker.Step
		var stepStatus string
		var finished *time.Time
		var durationMS int64
		if err := rows.Scan(&step.Name, &stepStatus, &step.Error, &step.StartedAt, &finished, &durationMS); err != nil {
			return tracker.Run{}, fmt.Errorf("scan step: %w", err)
		}
		step.Status = tracker.Status(stepStatus)
		if finished != nil {
			step.FinishedAt = *finished
		}
		step.Duration = time.Duration(durationMS) * time.Millisecond
		run.Steps = append(run.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return tracker.Run{}, fmt.Errorf("iterate steps: %w", err)
	}
	return run, nil
}

// RunSummary is a row of the run history listing.
type RunSummary struct {
	ID         uuid.UUID `json:"id"`
	Workflow   string    `json:"workflow"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// RecentRuns lists the latest runs, newest first. An empty workflow matches all.
func (s *Store) RecentRuns(ctx context.Context, workflow string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow, status, started_at, finished_at, error
		FROM pipeline_runs
		WHERE ($1::text = '' OR workflow = $1)
		ORDER BY started_at DESC
		LIMIT $2`, workflow, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Workflow, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
