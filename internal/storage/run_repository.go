package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
	"github.com/jackc/pgx/v5"
)

// RunRepository handles orchestration run persistence. The run coordinator is
// the only writer; everything else reads.
type RunRepository struct {
	db *PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	run_id, requested_by, status, current_step, progress,
	requested_at, started_at, completed_at, error_message
`

// Create inserts a new run row
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		run.RunID,
		run.RequestedBy,
		run.Status,
		run.CurrentStep,
		run.Progress,
		run.RequestedAt,
		run.StartedAt,
		run.CompletedAt,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Update writes back the mutable fields of a run
func (r *RunRepository) Update(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE runs
		SET status = $2, current_step = $3, progress = $4,
			started_at = $5, completed_at = $6, error_message = $7
		WHERE run_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		run.RunID,
		run.Status,
		run.CurrentStep,
		run.Progress,
		run.StartedAt,
		run.CompletedAt,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", run.RunID)
	}

	return nil
}

// GetByID retrieves a run by correlation id. Returns (nil, nil) when no row
// exists so the coordinator can map a missing run to its own not-found error.
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`

	run, err := scanRun(r.db.Pool().QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ActiveRunID returns the correlation id of the current non-terminal run, or
// "" when no run is active. Start uses this to enforce the
// single-concurrent-run invariant.
func (r *RunRepository) ActiveRunID(ctx context.Context) (string, error) {
	query := `
		SELECT run_id FROM runs
		WHERE status IN ($1, $2)
		ORDER BY requested_at DESC
		LIMIT 1
	`

	var runID string
	err := r.db.Pool().QueryRow(ctx, query, types.RunStatusRequested, types.RunStatusRunning).Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up active run: %w", err)
	}

	return runID, nil
}

// ListNonTerminal retrieves runs stuck in a non-terminal state. Used by the
// startup recovery routine after an unclean shutdown.
func (r *RunRepository) ListNonTerminal(ctx context.Context) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE status IN ($1, $2) ORDER BY requested_at`

	rows, err := r.db.Pool().Query(ctx, query, types.RunStatusRequested, types.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListHistory retrieves the most recent runs, newest first
func (r *RunRepository) ListHistory(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY requested_at DESC LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveStepResult records the outcome of one pipeline step. Re-running a step
// within the same run overwrites its previous record.
func (r *RunRepository) SaveStepResult(ctx context.Context, s *models.StepResult) error {
	query := `
		INSERT INTO run_steps (
			run_id, step, started_at, duration_ms,
			inserted, updated, created, skipped, verified, requested,
			checked, completed, still_processing, failed, total
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id, step) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			duration_ms = EXCLUDED.duration_ms,
			inserted = EXCLUDED.inserted,
			updated = EXCLUDED.updated,
			created = EXCLUDED.created,
			skipped = EXCLUDED.skipped,
			verified = EXCLUDED.verified,
			requested = EXCLUDED.requested,
			checked = EXCLUDED.checked,
			completed = EXCLUDED.completed,
			still_processing = EXCLUDED.still_processing,
			failed = EXCLUDED.failed,
			total = EXCLUDED.total
	`

	_, err := r.db.Pool().Exec(ctx, query,
		s.RunID,
		s.Step,
		s.StartedAt,
		s.DurationMS,
		s.Counters.Inserted,
		s.Counters.Updated,
		s.Counters.Created,
		s.Counters.Skipped,
		s.Counters.Verified,
		s.Counters.Requested,
		s.Counters.Checked,
		s.Counters.Completed,
		s.Counters.StillProcessing,
		s.Counters.Failed,
		s.Counters.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to save step result: %w", err)
	}

	return nil
}

// ListStepResults retrieves the recorded step results of a run in pipeline order
func (r *RunRepository) ListStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	query := `
		SELECT run_id, step, started_at, duration_ms,
			   inserted, updated, created, skipped, verified, requested,
			   checked, completed, still_processing, failed, total
		FROM run_steps
		WHERE run_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.Pool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	var steps []models.StepResult
	for rows.Next() {
		var s models.StepResult
		err := rows.Scan(
			&s.RunID,
			&s.Step,
			&s.StartedAt,
			&s.DurationMS,
			&s.Counters.Inserted,
			&s.Counters.Updated,
			&s.Counters.Created,
			&s.Counters.Skipped,
			&s.Counters.Verified,
			&s.Counters.Requested,
			&s.Counters.Checked,
			&s.Counters.Completed,
			&s.Counters.StillProcessing,
			&s.Counters.Failed,
			&s.Counters.Total,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		steps = append(steps, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step results: %w", err)
	}

	return steps, nil
}

// scanRun scans one run row
func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	err := row.Scan(
		&run.RunID,
		&run.RequestedBy,
		&run.Status,
		&run.CurrentStep,
		&run.Progress,
		&run.RequestedAt,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
