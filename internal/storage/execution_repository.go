package storage

import (
	"context"
	"fmt"

	"github.com/adr-pipeline/internal/models"
)

// ExecutionRepository handles the append-only execution audit trail. Rows are
// inserted complete and never updated.
type ExecutionRepository struct {
	db *PostgresDB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *PostgresDB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	execution_id, job_id, request_type, started_at, ended_at, success,
	vendor_status_id, http_status, error_message, request_payload, response_payload
`

// Create appends an execution record
func (r *ExecutionRepository) Create(ctx context.Context, e *models.Execution) error {
	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		e.ExecutionID,
		e.JobID,
		e.RequestType,
		e.StartedAt,
		e.EndedAt,
		e.Success,
		e.VendorStatusID,
		e.HTTPStatus,
		e.ErrorMessage,
		e.RequestPayload,
		e.ResponsePayload,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// ListByJob retrieves all execution records for a job, oldest first
func (r *ExecutionRepository) ListByJob(ctx context.Context, jobID string) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE job_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.Pool().Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*models.Execution
	for rows.Next() {
		var e models.Execution
		err := rows.Scan(
			&e.ExecutionID,
			&e.JobID,
			&e.RequestType,
			&e.StartedAt,
			&e.EndedAt,
			&e.Success,
			&e.VendorStatusID,
			&e.HTTPStatus,
			&e.ErrorMessage,
			&e.RequestPayload,
			&e.ResponsePayload,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}
