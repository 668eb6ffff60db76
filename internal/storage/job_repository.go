package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/models"
	"github.com/jackc/pgx/v5"
)

// JobRepository handles billing-cycle job persistence. Finished jobs are moved
// to the jobs_history table, so every row in the live table is by construction
// still in flight.
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// JobWithAccount pairs a job with its owning account for step selection
// queries that need the credential tuple.
type JobWithAccount struct {
	Job     models.Job
	Account models.Account
}

const jobColumns = `
	job_id, account_id, window_start, window_end, status,
	vendor_status_id, vendor_status_desc, request_tracking_id, retry_count,
	manual_request, manual_request_note, last_checked_at, last_status_response,
	error_message, created_at, updated_at
`

// Create inserts a new job row, stamping CreatedAt/UpdatedAt on the struct so
// the caller sees the persisted values.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err := r.db.Pool().Exec(ctx, query,
		j.JobID,
		j.AccountID,
		j.WindowStart,
		j.WindowEnd,
		j.Status,
		j.VendorStatusID,
		j.VendorStatusDesc,
		j.RequestTrackingID,
		j.RetryCount,
		j.ManualRequest,
		j.ManualRequestNote,
		j.LastCheckedAt,
		j.LastStatusResponse,
		j.ErrorMessage,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Update updates an existing job
func (r *JobRepository) Update(ctx context.Context, j *models.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, vendor_status_id = $3, vendor_status_desc = $4,
			request_tracking_id = $5, retry_count = $6,
			last_checked_at = $7, last_status_response = $8,
			error_message = $9, updated_at = $10
		WHERE job_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		j.JobID,
		j.Status,
		j.VendorStatusID,
		j.VendorStatusDesc,
		j.RequestTrackingID,
		j.RetryCount,
		j.LastCheckedAt,
		j.LastStatusResponse,
		j.ErrorMessage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", j.JobID)
	}

	return nil
}

// GetByID retrieves a job by id
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	j, err := scanJob(r.db.Pool().QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return j, nil
}

// ExistsActiveForWindow reports whether a non-archived job already covers the
// given account and billing window. Job creation uses this as its idempotency
// check.
func (r *JobRepository) ExistsActiveForWindow(ctx context.Context, accountID string, windowStart time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM jobs WHERE account_id = $1 AND window_start = $2)`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, accountID, windowStart).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}

	return exists, nil
}

// ListForCredentialCheck retrieves jobs awaiting credential verification whose
// account comes due before the given cutoff, joined with their accounts.
func (r *JobRepository) ListForCredentialCheck(ctx context.Context, dueBefore time.Time) ([]*JobWithAccount, error) {
	query := `
		SELECT ` + prefixedJobColumns("j") + `, ` + prefixedAccountColumns("a") + `
		FROM jobs j
		JOIN accounts a ON a.account_id = j.account_id
		WHERE j.status = 'Inserted'
		  AND a.next_run_at IS NOT NULL AND a.next_run_at <= $1
		ORDER BY a.next_run_at
	`

	return r.queryJobsWithAccounts(ctx, query, dueBefore)
}

// ListForScraping retrieves credential-verified jobs ready for a download
// request, joined with their accounts.
func (r *JobRepository) ListForScraping(ctx context.Context) ([]*JobWithAccount, error) {
	query := `
		SELECT ` + prefixedJobColumns("j") + `, ` + prefixedAccountColumns("a") + `
		FROM jobs j
		JOIN accounts a ON a.account_id = j.account_id
		WHERE j.status = 'CredentialVerified'
		ORDER BY j.created_at
	`

	return r.queryJobsWithAccounts(ctx, query)
}

// ListForStatusCheck retrieves jobs with an outstanding download request whose
// last status check is older than the cutoff (or that were never checked).
func (r *JobRepository) ListForStatusCheck(ctx context.Context, checkedBefore time.Time) ([]*JobWithAccount, error) {
	query := `
		SELECT ` + prefixedJobColumns("j") + `, ` + prefixedAccountColumns("a") + `
		FROM jobs j
		JOIN accounts a ON a.account_id = j.account_id
		WHERE j.request_tracking_id IS NOT NULL
		  AND (j.last_checked_at IS NULL OR j.last_checked_at <= $1)
		ORDER BY j.last_checked_at NULLS FIRST
	`

	return r.queryJobsWithAccounts(ctx, query, checkedBefore)
}

// MoveToHistory archives a finished job: the job row and its execution rows
// are copied to the history tables and removed from the live tables in one
// transaction, freeing the billing window for future job creation.
func (r *JobRepository) MoveToHistory(ctx context.Context, jobID string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	archivedAt := time.Now().UTC()

	result, err := tx.Exec(ctx, `
		INSERT INTO jobs_history
		SELECT `+jobColumns+`, $2 AS archived_at FROM jobs WHERE job_id = $1
	`, jobID, archivedAt)
	if err != nil {
		return fmt.Errorf("failed to copy job to history: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO executions_history
		SELECT `+executionColumns+`, $2 AS archived_at FROM executions WHERE job_id = $1
	`, jobID, archivedAt); err != nil {
		return fmt.Errorf("failed to copy executions to history: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM executions WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete live executions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete live job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	return nil
}

// queryJobsWithAccounts runs a joined selection query
func (r *JobRepository) queryJobsWithAccounts(ctx context.Context, query string, args ...interface{}) ([]*JobWithAccount, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var items []*JobWithAccount
	for rows.Next() {
		var item JobWithAccount
		err := rows.Scan(
			&item.Job.JobID,
			&item.Job.AccountID,
			&item.Job.WindowStart,
			&item.Job.WindowEnd,
			&item.Job.Status,
			&item.Job.VendorStatusID,
			&item.Job.VendorStatusDesc,
			&item.Job.RequestTrackingID,
			&item.Job.RetryCount,
			&item.Job.ManualRequest,
			&item.Job.ManualRequestNote,
			&item.Job.LastCheckedAt,
			&item.Job.LastStatusResponse,
			&item.Job.ErrorMessage,
			&item.Job.CreatedAt,
			&item.Job.UpdatedAt,
			&item.Account.AccountID,
			&item.Account.ExternalID,
			&item.Account.AccountNumber,
			&item.Account.VendorCode,
			&item.Account.CredentialID,
			&item.Account.PeriodType,
			&item.Account.CycleLengthDays,
			&item.Account.LastProcessedStart,
			&item.Account.LastProcessedEnd,
			&item.Account.NextRunAt,
			&item.Account.NextRunStatus,
			&item.Account.IsDeleted,
			&item.Account.LastSyncedAt,
			&item.Account.CreatedAt,
			&item.Account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job with account: %w", err)
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return items, nil
}

// scanJob scans one job row
func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.JobID,
		&j.AccountID,
		&j.WindowStart,
		&j.WindowEnd,
		&j.Status,
		&j.VendorStatusID,
		&j.VendorStatusDesc,
		&j.RequestTrackingID,
		&j.RetryCount,
		&j.ManualRequest,
		&j.ManualRequestNote,
		&j.LastCheckedAt,
		&j.LastStatusResponse,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// prefixedJobColumns qualifies the job column list with a table alias
func prefixedJobColumns(alias string) string {
	return alias + `.job_id, ` + alias + `.account_id, ` + alias + `.window_start, ` +
		alias + `.window_end, ` + alias + `.status, ` + alias + `.vendor_status_id, ` +
		alias + `.vendor_status_desc, ` + alias + `.request_tracking_id, ` + alias + `.retry_count, ` +
		alias + `.manual_request, ` + alias + `.manual_request_note, ` + alias + `.last_checked_at, ` +
		alias + `.last_status_response, ` + alias + `.error_message, ` + alias + `.created_at, ` +
		alias + `.updated_at`
}

// prefixedAccountColumns qualifies the account column list with a table alias
func prefixedAccountColumns(alias string) string {
	return alias + `.account_id, ` + alias + `.external_id, ` + alias + `.account_number, ` +
		alias + `.vendor_code, ` + alias + `.credential_id, ` + alias + `.period_type, ` +
		alias + `.cycle_length_days, ` + alias + `.last_processed_start, ` + alias + `.last_processed_end, ` +
		alias + `.next_run_at, ` + alias + `.next_run_status, ` + alias + `.is_deleted, ` +
		alias + `.last_synced_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}
