package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
	"github.com/jackc/pgx/v5"
)

// AccountRepository handles vendor account mirror persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	account_id, external_id, account_number, vendor_code, credential_id,
	period_type, cycle_length_days, last_processed_start, last_processed_end,
	next_run_at, next_run_status, is_deleted, last_synced_at, created_at, updated_at
`

// Create inserts a new account row, stamping CreatedAt/UpdatedAt on the
// struct so the caller sees the persisted values.
func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.Pool().Exec(ctx, query,
		a.AccountID,
		a.ExternalID,
		a.AccountNumber,
		a.VendorCode,
		a.CredentialID,
		a.PeriodType,
		a.CycleLengthDays,
		a.LastProcessedStart,
		a.LastProcessedEnd,
		a.NextRunAt,
		a.NextRunStatus,
		a.IsDeleted,
		a.LastSyncedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// Update updates the mutable fields of an existing account
func (r *AccountRepository) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET account_number = $2, vendor_code = $3, credential_id = $4,
			period_type = $5, cycle_length_days = $6,
			last_processed_start = $7, last_processed_end = $8,
			next_run_at = $9, next_run_status = $10, is_deleted = $11,
			last_synced_at = $12, updated_at = $13
		WHERE account_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		a.AccountID,
		a.AccountNumber,
		a.VendorCode,
		a.CredentialID,
		a.PeriodType,
		a.CycleLengthDays,
		a.LastProcessedStart,
		a.LastProcessedEnd,
		a.NextRunAt,
		a.NextRunStatus,
		a.IsDeleted,
		a.LastSyncedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", a.AccountID)
	}

	return nil
}

// GetByExternalID retrieves an account by its external directory id. Returns
// (nil, nil) when no row exists so the sync step can decide insert vs update.
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`

	a, err := scanAccount(r.db.Pool().QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by external id: %w", err)
	}

	return a, nil
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1`

	a, err := scanAccount(r.db.Pool().QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %s", accountID)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return a, nil
}

// ListActive retrieves all accounts that are not soft-deleted
func (r *AccountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_deleted = FALSE
		ORDER BY vendor_code, account_number
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ListByNextRunStatus retrieves active accounts carrying one of the given
// next-run labels
func (r *AccountRepository) ListByNextRunStatus(ctx context.Context, statuses ...types.NextRunStatus) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_deleted = FALSE AND next_run_status = ANY($1)
		ORDER BY next_run_at
	`

	labels := make([]string, len(statuses))
	for i, s := range statuses {
		labels[i] = string(s)
	}

	rows, err := r.db.Pool().Query(ctx, query, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by next-run status: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// scanAccount scans one account row
func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.AccountID,
		&a.ExternalID,
		&a.AccountNumber,
		&a.VendorCode,
		&a.CredentialID,
		&a.PeriodType,
		&a.CycleLengthDays,
		&a.LastProcessedStart,
		&a.LastProcessedEnd,
		&a.NextRunAt,
		&a.NextRunStatus,
		&a.IsDeleted,
		&a.LastSyncedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
