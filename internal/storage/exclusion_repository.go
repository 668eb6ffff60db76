package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/models"
)

// ExclusionRepository handles blacklist entry persistence
type ExclusionRepository struct {
	db *PostgresDB
}

// NewExclusionRepository creates a new exclusion repository
func NewExclusionRepository(db *PostgresDB) *ExclusionRepository {
	return &ExclusionRepository{db: db}
}

const exclusionColumns = `
	exclusion_id, vendor_code, external_account_id, credential_id,
	exclusion_type, effective_from, effective_to, is_active, reason, created_at
`

// Create inserts a new exclusion entry
func (r *ExclusionRepository) Create(ctx context.Context, e *models.Exclusion) error {
	query := `
		INSERT INTO exclusions (` + exclusionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool().Exec(ctx, query,
		e.ExclusionID,
		e.VendorCode,
		e.ExternalAccountID,
		e.CredentialID,
		e.ExclusionType,
		e.EffectiveFrom,
		e.EffectiveTo,
		e.IsActive,
		e.Reason,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create exclusion: %w", err)
	}

	return nil
}

// ListActive retrieves all active exclusion entries. Effective-window
// filtering happens in the checker so one load serves a whole step.
func (r *ExclusionRepository) ListActive(ctx context.Context) ([]models.Exclusion, error) {
	query := `
		SELECT ` + exclusionColumns + `
		FROM exclusions
		WHERE is_active = TRUE
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions: %w", err)
	}
	defer rows.Close()

	var exclusions []models.Exclusion
	for rows.Next() {
		var e models.Exclusion
		err := rows.Scan(
			&e.ExclusionID,
			&e.VendorCode,
			&e.ExternalAccountID,
			&e.CredentialID,
			&e.ExclusionType,
			&e.EffectiveFrom,
			&e.EffectiveTo,
			&e.IsActive,
			&e.Reason,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		exclusions = append(exclusions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exclusions: %w", err)
	}

	return exclusions, nil
}

// Deactivate flips an exclusion entry inactive
func (r *ExclusionRepository) Deactivate(ctx context.Context, exclusionID string) error {
	query := `UPDATE exclusions SET is_active = FALSE WHERE exclusion_id = $1`

	result, err := r.db.Pool().Exec(ctx, query, exclusionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate exclusion: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("exclusion not found: %s", exclusionID)
	}

	return nil
}
