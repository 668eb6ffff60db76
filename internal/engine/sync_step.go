package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adr-pipeline/internal/billing"
	"github.com/adr-pipeline/internal/directory"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
)

// runAccountSync reconciles the local account mirror against the directory
// service. A directory outage is fatal to the run; a single account that fails
// to upsert is counted and skipped.
func (e *Engine) runAccountSync(ctx context.Context, run *models.Run) (models.StepCounters, error) {
	var counters models.StepCounters
	logger := e.logger.WithField("runId", run.RunID)

	dirAccounts, err := e.directory.ListAccounts(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to list directory accounts: %w", err)
	}
	counters.Total = len(dirAccounts)

	now := e.nowFn()
	seen := make(map[string]bool, len(dirAccounts))

	for _, da := range dirAccounts {
		seen[da.ExternalID] = true

		if err := e.syncAccount(ctx, da, now, &counters); err != nil {
			counters.Failed++
			logger.WithError(err).WithField("externalId", da.ExternalID).Warn("Failed to sync account")
		}
	}

	// Accounts the directory no longer reports are unenrolled: soft-delete so
	// job creation stops considering them but history stays intact.
	active, err := e.accounts.ListActive(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to list active accounts: %w", err)
	}
	for _, a := range active {
		if seen[a.ExternalID] {
			continue
		}
		a.IsDeleted = true
		a.LastSyncedAt = now
		if err := e.accounts.Update(ctx, a); err != nil {
			counters.Failed++
			logger.WithError(err).WithField("externalId", a.ExternalID).Warn("Failed to soft-delete unenrolled account")
			continue
		}
		counters.Updated++
	}

	return counters, nil
}

// syncAccount upserts one directory record and recomputes its due label.
func (e *Engine) syncAccount(ctx context.Context, da directory.DirectoryAccount, now time.Time, counters *models.StepCounters) error {
	existing, err := e.accounts.GetByExternalID(ctx, da.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		account := &models.Account{
			AccountID:       uuid.New().String(),
			ExternalID:      da.ExternalID,
			AccountNumber:   da.AccountNumber,
			VendorCode:      da.VendorCode,
			CredentialID:    da.CredentialID,
			PeriodType:      types.PeriodType(da.PeriodType),
			CycleLengthDays: da.CycleDays,
			// A brand-new account has no processed window yet: it is due
			// immediately and its first window is derived backwards from now.
			NextRunAt:     &now,
			NextRunStatus: types.NextRunNow,
			LastSyncedAt:  now,
		}
		if err := e.accounts.Create(ctx, account); err != nil {
			return err
		}
		counters.Inserted++
		return nil
	}

	existing.AccountNumber = da.AccountNumber
	existing.VendorCode = da.VendorCode
	existing.CredentialID = da.CredentialID
	existing.PeriodType = types.PeriodType(da.PeriodType)
	existing.CycleLengthDays = da.CycleDays
	existing.IsDeleted = false
	existing.LastSyncedAt = now
	e.refreshDueLabel(existing, now)

	if err := e.accounts.Update(ctx, existing); err != nil {
		return err
	}
	counters.Updated++
	return nil
}

// refreshDueLabel recomputes NextRunAt and the due label from the account's
// last processed window. Accounts with an unresolvable period keep their
// previous label; job creation skips them anyway.
func (e *Engine) refreshDueLabel(a *models.Account, now time.Time) {
	if a.LastProcessedEnd != nil {
		window, err := billing.NextWindow(a.PeriodType, a.CycleLengthDays, *a.LastProcessedEnd)
		if err != nil {
			return
		}
		// Documents for a window become retrievable once the window closes
		a.NextRunAt = &window.End
	} else if a.NextRunAt == nil {
		a.NextRunAt = &now
	}

	a.NextRunStatus = billing.Classify(now, *a.NextRunAt, e.leadTime(), e.grace())
}

func (e *Engine) leadTime() time.Duration {
	return time.Duration(e.cfg.CredentialLeadDays) * 24 * time.Hour
}

func (e *Engine) grace() time.Duration {
	return time.Duration(e.cfg.MissingGraceDays) * 24 * time.Hour
}
