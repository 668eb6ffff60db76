package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adr-pipeline/internal/billing"
	"github.com/adr-pipeline/internal/exclusion"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
)

// runJobCreation creates one job per due account and billing window. The
// window existence check makes the step idempotent: re-running a cycle never
// duplicates work, because a window is occupied until its job is archived.
func (e *Engine) runJobCreation(ctx context.Context, run *models.Run) (models.StepCounters, error) {
	var counters models.StepCounters
	logger := e.logger.WithField("runId", run.RunID)

	rules, err := e.exclusions.ListActive(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to load exclusion rules: %w", err)
	}
	checker := exclusion.NewChecker(rules)

	// Missing accounts are deliberately absent: they need manual attention,
	// not a silently backdated job.
	accounts, err := e.accounts.ListByNextRunStatus(ctx, types.NextRunNow, types.NextRunDueSoon)
	if err != nil {
		return counters, fmt.Errorf("failed to list due accounts: %w", err)
	}
	counters.Total = len(accounts)

	now := e.nowFn()

	for _, a := range accounts {
		key := exclusion.Key{
			VendorCode:        a.VendorCode,
			ExternalAccountID: a.ExternalID,
			CredentialID:      a.CredentialID,
		}
		if checker.IsExcluded(types.OperationDownload, key, now) {
			counters.Skipped++
			continue
		}

		window, err := e.dueWindow(a, now)
		if err != nil {
			counters.Skipped++
			logger.WithError(err).WithField("accountId", a.AccountID).Warn("Account has no resolvable billing window")
			continue
		}

		exists, err := e.jobs.ExistsActiveForWindow(ctx, a.AccountID, window.Start)
		if err != nil {
			counters.Failed++
			logger.WithError(err).WithField("accountId", a.AccountID).Warn("Failed to check for existing job")
			continue
		}
		if exists {
			counters.Skipped++
			continue
		}

		job := &models.Job{
			JobID:       uuid.New().String(),
			AccountID:   a.AccountID,
			WindowStart: window.Start,
			WindowEnd:   window.End,
			Status:      types.JobStatusInserted,
		}
		if err := e.jobs.Create(ctx, job); err != nil {
			counters.Failed++
			logger.WithError(err).WithField("accountId", a.AccountID).Warn("Failed to create job")
			continue
		}
		counters.Created++
	}

	return counters, nil
}

// dueWindow resolves the billing window the account's next job covers.
func (e *Engine) dueWindow(a *models.Account, now time.Time) (billing.Window, error) {
	if a.LastProcessedEnd != nil {
		return billing.NextWindow(a.PeriodType, a.CycleLengthDays, *a.LastProcessedEnd)
	}

	end := now
	if a.NextRunAt != nil {
		end = *a.NextRunAt
	}
	return billing.WindowEndingAt(a.PeriodType, a.CycleLengthDays, end)
}
