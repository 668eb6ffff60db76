package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adr-pipeline/internal/billing"
	"github.com/adr-pipeline/internal/logging"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/storage"
	"github.com/adr-pipeline/internal/types"
	"github.com/adr-pipeline/internal/vendorstatus"
)

// runStatusCheck polls the vendor for every outstanding download request and
// finalizes jobs whose status became terminal. Completed and failed jobs are
// archived in the same pass, which frees their billing window.
func (e *Engine) runStatusCheck(ctx context.Context, run *models.Run) (models.StepCounters, error) {
	var counters models.StepCounters

	now := e.nowFn()
	jobs, err := e.jobs.ListForStatusCheck(ctx, now.Add(-e.cfg.RetryDelay))
	if err != nil {
		return counters, fmt.Errorf("failed to list jobs for status check: %w", err)
	}
	counters.Total = len(jobs)

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallelRequests)

	for _, jw := range jobs {
		jw := jw
		g.Go(func() error {
			outcome := e.checkJobStatus(gctx, jw)

			mu.Lock()
			defer mu.Unlock()
			counters.Checked++
			switch outcome {
			case statusCompleted:
				counters.Completed++
			case statusFailed:
				counters.Failed++
			default:
				counters.StillProcessing++
			}
			return nil
		})
	}

	_ = g.Wait()

	return counters, nil
}

type statusOutcome int

const (
	statusPending statusOutcome = iota
	statusCompleted
	statusFailed
)

// checkJobStatus polls one tracking id and applies the classified verdict.
func (e *Engine) checkJobStatus(ctx context.Context, jw *storage.JobWithAccount) statusOutcome {
	job := &jw.Job
	logger := e.logger.WithField("jobId", job.JobID)

	now := e.nowFn()
	job.LastCheckedAt = &now

	resp, callErr := e.scraper.GetStatus(ctx, *job.RequestTrackingID)
	if callErr != nil && (resp == nil || resp.StatusID == 0) {
		// Poll failed without a vendor verdict; burns one retry so a dead
		// tracking id cannot be polled forever.
		msg := callErr.Error()
		job.ErrorMessage = &msg
		return e.recordPendingOrExhaust(ctx, job, logger)
	}

	raw := resp.RawBody
	job.LastStatusResponse = &raw

	c := vendorstatus.Classify(resp.StatusID)
	job.VendorStatusID = &c.Code
	job.VendorStatusDesc = &c.Description

	switch {
	case c.IsFinal && !c.IsError:
		job.Status = types.JobStatusCompleted
		job.ErrorMessage = nil
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to mark job completed")
			return statusPending
		}
		if err := e.jobs.MoveToHistory(ctx, job.JobID); err != nil {
			logger.WithError(err).Warn("Failed to archive completed job")
			return statusPending
		}
		e.advanceAccountCursor(ctx, &jw.Account, job, logger)
		return statusCompleted

	case c.IsFinal && c.IsError:
		return e.failAndArchive(ctx, job, c.Description, logger)

	default:
		return e.recordPendingOrExhaust(ctx, job, logger)
	}
}

// recordPendingOrExhaust counts a retry against the job and force-finalizes it
// once the retry budget is spent. A job that never resolves must not occupy
// its billing window forever.
func (e *Engine) recordPendingOrExhaust(ctx context.Context, job *models.Job, logger *logging.Logger) statusOutcome {
	job.RetryCount++

	if job.RetryCount >= e.cfg.MaxRetries {
		msg := fmt.Sprintf("status never became final after %d checks", job.RetryCount)
		return e.failAndArchive(ctx, job, msg, logger)
	}

	if err := e.jobs.Update(ctx, job); err != nil {
		logger.WithError(err).Warn("Failed to record status check")
	}
	return statusPending
}

// failAndArchive finalizes a job as failed and moves it to history.
func (e *Engine) failAndArchive(ctx context.Context, job *models.Job, reason string, logger *logging.Logger) statusOutcome {
	job.Status = types.JobStatusFailed
	job.ErrorMessage = &reason

	if err := e.jobs.Update(ctx, job); err != nil {
		logger.WithError(err).Warn("Failed to mark job failed")
		return statusPending
	}
	if err := e.jobs.MoveToHistory(ctx, job.JobID); err != nil {
		logger.WithError(err).Warn("Failed to archive failed job")
	}
	return statusFailed
}

// advanceAccountCursor records the completed window on the account and
// schedules the next one. Failed windows deliberately do not advance the
// cursor: the freed window is recreated on the next cycle.
func (e *Engine) advanceAccountCursor(ctx context.Context, account *models.Account, job *models.Job, logger *logging.Logger) {
	start := job.WindowStart
	end := job.WindowEnd
	account.LastProcessedStart = &start
	account.LastProcessedEnd = &end

	now := e.nowFn()
	if next, err := billing.NextWindow(account.PeriodType, account.CycleLengthDays, end); err == nil {
		account.NextRunAt = &next.End
		account.NextRunStatus = billing.Classify(now, next.End, e.leadTime(), e.grace())
	}

	if err := e.accounts.Update(ctx, account); err != nil {
		logger.WithError(err).Warn("Failed to advance account billing cursor")
	}
}
