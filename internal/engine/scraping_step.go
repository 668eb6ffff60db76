package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adr-pipeline/internal/exclusion"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/storage"
	"github.com/adr-pipeline/internal/types"
	"github.com/adr-pipeline/internal/vendorstatus"
)

// runScraping submits download requests for every credential-verified job.
// The vendor processes downloads asynchronously; the step only records the
// tracking id, the status check step observes the outcome.
func (e *Engine) runScraping(ctx context.Context, run *models.Run) (models.StepCounters, error) {
	var counters models.StepCounters

	rules, err := e.exclusions.ListActive(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to load exclusion rules: %w", err)
	}
	checker := exclusion.NewChecker(rules)

	jobs, err := e.jobs.ListForScraping(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to list jobs for scraping: %w", err)
	}
	counters.Total = len(jobs)

	now := e.nowFn()

	var mu sync.Mutex
	var executions []*models.Execution

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallelRequests)

	for _, jw := range jobs {
		jw := jw
		key := exclusion.Key{
			VendorCode:        jw.Account.VendorCode,
			ExternalAccountID: jw.Account.ExternalID,
			CredentialID:      jw.Account.CredentialID,
		}
		if checker.IsExcluded(types.OperationDownload, key, now) {
			mu.Lock()
			counters.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			ok, execution := e.submitDownload(gctx, jw)

			mu.Lock()
			defer mu.Unlock()
			if execution != nil {
				executions = append(executions, execution)
			}
			if ok {
				counters.Requested++
			} else {
				counters.Failed++
			}
			return nil
		})
	}

	_ = g.Wait()

	if e.audit != nil {
		e.audit.Record(ctx, run.RunID, executions)
	}

	return counters, nil
}

// submitDownload submits one download request and stores the tracking id.
func (e *Engine) submitDownload(ctx context.Context, jw *storage.JobWithAccount) (bool, *models.Execution) {
	job := &jw.Job
	logger := e.logger.WithField("jobId", job.JobID)

	reqType := types.RequestDownload
	if job.ManualRequest {
		reqType = types.RequestRebill
	}

	requestPayload := fmt.Sprintf(`{"credentialId":%q,"periodStart":%q,"periodEnd":%q}`,
		jw.Account.CredentialID, job.WindowStart.Format("2006-01-02"), job.WindowEnd.Format("2006-01-02"))

	startedAt := e.nowFn()
	resp, callErr := e.scraper.SubmitDownload(ctx, jw.Account.CredentialID, job.WindowStart, job.WindowEnd)
	execution := e.recordExecution(ctx, job.JobID, reqType, requestPayload, startedAt, resp, callErr)

	if callErr != nil || resp.TrackingID == "" {
		// Submission failed; the job stays credential-verified and the next
		// cycle retries it.
		msg := "download submission failed"
		if callErr != nil {
			msg = callErr.Error()
		}
		job.ErrorMessage = &msg
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to record submission error")
		}
		return false, execution
	}

	c := vendorstatus.Classify(resp.StatusID)
	trackingID := resp.TrackingID
	job.RequestTrackingID = &trackingID
	job.Status = types.JobStatusRequested
	job.VendorStatusID = &c.Code
	job.VendorStatusDesc = &c.Description
	job.ErrorMessage = nil

	if err := e.jobs.Update(ctx, job); err != nil {
		logger.WithError(err).Warn("Failed to record download submission")
		return false, execution
	}

	return true, execution
}
