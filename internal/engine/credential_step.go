package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adr-pipeline/internal/exclusion"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/scraper"
	"github.com/adr-pipeline/internal/storage"
	"github.com/adr-pipeline/internal/types"
	"github.com/adr-pipeline/internal/vendorstatus"
)

// runCredentialCheck verifies vendor portal credentials ahead of the billing
// window closing, so broken logins surface with lead time to fix them. Calls
// fan out up to MaxParallelRequests; a failed call is recorded on the job and
// retried on the next cycle, never in-step.
func (e *Engine) runCredentialCheck(ctx context.Context, run *models.Run) (models.StepCounters, error) {
	var counters models.StepCounters
	logger := e.logger.WithField("runId", run.RunID)

	rules, err := e.exclusions.ListActive(ctx)
	if err != nil {
		return counters, fmt.Errorf("failed to load exclusion rules: %w", err)
	}
	checker := exclusion.NewChecker(rules)

	now := e.nowFn()
	jobs, err := e.jobs.ListForCredentialCheck(ctx, now.Add(e.leadTime()))
	if err != nil {
		return counters, fmt.Errorf("failed to list jobs for credential check: %w", err)
	}
	counters.Total = len(jobs)

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
		if checker.IsExcluded(types.OperationCredentialCheck, key, now) {
			mu.Lock()
			counters.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			outcome, execution := e.checkCredential(gctx, jw)

			mu.Lock()
			defer mu.Unlock()
			if execution != nil {
				executions = append(executions, execution)
			}
			switch outcome {
			case outcomeVerified:
				counters.Verified++
			case outcomeFailed:
				counters.Failed++
			default:
				counters.StillProcessing++
			}
			return nil
		})
	}

	_ = g.Wait()

	if e.audit != nil {
		e.audit.Record(ctx, run.RunID, executions)
	}

	logger.WithFields(map[string]interface{}{
		"verified": counters.Verified,
		"failed":   counters.Failed,
		"skipped":  counters.Skipped,
	}).Debug("Credential check step finished")

	return counters, nil
}

type stepOutcome int

const (
	outcomePending stepOutcome = iota
	outcomeVerified
	outcomeFailed
)

// checkCredential performs one login check and applies the result to the job.
func (e *Engine) checkCredential(ctx context.Context, jw *storage.JobWithAccount) (stepOutcome, *models.Execution) {
	job := &jw.Job
	logger := e.logger.WithField("jobId", job.JobID)

	startedAt := e.nowFn()
	resp, callErr := e.scraper.CheckLogin(ctx, jw.Account.CredentialID)
	execution := e.recordExecution(ctx, job.JobID, types.RequestLoginCheck,
		fmt.Sprintf(`{"credentialId":%q}`, jw.Account.CredentialID), startedAt, resp, callErr)

	if callErr != nil && (resp == nil || resp.StatusID == 0) {
		// The call never produced a vendor verdict; leave the job in place for
		// the next cycle.
		msg := callErr.Error()
		job.ErrorMessage = &msg
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to record credential check error")
		}
		return outcomeFailed, execution
	}

	c := vendorstatus.Classify(resp.StatusID)
	job.VendorStatusID = &c.Code
	job.VendorStatusDesc = &c.Description

	switch {
	case vendorstatus.CredentialVerified(resp.StatusID):
		job.Status = types.JobStatusCredentialVerified
		job.ErrorMessage = nil
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to mark credential verified")
			return outcomeFailed, execution
		}
		return outcomeVerified, execution

	case c.IsFinal && c.IsError:
		// Invalid credentials, locked account, security challenge: terminal
		// for this job. Archiving frees the window so a rebill can retry once
		// the credential is fixed.
		job.Status = types.JobStatusCredentialFailed
		job.ErrorMessage = &c.Description
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to mark credential failed")
			return outcomeFailed, execution
		}
		if err := e.jobs.MoveToHistory(ctx, job.JobID); err != nil {
			logger.WithError(err).Warn("Failed to archive credential-failed job")
		}
		return outcomeFailed, execution

	default:
		// Queued or in progress on the vendor side; check again next cycle
		if err := e.jobs.Update(ctx, job); err != nil {
			logger.WithError(err).Warn("Failed to record pending credential status")
		}
		return outcomePending, execution
	}
}

// recordExecution appends one execution row for an outbound call. Persistence
// failures are logged; audit history must never break the pipeline.
func (e *Engine) recordExecution(ctx context.Context, jobID string, reqType types.RequestType,
	requestPayload string, startedAt time.Time, resp *scraper.Response, callErr error) *models.Execution {

	endedAt := e.nowFn()
	execution := &models.Execution{
		ExecutionID:    uuid.New().String(),
		JobID:          jobID,
		RequestType:    reqType,
		StartedAt:      startedAt,
		EndedAt:        &endedAt,
		Success:        callErr == nil,
		RequestPayload: requestPayload,
	}
	if resp != nil {
		execution.HTTPStatus = resp.HTTPStatus
		execution.ResponsePayload = resp.RawBody
		if resp.StatusID != 0 {
			statusID := resp.StatusID
			execution.VendorStatusID = &statusID
		}
	}
	if callErr != nil {
		msg := callErr.Error()
		execution.ErrorMessage = &msg
	}

	if err := e.executions.Create(ctx, execution); err != nil {
		e.logger.WithError(err).WithField("jobId", jobID).Warn("Failed to persist execution record")
	}

	return execution
}
