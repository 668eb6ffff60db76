package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
)

// stepFunc executes one pipeline step and reports what it did. A returned
// error is fatal to the whole run; per-item failures belong in the counters.
type stepFunc func(ctx context.Context, run *models.Run) (models.StepCounters, error)

// execute drives a run through the five steps in order. Cancellation is
// checked between steps only; a step that has started always finishes.
func (e *Engine) execute(ctx context.Context, run *models.Run, handle *runHandle) {
	logger := e.logger.WithField("runId", run.RunID)

	now := e.nowFn()
	run.Status = types.RunStatusRunning
	run.StartedAt = &now
	if err := e.runs.Update(ctx, run); err != nil {
		logger.WithError(err).Error("Failed to mark run as running")
		return
	}
	e.invalidateCache(ctx, run.RunID)

	steps := map[types.StepName]stepFunc{
		types.StepAccountSync:     e.runAccountSync,
		types.StepJobCreation:     e.runJobCreation,
		types.StepCredentialCheck: e.runCredentialCheck,
		types.StepScraping:        e.runScraping,
		types.StepStatusCheck:     e.runStatusCheck,
	}

	for i, step := range types.StepOrder {
		if handle.isCancelled() || ctx.Err() != nil {
			e.finalize(run, types.RunStatusCancelled, "run cancelled before step "+string(step))
			return
		}

		stepName := string(step)
		run.CurrentStep = &stepName
		if err := e.runs.Update(ctx, run); err != nil {
			logger.WithError(err).Error("Failed to record current step")
		}
		e.invalidateCache(ctx, run.RunID)

		stepLogger := logger.WithField("step", stepName)
		stepLogger.Info("Step started")

		startedAt := e.nowFn()
		counters, err := steps[step](ctx, run)
		duration := e.nowFn().Sub(startedAt)

		result := &models.StepResult{
			RunID:      run.RunID,
			Step:       step,
			StartedAt:  startedAt,
			DurationMS: duration.Milliseconds(),
			Counters:   counters,
		}
		if saveErr := e.runs.SaveStepResult(ctx, result); saveErr != nil {
			stepLogger.WithError(saveErr).Error("Failed to persist step result")
		}

		if err != nil {
			stepLogger.WithError(err).Error("Step failed")
			e.finalize(run, types.RunStatusFailed, fmt.Sprintf("step %s failed: %v", stepName, err))
			return
		}

		run.Progress = fmt.Sprintf("%d/%d", i+1, len(types.StepOrder))
		if err := e.runs.Update(ctx, run); err != nil {
			logger.WithError(err).Error("Failed to record run progress")
		}
		e.invalidateCache(ctx, run.RunID)

		stepLogger.WithFields(map[string]interface{}{
			"duration": duration.String(),
			"counters": counters,
		}).Info("Step completed")
	}

	e.finalize(run, types.RunStatusCompleted, "")
}

// finalize moves the run to a terminal status exactly once.
func (e *Engine) finalize(run *models.Run, status types.RunStatus, errMsg string) {
	// Finalization must succeed even when the base context was cancelled by
	// shutdown, so it gets its own timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := e.nowFn()
	run.Status = status
	run.CurrentStep = nil
	run.CompletedAt = &now
	if errMsg != "" {
		run.ErrorMessage = &errMsg
	}

	if err := e.runs.Update(ctx, run); err != nil {
		e.logger.WithError(err).WithField("runId", run.RunID).Error("Failed to finalize run")
		return
	}
	e.invalidateCache(ctx, run.RunID)

	e.logger.WithFields(map[string]interface{}{
		"runId":  run.RunID,
		"status": string(status),
	}).Info("Run finalized")
}
