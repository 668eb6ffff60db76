package engine

import (
	"context"

	"github.com/adr-pipeline/internal/types"
)

// RecoverOrphanedRuns force-finalizes runs left non-terminal by an unclean
// shutdown. Must run before the engine accepts new cycles: an orphaned run
// would otherwise block the single-run invariant forever. Step idempotency
// makes this safe; the next cycle picks up exactly where the dead one stopped.
func (e *Engine) RecoverOrphanedRuns(ctx context.Context) error {
	orphans, err := e.runs.ListNonTerminal(ctx)
	if err != nil {
		return err
	}

	for _, run := range orphans {
		now := e.nowFn()
		run.Status = types.RunStatusFailed
		run.CurrentStep = nil
		run.CompletedAt = &now
		msg := "interrupted by service restart"
		run.ErrorMessage = &msg

		if err := e.runs.Update(ctx, run); err != nil {
			return err
		}
		e.invalidateCache(ctx, run.RunID)

		e.logger.WithField("runId", run.RunID).Warn("Force-failed orphaned run from previous instance")
	}

	return nil
}
