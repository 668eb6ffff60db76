// Package engine runs the document retrieval pipeline: account sync, job
// creation, credential verification, scraping submission and status polling,
// coordinated as a single-run-at-a-time state machine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adr-pipeline/internal/apperrors"
	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/directory"
	"github.com/adr-pipeline/internal/logging"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/scraper"
	"github.com/adr-pipeline/internal/storage"
	"github.com/adr-pipeline/internal/types"
)

// AccountStore is the account persistence surface the engine needs
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	Update(ctx context.Context, a *models.Account) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Account, error)
	ListActive(ctx context.Context) ([]*models.Account, error)
	ListByNextRunStatus(ctx context.Context, statuses ...types.NextRunStatus) ([]*models.Account, error)
}

// JobStore is the job persistence surface the engine needs
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Update(ctx context.Context, j *models.Job) error
	ExistsActiveForWindow(ctx context.Context, accountID string, windowStart time.Time) (bool, error)
	ListForCredentialCheck(ctx context.Context, dueBefore time.Time) ([]*storage.JobWithAccount, error)
	ListForScraping(ctx context.Context) ([]*storage.JobWithAccount, error)
	ListForStatusCheck(ctx context.Context, checkedBefore time.Time) ([]*storage.JobWithAccount, error)
	MoveToHistory(ctx context.Context, jobID string) error
}

// ExecutionStore records outbound call attempts
type ExecutionStore interface {
	Create(ctx context.Context, e *models.Execution) error
}

// ExclusionStore loads the active blacklist rules
type ExclusionStore interface {
	ListActive(ctx context.Context) ([]models.Exclusion, error)
}

// RunStore is the run persistence surface the engine needs
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	ActiveRunID(ctx context.Context) (string, error)
	ListNonTerminal(ctx context.Context) ([]*models.Run, error)
	ListHistory(ctx context.Context, limit int) ([]*models.Run, error)
	SaveStepResult(ctx context.Context, s *models.StepResult) error
	ListStepResults(ctx context.Context, runID string) ([]models.StepResult, error)
}

// ScrapeClient talks to the external scraping service
type ScrapeClient interface {
	CheckLogin(ctx context.Context, credentialID string) (*scraper.Response, error)
	SubmitDownload(ctx context.Context, credentialID string, periodStart, periodEnd time.Time) (*scraper.Response, error)
	GetStatus(ctx context.Context, trackingID string) (*scraper.Response, error)
}

// AccountDirectory lists the enrolled accounts from the directory service
type AccountDirectory interface {
	ListAccounts(ctx context.Context) ([]directory.DirectoryAccount, error)
}

// RunCache is the read-through cache for run status views. May be nil.
type RunCache interface {
	SetRun(ctx context.Context, view *models.RunView) error
	GetRun(ctx context.Context, runID string) (*models.RunView, error)
	InvalidateRun(ctx context.Context, runID string) error
}

// AuditSink receives execution outcomes for analytics. May be nil.
type AuditSink interface {
	Record(ctx context.Context, runID string, executions []*models.Execution)
}

// Engine coordinates pipeline runs. One run executes at a time; the invariant
// is enforced through the run table, not in-process state, so it survives
// restarts.
type Engine struct {
	cfg        config.PipelineConfig
	accounts   AccountStore
	jobs       JobStore
	executions ExecutionStore
	exclusions ExclusionStore
	runs       RunStore
	scraper    ScrapeClient
	directory  AccountDirectory
	cache      RunCache
	audit      AuditSink
	logger     *logging.Logger

	// baseCtx bounds background run execution so shutdown stops active runs
	baseCtx context.Context

	mu        sync.Mutex
	active    map[string]*runHandle
	wg        sync.WaitGroup
	nowFn     func() time.Time
}

// runHandle tracks an in-process run for cooperative cancellation.
type runHandle struct {
	mu        sync.Mutex
	cancelled bool
}

func (h *runHandle) cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

func (h *runHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Deps bundles the engine's collaborators
type Deps struct {
	Accounts   AccountStore
	Jobs       JobStore
	Executions ExecutionStore
	Exclusions ExclusionStore
	Runs       RunStore
	Scraper    ScrapeClient
	Directory  AccountDirectory
	Cache      RunCache
	Audit      AuditSink
	Logger     *logging.Logger
}

// New creates a new pipeline engine. baseCtx bounds background run execution;
// cancelling it stops in-flight runs at the next step boundary.
func New(baseCtx context.Context, cfg config.PipelineConfig, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Engine{
		cfg:        cfg,
		accounts:   deps.Accounts,
		jobs:       deps.Jobs,
		executions: deps.Executions,
		exclusions: deps.Exclusions,
		runs:       deps.Runs,
		scraper:    deps.Scraper,
		directory:  deps.Directory,
		cache:      deps.Cache,
		audit:      deps.Audit,
		logger:     logger,
		baseCtx:    baseCtx,
		active:     make(map[string]*runHandle),
		nowFn:      time.Now,
	}
}

// StartCycle creates a new run and launches it in the background. Returns a
// conflict error when a non-terminal run already exists.
func (e *Engine) StartCycle(ctx context.Context, requestedBy string) (*models.Run, error) {
	activeID, err := e.runs.ActiveRunID(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("look up active run", err)
	}
	if activeID != "" {
		return nil, apperrors.NewRunConflictError(activeID)
	}

	run := &models.Run{
		RunID:       uuid.New().String(),
		RequestedBy: requestedBy,
		Status:      types.RunStatusRequested,
		Progress:    fmt.Sprintf("0/%d", len(types.StepOrder)),
		RequestedAt: e.nowFn(),
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return nil, apperrors.NewDatabaseError("create run", err)
	}

	handle := &runHandle{}
	e.mu.Lock()
	e.active[run.RunID] = handle
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, run.RunID)
			e.mu.Unlock()
		}()
		e.execute(e.baseCtx, run, handle)
	}()

	e.logger.WithFields(map[string]interface{}{
		"runId":       run.RunID,
		"requestedBy": requestedBy,
	}).Info("Pipeline run started")

	return run, nil
}

// CancelRun requests cooperative cancellation of a run. The run finishes its
// current step and finalizes as cancelled at the next step boundary. A
// non-terminal run with no in-process handle was orphaned by a restart and is
// finalized directly.
func (e *Engine) CancelRun(ctx context.Context, runID string) (*models.Run, error) {
	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get run", err)
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError("run", runID)
	}
	if run.Status.IsTerminal() {
		return nil, apperrors.NewRunTerminalError(runID, string(run.Status))
	}

	e.mu.Lock()
	handle, ok := e.active[runID]
	e.mu.Unlock()

	if ok {
		handle.cancel()
		e.logger.WithField("runId", runID).Info("Run cancellation requested")
		return run, nil
	}

	// No handle: the run belongs to a previous process instance
	now := e.nowFn()
	run.Status = types.RunStatusCancelled
	run.CompletedAt = &now
	msg := "cancelled while orphaned after service restart"
	run.ErrorMessage = &msg
	if err := e.runs.Update(ctx, run); err != nil {
		return nil, apperrors.NewDatabaseError("cancel orphaned run", err)
	}
	e.invalidateCache(ctx, runID)

	return run, nil
}

// GetRunView returns a run with its step results, served from cache when
// possible.
func (e *Engine) GetRunView(ctx context.Context, runID string) (*models.RunView, error) {
	if e.cache != nil {
		if view, err := e.cache.GetRun(ctx, runID); err == nil && view != nil {
			return view, nil
		}
	}

	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get run", err)
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError("run", runID)
	}

	steps, err := e.runs.ListStepResults(ctx, runID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list step results", err)
	}

	view := &models.RunView{Run: *run, Steps: steps}
	if e.cache != nil {
		if err := e.cache.SetRun(ctx, view); err != nil {
			e.logger.WithError(err).Warn("Failed to cache run view")
		}
	}

	return view, nil
}

// ListRuns returns the most recent runs, newest first
func (e *Engine) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	runs, err := e.runs.ListHistory(ctx, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list runs", err)
	}
	return runs, nil
}

// Wait blocks until all in-flight background runs have finished. Used during
// graceful shutdown after the base context is cancelled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) invalidateCache(ctx context.Context, runID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateRun(ctx, runID); err != nil {
		e.logger.WithError(err).WithField("runId", runID).Warn("Failed to invalidate run cache")
	}
}
