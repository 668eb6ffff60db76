package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adr-pipeline/internal/directory"
	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/scraper"
	"github.com/adr-pipeline/internal/storage"
	"github.com/adr-pipeline/internal/types"
)

// fakeStore is an in-memory implementation of every persistence interface the
// engine consumes. Methods copy models in and out so engine-side mutation
// without an Update call cannot leak into the store.
type fakeStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	jobs         map[string]*models.Job
	archivedJobs map[string]*models.Job
	executions   []*models.Execution
	exclusions   []models.Exclusion
	runs         map[string]*models.Run
	stepResults  map[string][]models.StepResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[string]*models.Account),
		jobs:         make(map[string]*models.Job),
		archivedJobs: make(map[string]*models.Job),
		runs:         make(map[string]*models.Run),
		stepResults:  make(map[string][]models.StepResult),
	}
}

// --- AccountStore ---

func (s *fakeStore) Create(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.AccountID] = &cp
	return nil
}

func (s *fakeStore) Update(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.AccountID]; !ok {
		return fmt.Errorf("account %s not found", a.AccountID)
	}
	cp := *a
	s.accounts[a.AccountID] = &cp
	return nil
}

func (s *fakeStore) GetByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ExternalID == externalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListActive(ctx context.Context) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if !a.IsDeleted {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByNextRunStatus(ctx context.Context, statuses ...types.NextRunStatus) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.IsDeleted {
			continue
		}
		for _, st := range statuses {
			if a.NextRunStatus == st {
				cp := *a
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

// --- JobStore ---

func (s *fakeStore) CreateJob(ctx context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.JobID] = &cp
	return nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; !ok {
		return fmt.Errorf("job %s not found", j.JobID)
	}
	cp := *j
	s.jobs[j.JobID] = &cp
	return nil
}

func (s *fakeStore) ExistsActiveForWindow(ctx context.Context, accountID string, windowStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.AccountID == accountID && j.WindowStart.Equal(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListForCredentialCheck(ctx context.Context, dueBefore time.Time) ([]*storage.JobWithAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.JobWithAccount
	for _, j := range s.jobs {
		if j.Status != types.JobStatusInserted {
			continue
		}
		a := s.accounts[j.AccountID]
		if a == nil || a.NextRunAt == nil || a.NextRunAt.After(dueBefore) {
			continue
		}
		out = append(out, &storage.JobWithAccount{Job: *j, Account: *a})
	}
	return out, nil
}

func (s *fakeStore) ListForScraping(ctx context.Context) ([]*storage.JobWithAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.JobWithAccount
	for _, j := range s.jobs {
		if j.Status != types.JobStatusCredentialVerified {
			continue
		}
		a := s.accounts[j.AccountID]
		if a == nil {
			continue
		}
		out = append(out, &storage.JobWithAccount{Job: *j, Account: *a})
	}
	return out, nil
}

func (s *fakeStore) ListForStatusCheck(ctx context.Context, checkedBefore time.Time) ([]*storage.JobWithAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.JobWithAccount
	for _, j := range s.jobs {
		if j.RequestTrackingID == nil {
			continue
		}
		if j.LastCheckedAt != nil && j.LastCheckedAt.After(checkedBefore) {
			continue
		}
		a := s.accounts[j.AccountID]
		if a == nil {
			continue
		}
		out = append(out, &storage.JobWithAccount{Job: *j, Account: *a})
	}
	return out, nil
}

func (s *fakeStore) MoveToHistory(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	s.archivedJobs[jobID] = j
	delete(s.jobs, jobID)
	return nil
}

// --- ExecutionStore ---

func (s *fakeStore) CreateExecution(ctx context.Context, e *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.executions = append(s.executions, &cp)
	return nil
}

// --- ExclusionStore ---

func (s *fakeStore) ListActive2(ctx context.Context) ([]models.Exclusion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Exclusion(nil), s.exclusions...), nil
}

// --- RunStore ---

func (s *fakeStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; !ok {
		return fmt.Errorf("run %s not found", run.RunID)
	}
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *fakeStore) GetRunByID(ctx context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *fakeStore) ActiveRunID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if !run.Status.IsTerminal() {
			return run.RunID, nil
		}
	}
	return "", nil
}

func (s *fakeStore) ListNonTerminal(ctx context.Context) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Run
	for _, run := range s.runs {
		if !run.Status.IsTerminal() {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListHistory(ctx context.Context, limit int) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Run
	for _, run := range s.runs {
		cp := *run
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) SaveStepResult(ctx context.Context, sr *models.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.stepResults[sr.RunID]
	for i := range results {
		if results[i].Step == sr.Step {
			results[i] = *sr
			s.stepResults[sr.RunID] = results
			return nil
		}
	}
	s.stepResults[sr.RunID] = append(results, *sr)
	return nil
}

func (s *fakeStore) ListStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StepResult(nil), s.stepResults[runID]...), nil
}

// Interface adapters. The engine consumes distinct store interfaces whose
// method names collide on a single struct, so each view renames as needed.

type accountStoreView struct{ s *fakeStore }

func (v accountStoreView) Create(ctx context.Context, a *models.Account) error { return v.s.Create(ctx, a) }
func (v accountStoreView) Update(ctx context.Context, a *models.Account) error { return v.s.Update(ctx, a) }
func (v accountStoreView) GetByExternalID(ctx context.Context, id string) (*models.Account, error) {
	return v.s.GetByExternalID(ctx, id)
}
func (v accountStoreView) ListActive(ctx context.Context) ([]*models.Account, error) {
	return v.s.ListActive(ctx)
}
func (v accountStoreView) ListByNextRunStatus(ctx context.Context, statuses ...types.NextRunStatus) ([]*models.Account, error) {
	return v.s.ListByNextRunStatus(ctx, statuses...)
}

type jobStoreView struct{ s *fakeStore }

func (v jobStoreView) Create(ctx context.Context, j *models.Job) error { return v.s.CreateJob(ctx, j) }
func (v jobStoreView) Update(ctx context.Context, j *models.Job) error { return v.s.UpdateJob(ctx, j) }
func (v jobStoreView) ExistsActiveForWindow(ctx context.Context, accountID string, windowStart time.Time) (bool, error) {
	return v.s.ExistsActiveForWindow(ctx, accountID, windowStart)
}
func (v jobStoreView) ListForCredentialCheck(ctx context.Context, dueBefore time.Time) ([]*storage.JobWithAccount, error) {
	return v.s.ListForCredentialCheck(ctx, dueBefore)
}
func (v jobStoreView) ListForScraping(ctx context.Context) ([]*storage.JobWithAccount, error) {
	return v.s.ListForScraping(ctx)
}
func (v jobStoreView) ListForStatusCheck(ctx context.Context, checkedBefore time.Time) ([]*storage.JobWithAccount, error) {
	return v.s.ListForStatusCheck(ctx, checkedBefore)
}
func (v jobStoreView) MoveToHistory(ctx context.Context, jobID string) error {
	return v.s.MoveToHistory(ctx, jobID)
}

type executionStoreView struct{ s *fakeStore }

func (v executionStoreView) Create(ctx context.Context, e *models.Execution) error {
	return v.s.CreateExecution(ctx, e)
}

type exclusionStoreView struct{ s *fakeStore }

func (v exclusionStoreView) ListActive(ctx context.Context) ([]models.Exclusion, error) {
	return v.s.ListActive2(ctx)
}

type runStoreView struct{ s *fakeStore }

func (v runStoreView) Create(ctx context.Context, run *models.Run) error { return v.s.CreateRun(ctx, run) }
func (v runStoreView) Update(ctx context.Context, run *models.Run) error { return v.s.UpdateRun(ctx, run) }
func (v runStoreView) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	return v.s.GetRunByID(ctx, runID)
}
func (v runStoreView) ActiveRunID(ctx context.Context) (string, error) { return v.s.ActiveRunID(ctx) }
func (v runStoreView) ListNonTerminal(ctx context.Context) ([]*models.Run, error) {
	return v.s.ListNonTerminal(ctx)
}
func (v runStoreView) ListHistory(ctx context.Context, limit int) ([]*models.Run, error) {
	return v.s.ListHistory(ctx, limit)
}
func (v runStoreView) SaveStepResult(ctx context.Context, sr *models.StepResult) error {
	return v.s.SaveStepResult(ctx, sr)
}
func (v runStoreView) ListStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	return v.s.ListStepResults(ctx, runID)
}

// fakeScraper returns canned responses per endpoint and counts calls.
type fakeScraper struct {
	mu sync.Mutex

	loginResp  *scraper.Response
	loginErr   error
	submitResp *scraper.Response
	submitErr  error
	statusResp *scraper.Response
	statusErr  error

	loginCalls  int
	submitCalls int
	statusCalls int
}

func (f *fakeScraper) CheckLogin(ctx context.Context, credentialID string) (*scraper.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginResp, f.loginErr
}

func (f *fakeScraper) SubmitDownload(ctx context.Context, credentialID string, periodStart, periodEnd time.Time) (*scraper.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitResp, f.submitErr
}

func (f *fakeScraper) GetStatus(ctx context.Context, trackingID string) (*scraper.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.statusResp, f.statusErr
}

// fakeDirectory serves a fixed account list. Setting gate makes ListAccounts
// block until released, which lets tests act mid-step deterministically.
type fakeDirectory struct {
	accounts []directory.DirectoryAccount
	err      error

	started chan struct{}
	release chan struct{}
}

func (f *fakeDirectory) ListAccounts(ctx context.Context) ([]directory.DirectoryAccount, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}
