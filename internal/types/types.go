// Package types contains shared domain types for the ADR pipeline.
package types

// PeriodType represents the billing period cadence of an account
type PeriodType string

const (
	// PeriodMonthly advances the billing window by one calendar month
	PeriodMonthly PeriodType = "monthly"
	// PeriodQuarterly advances the billing window by three calendar months
	PeriodQuarterly PeriodType = "quarterly"
	// PeriodCustom advances the billing window by a fixed day count
	PeriodCustom PeriodType = "custom"
)

// NextRunStatus labels how due an account is for its next billing cycle
type NextRunStatus string

const (
	// NextRunNow means the account is due for processing this cycle
	NextRunNow NextRunStatus = "RunNow"
	// NextRunDueSoon means the account comes due within the lead-time window
	NextRunDueSoon NextRunStatus = "DueSoon"
	// NextRunMissing means a run was expected but skipped past the grace period
	NextRunMissing NextRunStatus = "Missing"
	// NextRunNone means the account is not due
	NextRunNone NextRunStatus = ""
)

// RunStatus represents the lifecycle state of an orchestration run
type RunStatus string

const (
	// RunStatusRequested represents a run that has been created but not started
	RunStatusRequested RunStatus = "requested"
	// RunStatusRunning represents a run whose steps are executing
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted represents a run that finished all steps
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed represents a run aborted by a fatal step error
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled represents a run stopped by a cancellation request
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether a run in this status will never change again
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ExclusionType scopes a blacklist entry to one or both outbound operations
type ExclusionType string

const (
	// ExclusionDownload suppresses document download requests
	ExclusionDownload ExclusionType = "download"
	// ExclusionCredentialCheck suppresses login verification requests
	ExclusionCredentialCheck ExclusionType = "credential_check"
	// ExclusionAll suppresses every outbound operation
	ExclusionAll ExclusionType = "all"
)

// OperationKind identifies the outbound operation being gated by an exclusion
type OperationKind string

const (
	// OperationCredentialCheck is the login verification call
	OperationCredentialCheck OperationKind = "credential_check"
	// OperationDownload is the document retrieval call
	OperationDownload OperationKind = "download"
)

// RequestType identifies what an execution row recorded
type RequestType string

const (
	// RequestLoginCheck is a credential verification attempt
	RequestLoginCheck RequestType = "login_check"
	// RequestDownload is a document retrieval submission
	RequestDownload RequestType = "download"
	// RequestRebill is a manually requested re-retrieval of a closed window
	RequestRebill RequestType = "rebill"
)

// Job status values written by the pipeline itself. The job status column is a
// free-text mirror of the vendor status, so these only cover the states the
// pipeline owns before the vendor has reported anything.
const (
	// JobStatusInserted is the initial status of a freshly created job
	JobStatusInserted = "Inserted"
	// JobStatusCredentialVerified marks a job whose login check succeeded
	JobStatusCredentialVerified = "CredentialVerified"
	// JobStatusCredentialFailed marks a job whose login check failed
	JobStatusCredentialFailed = "CredentialFailed"
	// JobStatusRequested marks a job whose download request was submitted
	JobStatusRequested = "Requested"
	// JobStatusCompleted marks a job whose documents were retrieved
	JobStatusCompleted = "Completed"
	// JobStatusFailed marks a job finalized with an error
	JobStatusFailed = "Failed"
)

// StepName identifies one of the five pipeline steps
type StepName string

const (
	StepAccountSync     StepName = "account_sync"
	StepJobCreation     StepName = "job_creation"
	StepCredentialCheck StepName = "credential_check"
	StepScraping        StepName = "scraping"
	StepStatusCheck     StepName = "status_check"
)

// StepOrder is the fixed execution order of the pipeline steps
var StepOrder = []StepName{
	StepAccountSync,
	StepJobCreation,
	StepCredentialCheck,
	StepScraping,
	StepStatusCheck,
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
