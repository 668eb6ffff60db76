package models

import (
	"time"

	"github.com/adr-pipeline/internal/types"
)

// Execution is one outbound call attempt made for a job, kept append-only for
// auditability. A row is never mutated once EndedAt is set.
type Execution struct {
	ExecutionID     string            `json:"executionId" db:"execution_id"`
	JobID           string            `json:"jobId" db:"job_id"`
	RequestType     types.RequestType `json:"requestType" db:"request_type"`
	StartedAt       time.Time         `json:"startedAt" db:"started_at"`
	EndedAt         *time.Time        `json:"endedAt,omitempty" db:"ended_at"`
	Success         bool              `json:"success" db:"success"`
	VendorStatusID  *int              `json:"vendorStatusId,omitempty" db:"vendor_status_id"`
	HTTPStatus      int               `json:"httpStatus" db:"http_status"`
	ErrorMessage    *string           `json:"errorMessage,omitempty" db:"error_message"`
	RequestPayload  string            `json:"requestPayload" db:"request_payload"`
	ResponsePayload string            `json:"responsePayload" db:"response_payload"`
}
