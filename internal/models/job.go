package models

import (
	"time"
)

// Job is one (account, billing window) work item. At most one non-archived job
// exists per account and window; archival into the history table frees the
// window for a future rebill.
type Job struct {
	JobID              string     `json:"jobId" db:"job_id"`
	AccountID          string     `json:"accountId" db:"account_id"`
	WindowStart        time.Time  `json:"windowStart" db:"window_start"`
	WindowEnd          time.Time  `json:"windowEnd" db:"window_end"`
	Status             string     `json:"status" db:"status"`
	VendorStatusID     *int       `json:"vendorStatusId,omitempty" db:"vendor_status_id"`
	VendorStatusDesc   *string    `json:"vendorStatusDesc,omitempty" db:"vendor_status_desc"`
	RequestTrackingID  *string    `json:"requestTrackingId,omitempty" db:"request_tracking_id"`
	RetryCount         int        `json:"retryCount" db:"retry_count"`
	ManualRequest      bool       `json:"manualRequest" db:"manual_request"`
	ManualRequestNote  *string    `json:"manualRequestNote,omitempty" db:"manual_request_note"`
	LastCheckedAt      *time.Time `json:"lastCheckedAt,omitempty" db:"last_checked_at"`
	LastStatusResponse *string    `json:"lastStatusResponse,omitempty" db:"last_status_response"`
	ErrorMessage       *string    `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time  `json:"updatedAt" db:"updated_at"`
}
