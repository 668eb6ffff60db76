package models

import (
	"time"

	"github.com/adr-pipeline/internal/types"
)

// Account is the local mirror of one external vendor account. Rows are created
// and updated by the account sync step only; every other component reads them.
type Account struct {
	AccountID          string              `json:"accountId" db:"account_id"`
	ExternalID         string              `json:"externalId" db:"external_id"`
	AccountNumber      string              `json:"accountNumber" db:"account_number"`
	VendorCode         string              `json:"vendorCode" db:"vendor_code"`
	CredentialID       string              `json:"credentialId" db:"credential_id"`
	PeriodType         types.PeriodType    `json:"periodType" db:"period_type"`
	CycleLengthDays    int                 `json:"cycleLengthDays" db:"cycle_length_days"`
	LastProcessedStart *time.Time          `json:"lastProcessedStart,omitempty" db:"last_processed_start"`
	LastProcessedEnd   *time.Time          `json:"lastProcessedEnd,omitempty" db:"last_processed_end"`
	NextRunAt          *time.Time          `json:"nextRunAt,omitempty" db:"next_run_at"`
	NextRunStatus      types.NextRunStatus `json:"nextRunStatus" db:"next_run_status"`
	IsDeleted          bool                `json:"isDeleted" db:"is_deleted"`
	LastSyncedAt       time.Time           `json:"lastSyncedAt" db:"last_synced_at"`
	CreatedAt          time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time           `json:"updatedAt" db:"updated_at"`
}
