package models

import (
	"time"

	"github.com/adr-pipeline/internal/types"
)

// Exclusion is a blacklist entry suppressing credential checks and/or downloads
// for a scoped account or credential. Nil scoping fields act as wildcards.
type Exclusion struct {
	ExclusionID       string              `json:"exclusionId" db:"exclusion_id"`
	VendorCode        *string             `json:"vendorCode,omitempty" db:"vendor_code"`
	ExternalAccountID *string             `json:"externalAccountId,omitempty" db:"external_account_id"`
	CredentialID      *string             `json:"credentialId,omitempty" db:"credential_id"`
	ExclusionType     types.ExclusionType `json:"exclusionType" db:"exclusion_type"`
	EffectiveFrom     *time.Time          `json:"effectiveFrom,omitempty" db:"effective_from"`
	EffectiveTo       *time.Time          `json:"effectiveTo,omitempty" db:"effective_to"`
	IsActive          bool                `json:"isActive" db:"is_active"`
	Reason            *string             `json:"reason,omitempty" db:"reason"`
	CreatedAt         time.Time           `json:"createdAt" db:"created_at"`
}
