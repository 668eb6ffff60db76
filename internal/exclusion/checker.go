// Package exclusion evaluates blacklist rules that suppress outbound calls
// for scoped accounts and credentials.
package exclusion

import (
	"time"

	"github.com/adr-pipeline/internal/models"
	"github.com/adr-pipeline/internal/types"
)

// Key identifies the account/credential tuple being checked against the rules.
type Key struct {
	VendorCode        string
	ExternalAccountID string
	CredentialID      string
}

// Checker evaluates a fixed rule set, typically the active rules loaded once
// per pipeline step.
type Checker struct {
	rules []models.Exclusion
}

// NewChecker creates a checker over the given rules.
func NewChecker(rules []models.Exclusion) *Checker {
	return &Checker{rules: rules}
}

// IsExcluded reports whether any rule suppresses the given operation for the
// key at the given time.
func (c *Checker) IsExcluded(kind types.OperationKind, key Key, now time.Time) bool {
	for i := range c.rules {
		if Matches(&c.rules[i], kind, key, now) {
			return true
		}
	}
	return false
}

// Matches evaluates one exclusion rule. Every populated scoping field must
// equal the corresponding key field; nil scoping fields are wildcards. The
// rule must be active, cover the requested operation kind, and - if it has an
// effective window - contain now.
func Matches(rule *models.Exclusion, kind types.OperationKind, key Key, now time.Time) bool {
	if !rule.IsActive {
		return false
	}
	if !typeCovers(rule.ExclusionType, kind) {
		return false
	}
	if rule.VendorCode != nil && *rule.VendorCode != key.VendorCode {
		return false
	}
	if rule.ExternalAccountID != nil && *rule.ExternalAccountID != key.ExternalAccountID {
		return false
	}
	if rule.CredentialID != nil && *rule.CredentialID != key.CredentialID {
		return false
	}
	if rule.EffectiveFrom != nil && now.Before(*rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveTo != nil && now.After(*rule.EffectiveTo) {
		return false
	}
	return true
}

// typeCovers reports whether an exclusion type applies to an operation kind.
func typeCovers(t types.ExclusionType, kind types.OperationKind) bool {
	switch t {
	case types.ExclusionAll:
		return true
	case types.ExclusionDownload:
		return kind == types.OperationDownload
	case types.ExclusionCredentialCheck:
		return kind == types.OperationCredentialCheck
	default:
		return false
	}
}
