// Package billing computes billing windows and due labels for vendor accounts.
package billing

import (
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/types"
)

// Window is one billing period, inclusive of Start and exclusive of End.
type Window struct {
	Start time.Time
	End   time.Time
}

// NextWindow computes the billing window that follows lastEnd for the given
// period type. Monthly and quarterly windows advance by calendar months so
// month-length differences are preserved; custom windows advance by a fixed
// day count.
func NextWindow(periodType types.PeriodType, cycleDays int, lastEnd time.Time) (Window, error) {
	var end time.Time

	switch periodType {
	case types.PeriodMonthly:
		end = lastEnd.AddDate(0, 1, 0)
	case types.PeriodQuarterly:
		end = lastEnd.AddDate(0, 3, 0)
	case types.PeriodCustom:
		if cycleDays <= 0 {
			return Window{}, fmt.Errorf("custom period requires a positive cycle length, got %d", cycleDays)
		}
		end = lastEnd.AddDate(0, 0, cycleDays)
	default:
		return Window{}, fmt.Errorf("unknown period type %q", periodType)
	}

	return Window{Start: lastEnd, End: end}, nil
}

// WindowEndingAt computes the billing window that closes at end. Used for
// accounts with no processed window yet, whose first due date anchors the
// window backwards.
func WindowEndingAt(periodType types.PeriodType, cycleDays int, end time.Time) (Window, error) {
	var start time.Time

	switch periodType {
	case types.PeriodMonthly:
		start = end.AddDate(0, -1, 0)
	case types.PeriodQuarterly:
		start = end.AddDate(0, -3, 0)
	case types.PeriodCustom:
		if cycleDays <= 0 {
			return Window{}, fmt.Errorf("custom period requires a positive cycle length, got %d", cycleDays)
		}
		start = end.AddDate(0, 0, -cycleDays)
	default:
		return Window{}, fmt.Errorf("unknown period type %q", periodType)
	}

	return Window{Start: start, End: end}, nil
}

// Classify labels how due an account is given its next run timestamp.
//
//	RunNow   when the run time has passed but is within the grace period
//	DueSoon  when the run time is within leadTime of now
//	Missing  when the run was expected more than grace ago; such accounts are
//	         excluded from job creation entirely and need manual attention
//	""       otherwise (not due)
func Classify(now, nextRunAt time.Time, leadTime, grace time.Duration) types.NextRunStatus {
	if now.Sub(nextRunAt) > grace {
		return types.NextRunMissing
	}
	if !now.Before(nextRunAt) {
		return types.NextRunNow
	}
	if nextRunAt.Sub(now) <= leadTime {
		return types.NextRunDueSoon
	}
	return types.NextRunNone
}

// IsDue reports whether the label selects the account for job creation.
// Missing accounts are deliberately excluded.
func IsDue(status types.NextRunStatus) bool {
	return status == types.NextRunNow || status == types.NextRunDueSoon
}
