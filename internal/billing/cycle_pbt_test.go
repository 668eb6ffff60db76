package billing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/adr-pipeline/internal/types"
)

// TestWindowTilingProperties verifies that consecutive billing windows tile the
// timeline exactly: each window starts where the previous one ended and is
// strictly forward-moving, for every period type.
func TestWindowTilingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	base := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	periodTypes := []types.PeriodType{types.PeriodMonthly, types.PeriodQuarterly, types.PeriodCustom}

	properties.Property("windows tile without gaps or overlap", prop.ForAll(
		func(dayOffset int, periodIdx int, cycleDays int, chain int) bool {
			periodType := periodTypes[periodIdx%len(periodTypes)]
			lastEnd := base.AddDate(0, 0, dayOffset)

			for i := 0; i < chain%10+1; i++ {
				w, err := NextWindow(periodType, cycleDays, lastEnd)
				if err != nil {
					return false
				}
				if !w.Start.Equal(lastEnd) {
					return false
				}
				if !w.End.After(w.Start) {
					return false
				}
				lastEnd = w.End
			}
			return true
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 2),
		gen.IntRange(1, 120),
		gen.IntRange(0, 50),
	))

	properties.Property("custom window length equals cycle days", prop.ForAll(
		func(dayOffset int, cycleDays int) bool {
			lastEnd := base.AddDate(0, 0, dayOffset)
			w, err := NextWindow(types.PeriodCustom, cycleDays, lastEnd)
			if err != nil {
				return false
			}
			return w.End.Equal(lastEnd.AddDate(0, 0, cycleDays))
		},
		gen.IntRange(0, 3650),
		gen.IntRange(1, 365),
	))

	properties.TestingRun(t)
}
