package billing

import (
	"testing"
	"time"

	"github.com/adr-pipeline/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextWindow(t *testing.T) {
	tests := []struct {
		name       string
		periodType types.PeriodType
		cycleDays  int
		lastEnd    time.Time
		wantEnd    time.Time
		wantErr    bool
	}{
		{
			name:       "monthly advances one calendar month",
			periodType: types.PeriodMonthly,
			lastEnd:    date(2026, time.January, 15),
			wantEnd:    date(2026, time.February, 15),
		},
		{
			name:       "monthly handles short months",
			periodType: types.PeriodMonthly,
			lastEnd:    date(2026, time.January, 31),
			wantEnd:    date(2026, time.March, 3), // Jan 31 + 1 month normalizes past February
		},
		{
			name:       "quarterly advances three months",
			periodType: types.PeriodQuarterly,
			lastEnd:    date(2026, time.March, 1),
			wantEnd:    date(2026, time.June, 1),
		},
		{
			name:       "custom advances by day count",
			periodType: types.PeriodCustom,
			cycleDays:  45,
			lastEnd:    date(2026, time.January, 1),
			wantEnd:    date(2026, time.February, 15),
		},
		{
			name:       "custom with zero cycle length fails",
			periodType: types.PeriodCustom,
			cycleDays:  0,
			lastEnd:    date(2026, time.January, 1),
			wantErr:    true,
		},
		{
			name:       "unknown period type fails",
			periodType: types.PeriodType("weekly"),
			lastEnd:    date(2026, time.January, 1),
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NextWindow(tt.periodType, tt.cycleDays, tt.lastEnd)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NextWindow() error = %v", err)
			}
			if !w.Start.Equal(tt.lastEnd) {
				t.Errorf("window start = %v, want %v", w.Start, tt.lastEnd)
			}
			if !w.End.Equal(tt.wantEnd) {
				t.Errorf("window end = %v, want %v", w.End, tt.wantEnd)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	now := date(2026, time.June, 15)
	leadTime := 7 * 24 * time.Hour
	grace := 14 * 24 * time.Hour

	tests := []struct {
		name      string
		nextRunAt time.Time
		want      types.NextRunStatus
	}{
		{"past due within grace is RunNow", now.AddDate(0, 0, -3), types.NextRunNow},
		{"exactly now is RunNow", now, types.NextRunNow},
		{"due within lead time is DueSoon", now.AddDate(0, 0, 5), types.NextRunDueSoon},
		{"exactly at lead time boundary is DueSoon", now.Add(leadTime), types.NextRunDueSoon},
		{"far in the future is not due", now.AddDate(0, 0, 30), types.NextRunNone},
		{"skipped past grace is Missing", now.AddDate(0, 0, -20), types.NextRunMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(now, tt.nextRunAt, leadTime, grace)
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsDue(t *testing.T) {
	if !IsDue(types.NextRunNow) || !IsDue(types.NextRunDueSoon) {
		t.Error("RunNow and DueSoon must select an account for job creation")
	}
	if IsDue(types.NextRunMissing) {
		t.Error("Missing accounts must never be selected for job creation")
	}
	if IsDue(types.NextRunNone) {
		t.Error("accounts that are not due must not be selected")
	}
}
