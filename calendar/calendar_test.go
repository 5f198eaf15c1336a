package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekdaysInMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		want int
	}{
		{"september 2024", time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC), 21},
		{"october 2024", time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), 23},
		{"february 2024 leap", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 21},
		{"february 2026", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 20},
		{"last day of month", time.Date(2024, 10, 31, 23, 59, 0, 0, time.UTC), 23},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, WeekdaysInMonth(tt.in))
		})
	}
}

func TestFinancingWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      time.Time
		wantFrom string
		wantTo   string
	}{
		{"monday reaches back to friday", time.Date(2024, 9, 30, 1, 0, 0, 0, time.UTC), "2024-09-27", "2024-09-30"},
		{"thursday", time.Date(2024, 10, 3, 1, 0, 0, 0, time.UTC), "2024-10-02", "2024-10-03"},
		{"tuesday", time.Date(2024, 10, 1, 1, 0, 0, 0, time.UTC), "2024-09-30", "2024-10-01"},
		{"month boundary on monday", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "2024-06-28", "2024-07-01"},
		{"judged in utc", time.Date(2024, 10, 1, 8, 0, 0, 0, time.FixedZone("UTC+9", 9*3600)), "2024-09-27", "2024-09-30"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			from, to := FinancingWindow(tt.ref)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}
