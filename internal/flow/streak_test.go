package flow

import (
	"testing"
	"time"

	"github.com/flowstate-coach/flowstate/internal/models"
)

func TestNextStreak(t *testing.T) {
	dayN := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		current     models.Streak
		completedAt time.Time
		wantCount   int
	}{
		{
			name:        "next day increments",
			current:     models.Streak{Count: 3, LastActiveDate: dayN},
			completedAt: dayN.AddDate(0, 0, 1),
			wantCount:   4,
		},
		{
			name:        "next day early morning still increments",
			current:     models.Streak{Count: 3, LastActiveDate: dayN},
			completedAt: time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC),
			wantCount:   4,
		},
		{
			name:        "two day gap resets to one",
			current:     models.Streak{Count: 7, LastActiveDate: dayN},
			completedAt: dayN.AddDate(0, 0, 2),
			wantCount:   1,
		},
		{
			name:        "long gap resets to one",
			current:     models.Streak{Count: 30, LastActiveDate: dayN},
			completedAt: dayN.AddDate(0, 1, 0),
			wantCount:   1,
		},
		{
			name:        "fresh record starts at one",
			current:     models.Streak{Count: 0, LastActiveDate: dayN.AddDate(0, 0, -5)},
			completedAt: dayN,
			wantCount:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStreak(tt.current, tt.completedAt)
			if got.Count != tt.wantCount {
				t.Errorf("NextStreak() count = %d, want %d", got.Count, tt.wantCount)
			}
			if !got.LastActiveDate.Equal(tt.completedAt) {
				t.Errorf("NextStreak() lastActive = %v, want %v", got.LastActiveDate, tt.completedAt)
			}
		})
	}
}

func TestNextStreakSameDayUnchanged(t *testing.T) {
	morning := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	cur := models.Streak{Count: 5, LastActiveDate: morning}
	got := NextStreak(cur, evening)
	if got != cur {
		t.Errorf("same-day completion must leave the streak unchanged, got %+v", got)
	}
}
