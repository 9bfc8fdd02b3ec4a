package flow

import (
	"time"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// NextStreak applies the day-boundary streak rule to a completed session.
// Completing a session exactly one calendar day after the last active date
// increments the count; a gap of more than one day resets it to 1; a
// same-day completion leaves the streak unchanged. Calendar days are compared
// in completedAt's location.
func NextStreak(cur models.Streak, completedAt time.Time) models.Streak {
	today := startOfDay(completedAt)
	lastActive := startOfDay(cur.LastActiveDate.In(completedAt.Location()))

	if today.Equal(lastActive) {
		return cur
	}

	next := models.Streak{LastActiveDate: completedAt}
	if today.Equal(lastActive.AddDate(0, 0, 1)) {
		next.Count = cur.Count + 1
	} else {
		next.Count = 1
	}
	return next
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
