package flow

import (
	"sort"
	"time"

	"github.com/flowstate-coach/flowstate/internal/catalog"
	"github.com/flowstate-coach/flowstate/internal/models"
)

// priorityRank orders priorities for the dashboard; lower ranks sort first.
var priorityRank = map[models.PriorityLevel]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// TodaysTasks filters the active tasks to those with no due date or a due date
// on or before today, compared at day granularity. Completed tasks are
// excluded. The result is ordered high, medium, low priority, preserving the
// original relative order within equal priority.
func TodaysTasks(tasks []models.Task, today time.Time) []models.Task {
	endOfToday := endOfDay(today)
	var due []models.Task
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if t.DueDate != nil && t.DueDate.After(endOfToday) {
			continue
		}
		due = append(due, t)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return priorityRank[due[i].Priority] < priorityRank[due[j].Priority]
	})
	return due
}

// SuggestedInterventions returns the catalog entries applicable to the
// last-known check-in state, in catalog order. When nothing matches, the
// generic focus session is suggested instead.
func SuggestedInterventions(s State, entries []models.Intervention) []models.Intervention {
	matched := catalog.Match(entries, s.UserState)
	if len(matched) == 0 {
		return []models.Intervention{catalog.Fallback(s.UserState)}
	}
	return matched
}

// endOfDay returns the last instant of t's calendar day in t's location, so
// that due-date comparison ignores time of day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
