package flow

import (
	"testing"
	"time"

	"github.com/flowstate-coach/flowstate/internal/catalog"
	"github.com/flowstate-coach/flowstate/internal/models"
)

func dueTask(id string, priority models.PriorityLevel, due *time.Time) models.Task {
	return models.Task{ID: id, Title: id, Priority: priority, DueDate: due}
}

func TestTodaysTasksFiltersByDueDate(t *testing.T) {
	today := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)
	// Due later today: time of day must be ignored.
	tonight := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)

	tasks := []models.Task{
		dueTask("no-due", models.PriorityLow, nil),
		dueTask("overdue", models.PriorityLow, &yesterday),
		dueTask("tonight", models.PriorityLow, &tonight),
		dueTask("future", models.PriorityLow, &tomorrow),
	}
	got := TodaysTasks(tasks, today)
	want := map[string]bool{"no-due": true, "overdue": true, "tonight": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(got))
	}
	for _, tk := range got {
		if !want[tk.ID] {
			t.Errorf("unexpected task %s in today's view", tk.ID)
		}
	}
}

func TestTodaysTasksExcludesCompleted(t *testing.T) {
	today := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	done := dueTask("done", models.PriorityHigh, nil)
	done.Completed = true
	got := TodaysTasks([]models.Task{done, dueTask("open", models.PriorityLow, nil)}, today)
	if len(got) != 1 || got[0].ID != "open" {
		t.Errorf("completed tasks must be excluded, got %+v", got)
	}
}

func TestTodaysTasksPriorityOrder(t *testing.T) {
	today := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tasks := []models.Task{
		dueTask("low-1", models.PriorityLow, nil),
		dueTask("med-1", models.PriorityMedium, nil),
		dueTask("high-1", models.PriorityHigh, nil),
		dueTask("med-2", models.PriorityMedium, nil),
		dueTask("high-2", models.PriorityHigh, nil),
	}
	got := TodaysTasks(tasks, today)
	wantOrder := []string{"high-1", "high-2", "med-1", "med-2", "low-1"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d tasks, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s (sort must be stable within priority)", i, id, got[i].ID)
		}
	}
}

func TestSuggestedInterventionsUsesLastKnownState(t *testing.T) {
	s := Initial()
	s = Reduce(s, SetUserState{State: models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionAnxious}})
	got := SuggestedInterventions(s, catalog.Default())
	if len(got) == 0 {
		t.Fatal("expected suggestions for {low, anxious} from the default catalog")
	}
	for _, iv := range got {
		if !hasEnergy(iv.ForEnergy, models.EnergyLow) || !hasEmotion(iv.ForEmotions, models.EmotionAnxious) {
			t.Errorf("intervention %s does not match the check-in state", iv.ID)
		}
	}
}

func TestSuggestedInterventionsFallsBack(t *testing.T) {
	s := Initial()
	s = Reduce(s, SetUserState{State: models.UserState{Energy: models.EnergyHigh, Emotion: models.EmotionEager}})
	got := SuggestedInterventions(s, nil)
	if len(got) != 1 {
		t.Fatalf("SuggestedInterventions() with empty catalog returned %d entries, want 1 fallback", len(got))
	}
	if got[0].ID != "focus-session" {
		t.Errorf("fallback ID = %q, want focus-session", got[0].ID)
	}
}

func hasEnergy(levels []models.EnergyLevel, e models.EnergyLevel) bool {
	for _, l := range levels {
		if l == e {
			return true
		}
	}
	return false
}

func hasEmotion(states []models.EmotionalState, e models.EmotionalState) bool {
	for _, s := range states {
		if s == e {
			return true
		}
	}
	return false
}
