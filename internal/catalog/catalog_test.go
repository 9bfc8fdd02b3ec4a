package catalog

import (
	"reflect"
	"testing"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// testCatalog mirrors the two-entry scenario used across matching tests:
// A matches only {low, anxious}, B matches only {medium, neutral}.
var testCatalog = []models.Intervention{
	{
		ID:          "a",
		Title:       "A",
		Type:        models.InterventionEmotion,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow},
		ForEmotions: []models.EmotionalState{models.EmotionAnxious},
	},
	{
		ID:          "b",
		Title:       "B",
		Type:        models.InterventionCognition,
		ForEnergy:   []models.EnergyLevel{models.EnergyMedium},
		ForEmotions: []models.EmotionalState{models.EmotionNeutral},
	},
}

func TestMatchRequiresBothAxes(t *testing.T) {
	tests := []struct {
		name    string
		state   models.UserState
		wantIDs []string
	}{
		{"low anxious matches A", models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionAnxious}, []string{"a"}},
		{"medium neutral matches B", models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}, []string{"b"}},
		{"high eager matches nothing", models.UserState{Energy: models.EnergyHigh, Emotion: models.EmotionEager}, nil},
		{"energy matches but emotion does not", models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionNeutral}, nil},
		{"emotion matches but energy does not", models.UserState{Energy: models.EnergyHigh, Emotion: models.EmotionAnxious}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(testCatalog, tt.state)
			var gotIDs []string
			for _, iv := range got {
				gotIDs = append(gotIDs, iv.ID)
			}
			if !reflect.DeepEqual(gotIDs, tt.wantIDs) {
				t.Errorf("Match() ids = %v, want %v", gotIDs, tt.wantIDs)
			}
		})
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	state := models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionAnxious}
	first := Match(Default(), state)
	for i := 0; i < 5; i++ {
		again := Match(Default(), state)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Match() not deterministic: run %d differs", i)
		}
	}
}

func TestMatchPreservesCatalogOrder(t *testing.T) {
	full := Default()
	state := models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionAnxious}
	matched := Match(full, state)
	if len(matched) < 2 {
		t.Fatalf("expected at least two matches from the default catalog, got %d", len(matched))
	}
	// Matched entries must appear in the same relative order as the catalog.
	pos := map[string]int{}
	for i, iv := range full {
		pos[iv.ID] = i
	}
	for i := 1; i < len(matched); i++ {
		if pos[matched[i-1].ID] > pos[matched[i].ID] {
			t.Errorf("matched order violates catalog order: %s before %s", matched[i-1].ID, matched[i].ID)
		}
	}
}

func TestMatchResultIsSubsetOfCatalog(t *testing.T) {
	full := Default()
	known := map[string]bool{}
	for _, iv := range full {
		known[iv.ID] = true
	}
	energies := []models.EnergyLevel{models.EnergyLow, models.EnergyMedium, models.EnergyHigh}
	emotions := []models.EmotionalState{models.EmotionEager, models.EmotionNeutral, models.EmotionAnxious, models.EmotionOverwhelmed}
	for _, en := range energies {
		for _, em := range emotions {
			for _, iv := range Match(full, models.UserState{Energy: en, Emotion: em}) {
				if !known[iv.ID] {
					t.Errorf("Match() returned %q which is not in the catalog", iv.ID)
				}
				if !containsEnergy(iv.ForEnergy, en) || !containsEmotion(iv.ForEmotions, em) {
					t.Errorf("Match() returned %q which does not satisfy {%s,%s}", iv.ID, en, em)
				}
			}
		}
	}
}

func TestFallbackAppliesToState(t *testing.T) {
	state := models.UserState{Energy: models.EnergyLow, Emotion: models.EmotionOverwhelmed}
	fb := Fallback(state)
	if fb.ID != "focus-session" {
		t.Errorf("Fallback() ID = %q, want focus-session", fb.ID)
	}
	if fb.Duration != DefaultFocusDuration {
		t.Errorf("Fallback() Duration = %d, want %d", fb.Duration, DefaultFocusDuration)
	}
	if got := Match([]models.Intervention{fb}, state); len(got) != 1 {
		t.Errorf("Fallback() does not match the state it was built for")
	}
}

func TestDefaultReturnsCopy(t *testing.T) {
	a := Default()
	a[0].Title = "mutated"
	b := Default()
	if b[0].Title == "mutated" {
		t.Error("Default() must return a copy, not the underlying catalog")
	}
}
