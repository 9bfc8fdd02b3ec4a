// Package catalog holds the static intervention catalog and matching logic.
//
// Matching is a pure function: it has no side effects and returns the same
// ordered result for the same check-in state on every call.
package catalog

import (
	"log/slog"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// DefaultFocusDuration is the session length in minutes used when no catalog
// entry matches the user's check-in state.
const DefaultFocusDuration = 25

// interventions is the fixed catalog. Order is definition order and is the
// order suggestions are returned in.
var interventions = []models.Intervention{
	{
		ID:          "box-breathing",
		Title:       "Box breathing",
		Description: "Breathe in for 4 counts, hold for 4, out for 4, hold for 4. Repeat for two minutes to settle your nervous system before starting.",
		Type:        models.InterventionEmotion,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow, models.EnergyMedium},
		ForEmotions: []models.EmotionalState{models.EmotionAnxious, models.EmotionOverwhelmed},
		Duration:    2,
	},
	{
		ID:          "brain-dump",
		Title:       "Brain dump",
		Description: "Write every open loop on paper for five minutes. Getting thoughts out of your head frees working memory for the task in front of you.",
		Type:        models.InterventionCognition,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow, models.EnergyMedium, models.EnergyHigh},
		ForEmotions: []models.EmotionalState{models.EmotionAnxious, models.EmotionOverwhelmed},
		Duration:    5,
	},
	{
		ID:          "two-minute-start",
		Title:       "Two-minute start",
		Description: "Commit to working for just two minutes. Starting is the hardest part; momentum usually carries you past the timer.",
		Type:        models.InterventionBehavior,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow},
		ForEmotions: []models.EmotionalState{models.EmotionNeutral, models.EmotionAnxious},
		Duration:    2,
	},
	{
		ID:          "why-it-matters",
		Title:       "Connect to why it matters",
		Description: "Write one sentence about why finishing this task matters to you. Linking work to purpose raises motivation when energy is flat.",
		Type:        models.InterventionMotivation,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow, models.EnergyMedium},
		ForEmotions: []models.EmotionalState{models.EmotionNeutral},
		Duration:    3,
	},
	{
		ID:          "clear-the-desk",
		Title:       "Clear the desk",
		Description: "Remove everything from your workspace that is not needed for this task. A clean field of view reduces ambient distraction.",
		Type:        models.InterventionEnvironment,
		ForEnergy:   []models.EnergyLevel{models.EnergyMedium, models.EnergyHigh},
		ForEmotions: []models.EmotionalState{models.EmotionNeutral, models.EmotionEager},
		Duration:    3,
	},
	{
		ID:          "smallest-next-step",
		Title:       "Name the smallest next step",
		Description: "Break the task down until the next step takes under five minutes, then do only that step. Overwhelm shrinks when scope does.",
		Type:        models.InterventionCognition,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow, models.EnergyMedium},
		ForEmotions: []models.EmotionalState{models.EmotionOverwhelmed},
		Duration:    5,
	},
	{
		ID:          "energy-walk",
		Title:       "Five-minute walk",
		Description: "Take a brisk walk, ideally outside. Light movement raises alertness more reliably than another coffee.",
		Type:        models.InterventionBehavior,
		ForEnergy:   []models.EnergyLevel{models.EnergyLow},
		ForEmotions: []models.EmotionalState{models.EmotionNeutral, models.EmotionEager},
		Duration:    5,
	},
	{
		ID:          "worry-parking-lot",
		Title:       "Worry parking lot",
		Description: "Write the anxious thought down and schedule a specific time to deal with it later. Parked worries interrupt less.",
		Type:        models.InterventionEmotion,
		ForEnergy:   []models.EnergyLevel{models.EnergyHigh},
		ForEmotions: []models.EmotionalState{models.EmotionAnxious},
		Duration:    3,
	},
	{
		ID:          "sprint-setup",
		Title:       "Sprint setup",
		Description: "Set a visible timer, silence notifications, and pick a single finish line for this session. Channel high energy into one outcome.",
		Type:        models.InterventionEnvironment,
		ForEnergy:   []models.EnergyLevel{models.EnergyHigh},
		ForEmotions: []models.EmotionalState{models.EmotionEager},
		Duration:    2,
	},
	{
		ID:          "triage-three",
		Title:       "Triage to three",
		Description: "List everything competing for attention, cross out all but three items, then pick one. Deciding is the intervention.",
		Type:        models.InterventionCognition,
		ForEnergy:   []models.EnergyLevel{models.EnergyHigh},
		ForEmotions: []models.EmotionalState{models.EmotionOverwhelmed},
		Duration:    4,
	},
}

// Default returns the built-in intervention catalog in definition order.
// The returned slice is a copy; callers may not mutate catalog entries.
func Default() []models.Intervention {
	out := make([]models.Intervention, len(interventions))
	copy(out, interventions)
	return out
}

// Match returns the interventions applicable to the given check-in state.
// An entry matches only when the state's energy is in ForEnergy AND the
// state's emotion is in ForEmotions. Order is catalog order. An empty result
// is not an error; callers fall back to a generic focus session.
func Match(catalog []models.Intervention, state models.UserState) []models.Intervention {
	var matched []models.Intervention
	for _, iv := range catalog {
		if containsEnergy(iv.ForEnergy, state.Energy) && containsEmotion(iv.ForEmotions, state.Emotion) {
			matched = append(matched, iv)
		}
	}
	slog.Debug("catalog.Match evaluated", "energy", state.Energy, "emotion", state.Emotion, "matched", len(matched))
	return matched
}

// Fallback returns a generic focus session intervention for states no catalog
// entry covers. It always applies to the given state.
func Fallback(state models.UserState) models.Intervention {
	return models.Intervention{
		ID:          "focus-session",
		Title:       "Standard focus session",
		Description: "Pick one task, set a timer, and work on it without switching until the timer ends.",
		Type:        models.InterventionBehavior,
		ForEnergy:   []models.EnergyLevel{state.Energy},
		ForEmotions: []models.EmotionalState{state.Emotion},
		Duration:    DefaultFocusDuration,
	}
}

func containsEnergy(levels []models.EnergyLevel, e models.EnergyLevel) bool {
	for _, l := range levels {
		if l == e {
			return true
		}
	}
	return false
}

func containsEmotion(states []models.EmotionalState, e models.EmotionalState) bool {
	for _, s := range states {
		if s == e {
			return true
		}
	}
	return false
}
