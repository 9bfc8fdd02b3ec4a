// Package models defines the core data structures for FlowState.
//
// It includes the user's check-in state, tasks, focus sessions, interventions,
// and the streak record, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// EnergyLevel describes the user's self-reported energy at check-in time.
type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

// EmotionalState describes the user's self-reported emotional state at check-in time.
type EmotionalState string

const (
	EmotionEager       EmotionalState = "eager"
	EmotionNeutral     EmotionalState = "neutral"
	EmotionAnxious     EmotionalState = "anxious"
	EmotionOverwhelmed EmotionalState = "overwhelmed"
)

// PriorityLevel orders tasks on the dashboard; high sorts first.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
)

// InterventionType tags a catalog entry for presentation purposes only;
// the core never branches on it.
type InterventionType string

const (
	InterventionEmotion     InterventionType = "emotion"
	InterventionCognition   InterventionType = "cognition"
	InterventionMotivation  InterventionType = "motivation"
	InterventionBehavior    InterventionType = "behavior"
	InterventionEnvironment InterventionType = "environment"
)

// Difficulty is the user's post-session rating of how the session went.
type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyOkay Difficulty = "okay"
	DifficultyHard Difficulty = "hard"
)

// Validation constants for input validation
const (
	// MaxTaskTitleLength defines the maximum allowed length for a task title
	MaxTaskTitleLength = 200
	// MaxTaskDescriptionLength defines the maximum allowed length for a task description
	MaxTaskDescriptionLength = 2000
	// MaxFeedbackNotesLength defines the maximum allowed length for session feedback notes
	MaxFeedbackNotesLength = 2000
	// MaxBlockingThoughtsLength defines the maximum allowed length for check-in free text
	MaxBlockingThoughtsLength = 1000
)

// Error variables for better error handling and testability
var (
	ErrEmptyTaskTitle          = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong        = errors.New("task title exceeds maximum length")
	ErrTaskDescriptionTooLong  = errors.New("task description exceeds maximum length")
	ErrInvalidPriority         = errors.New("invalid priority level")
	ErrInvalidEnergyLevel      = errors.New("invalid energy level")
	ErrInvalidEmotionalState   = errors.New("invalid emotional state")
	ErrInvalidDifficulty       = errors.New("invalid difficulty rating")
	ErrFeedbackNotesTooLong    = errors.New("feedback notes exceed maximum length")
	ErrBlockingThoughtsTooLong = errors.New("blocking thoughts exceed maximum length")
)

// IsValidEnergyLevel checks if the given energy level is supported.
func IsValidEnergyLevel(e EnergyLevel) bool {
	switch e {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return true
	default:
		return false
	}
}

// IsValidEmotionalState checks if the given emotional state is supported.
func IsValidEmotionalState(e EmotionalState) bool {
	switch e {
	case EmotionEager, EmotionNeutral, EmotionAnxious, EmotionOverwhelmed:
		return true
	default:
		return false
	}
}

// IsValidPriority checks if the given priority level is supported.
func IsValidPriority(p PriorityLevel) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// IsValidDifficulty checks if the given difficulty rating is supported.
func IsValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyOkay, DifficultyHard:
		return true
	default:
		return false
	}
}

// UserState is a snapshot of the user's self-reported condition, produced once
// per check-in and never mutated afterwards.
type UserState struct {
	Energy           EnergyLevel    `json:"energy"`
	Emotion          EmotionalState `json:"emotion"`
	BlockingThoughts string         `json:"blocking_thoughts,omitempty"`
}

// Validate checks a check-in snapshot before it reaches the state machine.
func (s UserState) Validate() error {
	if !IsValidEnergyLevel(s.Energy) {
		return ErrInvalidEnergyLevel
	}
	if !IsValidEmotionalState(s.Emotion) {
		return ErrInvalidEmotionalState
	}
	if len(s.BlockingThoughts) > MaxBlockingThoughtsLength {
		return ErrBlockingThoughtsTooLong
	}
	return nil
}

// Intervention is a catalog-defined coping or productivity suggestion with
// applicability conditions. Catalog entries are never mutated at runtime;
// selecting one copies it into the session.
type Intervention struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        InterventionType `json:"type"`
	ForEnergy   []EnergyLevel    `json:"for_energy"`
	ForEmotions []EmotionalState `json:"for_emotions"`
	Duration    int              `json:"duration"` // minutes
}

// SessionFeedback is the user's review submitted when a session ends.
type SessionFeedback struct {
	Difficulty   Difficulty `json:"difficulty"`
	ProgressMade bool       `json:"progress_made"`
	Notes        string     `json:"notes,omitempty"`
}

// Validate checks a feedback record before it is submitted to the session store.
func (f SessionFeedback) Validate() error {
	if !IsValidDifficulty(f.Difficulty) {
		return ErrInvalidDifficulty
	}
	if len(f.Notes) > MaxFeedbackNotesLength {
		return ErrFeedbackNotesTooLong
	}
	return nil
}

// Session represents one timed focus-work attempt against exactly one task.
// A session transitions start to end exactly once and is never reopened.
type Session struct {
	ID                   string           `json:"id"`
	TaskID               string           `json:"task_id"`
	StartTime            time.Time        `json:"start_time"`
	EndTime              *time.Time       `json:"end_time,omitempty"`
	Duration             int              `json:"duration,omitempty"` // minutes, store-computed on end
	State                UserState        `json:"state"`
	SelectedIntervention *Intervention    `json:"selected_intervention,omitempty"`
	Completed            bool             `json:"completed"`
	Feedback             *SessionFeedback `json:"feedback,omitempty"`
}

// Task is a unit of work the user wants to focus on. Its session sequence is
// append-only and chronological; a completed task accepts no further sessions.
type Task struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Priority    PriorityLevel `json:"priority"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Completed   bool          `json:"completed"`
	Sessions    []Session     `json:"sessions"`
}

// TaskDraft carries user-supplied task fields before the store assigns
// canonical identity and timestamps.
type TaskDraft struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Priority    PriorityLevel `json:"priority"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
}

// Validate checks a draft before it is sent to the task store.
func (d TaskDraft) Validate() error {
	if d.Title == "" {
		return ErrEmptyTaskTitle
	}
	if len(d.Title) > MaxTaskTitleLength {
		return ErrTaskTitleTooLong
	}
	if len(d.Description) > MaxTaskDescriptionLength {
		return ErrTaskDescriptionTooLong
	}
	if !IsValidPriority(d.Priority) {
		return ErrInvalidPriority
	}
	return nil
}

// Streak records consecutive days with at least one completed session.
type Streak struct {
	Count          int       `json:"count"`
	LastActiveDate time.Time `json:"last_active_date"`
}

// User is the authenticated identity plus its streak record.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
	Streak      Streak    `json:"streak"`
}
