// Package store provides storage backends for FlowState.
//
// It defines the persistence contracts the controller depends on (tasks,
// sessions, streaks, users) and ships an in-memory reference implementation
// alongside SQLite and PostgreSQL backends. The session store is the sole
// authority for computing session duration.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use URL or key=value forms; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Error variables shared by all backends.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken indicates a user with the given email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTaskCompleted indicates an operation that requires an active task
	// was attempted against a completed one.
	ErrTaskCompleted = errors.New("task is already completed")
	// ErrSessionEnded indicates the session has already been terminated;
	// sessions are never reopened.
	ErrSessionEnded = errors.New("session already ended")
)

// TaskStore persists tasks. Create assigns the canonical id and creation
// timestamp; callers never supply identifiers.
type TaskStore interface {
	ListTasks(userID string) ([]models.Task, error)
	ListCompletedTasks(userID string) ([]models.Task, error)
	CreateTask(draft models.TaskDraft, userID string) (models.Task, error)
	UpdateTask(task models.Task) (models.Task, error)
	DeleteTask(taskID string) error
}

// SessionStore persists focus sessions. StartSession assigns the id and start
// time; EndSession computes the end time and the duration as floored elapsed
// wall-clock minutes.
type SessionStore interface {
	StartSession(taskID, userID string, state models.UserState, intervention *models.Intervention) (models.Session, error)
	EndSession(sessionID string, feedback models.SessionFeedback) (models.Session, error)
	ListSessions(userID string) ([]models.Session, error)
	ListSessionsByTask(taskID string) ([]models.Session, error)
}

// StreakStore persists the per-user streak record. GetStreak returns
// ErrNotFound when no record exists; callers initialize lazily.
type StreakStore interface {
	GetStreak(userID string) (models.Streak, error)
	InitializeStreak(userID string) (models.Streak, error)
	UpdateStreak(userID string, count int) error
}

// UserStore persists identities and credentials. The password hash never
// leaves this layer except through GetUserByEmail for verification.
type UserStore interface {
	CreateUser(email, passwordHash, name string) (models.User, error)
	GetUserByEmail(email string) (models.User, string, error)
	GetUserByID(id string) (models.User, error)
	TouchLastLogin(userID string, at time.Time) error
}

// Store combines all persistence contracts implemented by each backend.
type Store interface {
	TaskStore
	SessionStore
	StreakStore
	UserStore
	Close() error
}
