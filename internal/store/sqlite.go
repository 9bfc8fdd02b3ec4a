package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// ListTasks returns the user's active tasks in creation order with sessions attached.
func (s *SQLiteStore) ListTasks(userID string) ([]models.Task, error) {
	return s.listTasks(userID, false)
}

// ListCompletedTasks returns the user's completed tasks in creation order with sessions attached.
func (s *SQLiteStore) ListCompletedTasks(userID string) ([]models.Task, error) {
	return s.listTasks(userID, true)
}

func (s *SQLiteStore) listTasks(userID string, completed bool) ([]models.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, title, description, priority, due_date, created_at, completed
		 FROM tasks WHERE user_id = ? AND completed = ? ORDER BY created_at, id`,
		userID, completed)
	if err != nil {
		slog.Error("SQLiteStore listTasks query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			slog.Error("SQLiteStore listTasks scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore listTasks rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	for i := range tasks {
		sessions, err := s.ListSessionsByTask(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Sessions = sessions
	}
	slog.Debug("SQLiteStore listTasks succeeded", "userID", userID, "completed", completed, "count", len(tasks))
	return tasks, nil
}

// CreateTask inserts a new task, assigning its id and creation timestamp.
func (s *SQLiteStore) CreateTask(draft models.TaskDraft, userID string) (models.Task, error) {
	task := models.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   time.Now(),
		Sessions:    []models.Session{},
	}
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, user_id, title, description, priority, due_date, created_at, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, userID, task.Title, nilIfEmpty(task.Description), task.Priority,
		nilIfNilTime(task.DueDate), task.CreatedAt, false)
	if err != nil {
		slog.Error("SQLiteStore CreateTask failed", "error", err, "userID", userID)
		return models.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	slog.Debug("SQLiteStore CreateTask succeeded", "taskID", task.ID, "userID", userID)
	return task, nil
}

// UpdateTask replaces the stored task fields and returns the stored copy.
func (s *SQLiteStore) UpdateTask(task models.Task) (models.Task, error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, priority = ?, due_date = ?, completed = ? WHERE id = ?`,
		task.Title, nilIfEmpty(task.Description), task.Priority,
		nilIfNilTime(task.DueDate), task.Completed, task.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateTask failed", "error", err, "taskID", task.ID)
		return models.Task{}, fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, ErrNotFound
	}
	row := s.db.QueryRow(
		`SELECT id, title, description, priority, due_date, created_at, completed FROM tasks WHERE id = ?`,
		task.ID)
	stored, err := scanTask(row)
	if err != nil {
		slog.Error("SQLiteStore UpdateTask readback failed", "error", err, "taskID", task.ID)
		return models.Task{}, fmt.Errorf("failed to read back task %s: %w", task.ID, err)
	}
	stored.Sessions, err = s.ListSessionsByTask(task.ID)
	if err != nil {
		return models.Task{}, err
	}
	slog.Debug("SQLiteStore UpdateTask succeeded", "taskID", task.ID)
	return stored, nil
}

// DeleteTask removes the task permanently.
func (s *SQLiteStore) DeleteTask(taskID string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		slog.Error("SQLiteStore DeleteTask failed", "error", err, "taskID", taskID)
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	slog.Debug("SQLiteStore DeleteTask succeeded", "taskID", taskID)
	return nil
}

// StartSession creates a session against an existing, still-active task,
// assigning its id and start time.
func (s *SQLiteStore) StartSession(taskID, userID string, state models.UserState, intervention *models.Intervention) (models.Session, error) {
	var completed bool
	err := s.db.QueryRow(`SELECT completed FROM tasks WHERE id = ?`, taskID).Scan(&completed)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore StartSession task lookup failed", "error", err, "taskID", taskID)
		return models.Session{}, fmt.Errorf("failed to look up task %s: %w", taskID, err)
	}
	if completed {
		return models.Session{}, ErrTaskCompleted
	}

	sess := models.Session{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		StartTime: time.Now(),
		State:     state,
	}
	if intervention != nil {
		copied := *intervention
		sess.SelectedIntervention = &copied
	}
	stateJSON, err := marshalJSONColumn(sess.State)
	if err != nil {
		return models.Session{}, err
	}
	interventionJSON, err := marshalJSONColumn(sess.SelectedIntervention)
	if err != nil {
		return models.Session{}, err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, task_id, user_id, start_time, state, selected_intervention, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, taskID, userID, sess.StartTime, stateJSON, interventionJSON, false)
	if err != nil {
		slog.Error("SQLiteStore StartSession insert failed", "error", err, "taskID", taskID)
		return models.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	slog.Debug("SQLiteStore StartSession succeeded", "sessionID", sess.ID, "taskID", taskID)
	return sess, nil
}

// EndSession terminates a session exactly once, computing the duration as
// floored elapsed wall-clock minutes from start.
func (s *SQLiteStore) EndSession(sessionID string, feedback models.SessionFeedback) (models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, task_id, start_time, end_time, duration, state, selected_intervention, completed, feedback
		 FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore EndSession lookup failed", "error", err, "sessionID", sessionID)
		return models.Session{}, fmt.Errorf("failed to look up session %s: %w", sessionID, err)
	}
	if sess.Completed {
		return models.Session{}, ErrSessionEnded
	}
	var taskCompleted bool
	if err := s.db.QueryRow(`SELECT completed FROM tasks WHERE id = ?`, sess.TaskID).Scan(&taskCompleted); err == nil && taskCompleted {
		return models.Session{}, ErrTaskCompleted
	}

	end := time.Now()
	duration := int(end.Sub(sess.StartTime).Minutes())
	feedbackJSON, err := marshalJSONColumn(&feedback)
	if err != nil {
		return models.Session{}, err
	}
	_, err = s.db.Exec(
		`UPDATE sessions SET end_time = ?, duration = ?, completed = ?, feedback = ? WHERE id = ?`,
		end, duration, true, feedbackJSON, sessionID)
	if err != nil {
		slog.Error("SQLiteStore EndSession update failed", "error", err, "sessionID", sessionID)
		return models.Session{}, fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	sess.EndTime = &end
	sess.Duration = duration
	sess.Completed = true
	fb := feedback
	sess.Feedback = &fb
	slog.Debug("SQLiteStore EndSession succeeded", "sessionID", sessionID, "duration", duration)
	return sess, nil
}

// ListSessions returns the user's sessions in start order.
func (s *SQLiteStore) ListSessions(userID string) ([]models.Session, error) {
	return s.querySessions(
		`SELECT id, task_id, start_time, end_time, duration, state, selected_intervention, completed, feedback
		 FROM sessions WHERE user_id = ? ORDER BY start_time, id`, userID)
}

// ListSessionsByTask returns a task's sessions in start order.
func (s *SQLiteStore) ListSessionsByTask(taskID string) ([]models.Session, error) {
	return s.querySessions(
		`SELECT id, task_id, start_time, end_time, duration, state, selected_intervention, completed, feedback
		 FROM sessions WHERE task_id = ? ORDER BY start_time, id`, taskID)
}

func (s *SQLiteStore) querySessions(query, arg string) ([]models.Session, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		slog.Error("SQLiteStore querySessions failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			slog.Error("SQLiteStore querySessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// GetStreak returns the user's streak record, or ErrNotFound if none exists.
func (s *SQLiteStore) GetStreak(userID string) (models.Streak, error) {
	var streak models.Streak
	err := s.db.QueryRow(
		`SELECT count, last_active_date FROM user_streaks WHERE user_id = ?`, userID).
		Scan(&streak.Count, &streak.LastActiveDate)
	if err == sql.ErrNoRows {
		return models.Streak{}, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetStreak failed", "error", err, "userID", userID)
		return models.Streak{}, fmt.Errorf("failed to query streak: %w", err)
	}
	return streak, nil
}

// InitializeStreak creates a zero-count streak record for the user.
func (s *SQLiteStore) InitializeStreak(userID string) (models.Streak, error) {
	streak := models.Streak{Count: 0, LastActiveDate: time.Now()}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO user_streaks (user_id, count, last_active_date) VALUES (?, ?, ?)`,
		userID, streak.Count, streak.LastActiveDate)
	if err != nil {
		slog.Error("SQLiteStore InitializeStreak failed", "error", err, "userID", userID)
		return models.Streak{}, fmt.Errorf("failed to initialize streak: %w", err)
	}
	return streak, nil
}

// UpdateStreak sets the count and stamps the last active date.
func (s *SQLiteStore) UpdateStreak(userID string, count int) error {
	res, err := s.db.Exec(
		`UPDATE user_streaks SET count = ?, last_active_date = ? WHERE user_id = ?`,
		count, time.Now(), userID)
	if err != nil {
		slog.Error("SQLiteStore UpdateStreak failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update streak: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser stores a new identity with its password hash.
func (s *SQLiteStore) CreateUser(email, passwordHash, name string) (models.User, error) {
	now := time.Now()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Name:        name,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, name, password_hash, created_at, last_login_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, passwordHash, user.CreatedAt, user.LastLoginAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, ErrEmailTaken
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err, "email", email)
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "userID", user.ID)
	return user, nil
}

// GetUserByEmail returns the identity and its password hash for verification.
func (s *SQLiteStore) GetUserByEmail(email string) (models.User, string, error) {
	var user models.User
	var hash string
	err := s.db.QueryRow(
		`SELECT id, email, name, password_hash, created_at, last_login_at FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Email, &user.Name, &hash, &user.CreatedAt, &user.LastLoginAt)
	if err == sql.ErrNoRows {
		return models.User{}, "", ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByEmail failed", "error", err)
		return models.User{}, "", fmt.Errorf("failed to query user: %w", err)
	}
	return user, hash, nil
}

// GetUserByID returns the identity.
func (s *SQLiteStore) GetUserByID(id string) (models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		`SELECT id, email, name, created_at, last_login_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.LastLoginAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByID failed", "error", err, "userID", id)
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// TouchLastLogin stamps the user's last login time.
func (s *SQLiteStore) TouchLastLogin(userID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET last_login_at = ? WHERE id = ?`, at, userID)
	if err != nil {
		slog.Error("SQLiteStore TouchLastLogin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
