package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowstate-coach/flowstate/internal/auth"
	"github.com/flowstate-coach/flowstate/internal/models"
	"github.com/flowstate-coach/flowstate/internal/store"
)

// Precondition errors surfaced to callers when an intent cannot run. The
// reducer itself never fails; these exist so user-initiated intents produce a
// visible notice instead of a silent no-op.
var (
	ErrNotLoggedIn       = errors.New("no user is logged in")
	ErrNoCurrentTask     = errors.New("no current task is selected")
	ErrNoActiveSession   = errors.New("no session is active")
	ErrSessionInProgress = errors.New("a session is already active")
	ErrTaskNotFound      = errors.New("task not found")
)

// Controller orchestrates user intents across the reducer and the persistence
// collaborators. It owns the in-memory state; all mutation goes through
// Reduce, and the reducer runs only after the corresponding collaborator call
// succeeded, so a failed persistence round-trip leaves state untouched.
//
// Intents are serialized with a mutex: each mutating intent completes its
// store round-trip and applies its transition before the next may begin.
// This is the explicit answer to the stale-response race: last request wins,
// and a response can never be applied after a newer intent has started.
type Controller struct {
	tasks    store.TaskStore
	sessions store.SessionStore
	streaks  store.StreakStore
	identity auth.Identity
	catalog  []models.Intervention

	mu    sync.Mutex
	state State

	unsubscribe func()
	done        chan struct{}
}

// NewController creates a controller over the given collaborators. Call Start
// to subscribe to the auth stream and Close to tear the subscription down.
func NewController(tasks store.TaskStore, sessions store.SessionStore, streaks store.StreakStore, identity auth.Identity, catalog []models.Intervention) *Controller {
	return &Controller{
		tasks:    tasks,
		sessions: sessions,
		streaks:  streaks,
		identity: identity,
		catalog:  catalog,
		state:    Initial(),
	}
}

// Start restores any existing identity session, subscribes to the auth-state
// stream, and launches the event loop. The loop stops when ctx is cancelled
// or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	slog.Debug("Controller.Start: starting")
	user, err := c.identity.CurrentUser()
	if err != nil {
		slog.Error("Controller.Start: failed to restore session", "error", err)
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if user != nil {
		c.mu.Lock()
		c.state = Reduce(c.state, SetUser{User: user})
		if err := c.hydrateLocked(user.ID); err != nil {
			c.mu.Unlock()
			return err
		}
		c.mu.Unlock()
	}

	events, unsubscribe := c.identity.Subscribe()
	c.unsubscribe = unsubscribe
	c.done = make(chan struct{})
	go c.eventLoop(ctx, events)
	return nil
}

// Close unsubscribes from the auth stream and waits for the event loop to exit.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.done != nil {
		<-c.done
	}
	slog.Debug("Controller.Close: stopped")
}

func (c *Controller) eventLoop(ctx context.Context, events <-chan auth.Event) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleAuthEvent(ev)
		}
	}
}

// handleAuthEvent reflects identity changes arriving outside a direct intent,
// such as a logout initiated by another surface.
func (c *Controller) handleAuthEvent(ev auth.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.User == nil {
		slog.Debug("Controller.handleAuthEvent: user cleared")
		c.state = Reduce(c.state, SetUser{User: nil})
		return
	}
	sameUser := c.state.CurrentUser != nil && c.state.CurrentUser.ID == ev.User.ID
	c.state = Reduce(c.state, SetUser{User: ev.User})
	if sameUser {
		return
	}
	slog.Debug("Controller.handleAuthEvent: new user, hydrating", "userID", ev.User.ID)
	if err := c.hydrateLocked(ev.User.ID); err != nil {
		slog.Error("Controller.handleAuthEvent: hydration failed", "error", err, "userID", ev.User.ID)
	}
}

// hydrateLocked loads the user's task collections from the task store and
// replaces the in-memory collections. Caller must hold c.mu.
func (c *Controller) hydrateLocked(userID string) error {
	active, err := c.tasks.ListTasks(userID)
	if err != nil {
		slog.Error("Controller.hydrateLocked: listing tasks failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	completed, err := c.tasks.ListCompletedTasks(userID)
	if err != nil {
		slog.Error("Controller.hydrateLocked: listing completed tasks failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to load completed tasks: %w", err)
	}
	c.state = Reduce(c.state, SetTasks{Tasks: active})
	c.state = Reduce(c.state, SetCompletedTasks{Tasks: completed})
	return nil
}

// Register creates a new account and logs the user in.
func (c *Controller) Register(email, password, name string) (models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, err := c.identity.Register(email, password, name)
	if err != nil {
		slog.Error("Controller.Register: registration failed", "error", err, "email", email)
		return models.User{}, err
	}
	c.state = Reduce(c.state, SetUser{User: &user})
	if err := c.hydrateLocked(user.ID); err != nil {
		return models.User{}, err
	}
	slog.Info("Controller.Register: user registered", "userID", user.ID)
	return user, nil
}

// Login authenticates and hydrates the user's task collections.
func (c *Controller) Login(email, password string) (models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, err := c.identity.Login(email, password)
	if err != nil {
		slog.Warn("Controller.Login: login failed", "error", err, "email", email)
		return models.User{}, err
	}
	c.state = Reduce(c.state, SetUser{User: &user})
	if err := c.hydrateLocked(user.ID); err != nil {
		return models.User{}, err
	}
	slog.Info("Controller.Login: user logged in", "userID", user.ID)
	return user, nil
}

// Logout clears the identity; the SetUser transition cascades a reset of all
// task and session state.
func (c *Controller) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.identity.Logout(); err != nil {
		slog.Error("Controller.Logout: logout failed", "error", err)
		return err
	}
	c.state = Reduce(c.state, SetUser{User: nil})
	slog.Info("Controller.Logout: user logged out")
	return nil
}

// CreateTask validates the draft, persists it, and appends the store-created
// task to the active collection.
func (c *Controller) CreateTask(draft models.TaskDraft) (models.Task, error) {
	if err := draft.Validate(); err != nil {
		return models.Task{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return models.Task{}, ErrNotLoggedIn
	}
	task, err := c.tasks.CreateTask(draft, user.ID)
	if err != nil {
		slog.Error("Controller.CreateTask: store create failed", "error", err, "userID", user.ID)
		return models.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	c.state = Reduce(c.state, CreateTask{Task: task})
	slog.Info("Controller.CreateTask: task created", "taskID", task.ID)
	return task, nil
}

// StartSession begins a focus session against the current task using the
// supplied check-in state and optional intervention.
func (c *Controller) StartSession(state models.UserState, intervention *models.Intervention) (models.Session, error) {
	if err := state.Validate(); err != nil {
		return models.Session{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return models.Session{}, ErrNotLoggedIn
	}
	if c.state.CurrentTask == nil {
		return models.Session{}, ErrNoCurrentTask
	}
	if c.state.ActiveSession != nil {
		return models.Session{}, ErrSessionInProgress
	}
	sess, err := c.sessions.StartSession(c.state.CurrentTask.ID, user.ID, state, intervention)
	if err != nil {
		slog.Error("Controller.StartSession: store start failed", "error", err, "taskID", c.state.CurrentTask.ID)
		return models.Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	c.state = Reduce(c.state, StartSession{Session: sess})
	slog.Info("Controller.StartSession: session started", "sessionID", sess.ID, "taskID", sess.TaskID)
	return sess, nil
}

// EndSession terminates the active session with the given feedback, appends
// it to its task's session sequence, and applies the streak rule.
func (c *Controller) EndSession(feedback models.SessionFeedback) (models.Session, error) {
	if err := feedback.Validate(); err != nil {
		return models.Session{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return models.Session{}, ErrNotLoggedIn
	}
	if c.state.ActiveSession == nil {
		return models.Session{}, ErrNoActiveSession
	}
	sess, err := c.sessions.EndSession(c.state.ActiveSession.ID, feedback)
	if err != nil {
		slog.Error("Controller.EndSession: store end failed", "error", err, "sessionID", c.state.ActiveSession.ID)
		return models.Session{}, fmt.Errorf("failed to end session: %w", err)
	}
	c.state = Reduce(c.state, EndSession{Session: sess})
	slog.Info("Controller.EndSession: session ended", "sessionID", sess.ID, "duration", sess.Duration)

	c.updateStreakLocked(user.ID, sess)
	return sess, nil
}

// updateStreakLocked applies the day-boundary streak rule after a completed
// session. A streak persistence failure is logged but does not fail the
// intent; the session itself already ended successfully.
func (c *Controller) updateStreakLocked(userID string, sess models.Session) {
	if sess.EndTime == nil {
		// The session store must stamp EndTime on a successful end.
		slog.Error("Controller.updateStreakLocked: session missing end time, skipping streak update", "sessionID", sess.ID)
		return
	}
	completedAt := *sess.EndTime
	cur, err := c.streaks.GetStreak(userID)
	if errors.Is(err, store.ErrNotFound) {
		cur, err = c.streaks.InitializeStreak(userID)
	}
	if err != nil {
		slog.Error("Controller.updateStreakLocked: streak lookup failed", "error", err, "userID", userID)
		return
	}
	next := NextStreak(cur, completedAt)
	if next == cur {
		return
	}
	if err := c.streaks.UpdateStreak(userID, next.Count); err != nil {
		slog.Error("Controller.updateStreakLocked: streak update failed", "error", err, "userID", userID)
		return
	}
	if c.state.CurrentUser != nil && c.state.CurrentUser.ID == userID {
		updated := *c.state.CurrentUser
		updated.Streak = next
		c.state = Reduce(c.state, SetUser{User: &updated})
	}
	slog.Debug("Controller.updateStreakLocked: streak updated", "userID", userID, "count", next.Count)
}

// SetUserState records a check-in without starting a session, so suggestion
// lookups reflect it.
func (c *Controller) SetUserState(state models.UserState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, SetUserState{State: state})
	return nil
}

// CompleteCurrentTask marks the current task completed and moves it to the
// completed collection.
func (c *Controller) CompleteCurrentTask() (models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return models.Task{}, ErrNotLoggedIn
	}
	if c.state.CurrentTask == nil {
		return models.Task{}, ErrNoCurrentTask
	}
	// Completing the session's task would strand the active session: the
	// store rejects ending a session on a completed task.
	if c.state.ActiveSession != nil && c.state.ActiveSession.TaskID == c.state.CurrentTask.ID {
		return models.Task{}, ErrSessionInProgress
	}
	completed := *c.state.CurrentTask
	completed.Completed = true
	stored, err := c.tasks.UpdateTask(completed)
	if err != nil {
		slog.Error("Controller.CompleteCurrentTask: store update failed", "error", err, "taskID", completed.ID)
		return models.Task{}, fmt.Errorf("failed to complete task: %w", err)
	}
	c.state = Reduce(c.state, CompleteCurrentTask{Task: stored})
	slog.Info("Controller.CompleteCurrentTask: task completed", "taskID", stored.ID)
	return stored, nil
}

// DeleteCurrentTask removes the current task permanently.
func (c *Controller) DeleteCurrentTask() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return ErrNotLoggedIn
	}
	if c.state.CurrentTask == nil {
		return ErrNoCurrentTask
	}
	taskID := c.state.CurrentTask.ID
	if err := c.tasks.DeleteTask(taskID); err != nil {
		slog.Error("Controller.DeleteCurrentTask: store delete failed", "error", err, "taskID", taskID)
		return fmt.Errorf("failed to delete task: %w", err)
	}
	c.state = Reduce(c.state, DeleteCurrentTask{})
	slog.Info("Controller.DeleteCurrentTask: task deleted", "taskID", taskID)
	return nil
}

// SetCurrentTask points the current-task pointer at a task in the active
// collection. Returns ErrTaskNotFound for an unknown id so the caller can
// surface a notice; state is unchanged in that case.
func (c *Controller) SetCurrentTask(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := Reduce(c.state, SetCurrentTask{ID: taskID})
	if next.CurrentTask == nil || next.CurrentTask.ID != taskID {
		return ErrTaskNotFound
	}
	c.state = next
	return nil
}

// ResetAll restores the initial empty state, preserving the identity.
func (c *Controller) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, ResetAll{})
	slog.Info("Controller.ResetAll: state reset")
}

// Snapshot returns a copy of the current state. Slices in the snapshot are
// treated as immutable by the reducer, so readers may iterate them freely.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TodaysTasks returns the derived dashboard view, computed on demand.
func (c *Controller) TodaysTasks() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TodaysTasks(c.state.Tasks, time.Now())
}

// SuggestedInterventions returns the catalog entries matching the last-known
// check-in state, computed on demand.
func (c *Controller) SuggestedInterventions() []models.Intervention {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SuggestedInterventions(c.state, c.catalog)
}
