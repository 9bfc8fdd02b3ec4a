package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flowstate-coach/flowstate/internal/auth"
	"github.com/flowstate-coach/flowstate/internal/catalog"
	"github.com/flowstate-coach/flowstate/internal/models"
	"github.com/flowstate-coach/flowstate/internal/store"
)

// fakeTaskStore is an in-test TaskStore with injectable failures.
type fakeTaskStore struct {
	active    []models.Task
	completed []models.Task
	seq       int
	failWith  error
}

func (f *fakeTaskStore) ListTasks(userID string) ([]models.Task, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]models.Task(nil), f.active...), nil
}

func (f *fakeTaskStore) ListCompletedTasks(userID string) ([]models.Task, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]models.Task(nil), f.completed...), nil
}

func (f *fakeTaskStore) CreateTask(draft models.TaskDraft, userID string) (models.Task, error) {
	if f.failWith != nil {
		return models.Task{}, f.failWith
	}
	f.seq++
	task := models.Task{
		ID:          fmt.Sprintf("task-%d", f.seq),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   time.Now(),
		Sessions:    []models.Session{},
	}
	f.active = append(f.active, task)
	return task, nil
}

func (f *fakeTaskStore) UpdateTask(task models.Task) (models.Task, error) {
	if f.failWith != nil {
		return models.Task{}, f.failWith
	}
	return task, nil
}

func (f *fakeTaskStore) DeleteTask(taskID string) error {
	return f.failWith
}

// fakeSessionStore issues sessions with a controllable clock so duration is
// deterministic.
type fakeSessionStore struct {
	seq         int
	start       time.Time
	elapsed     time.Duration
	open        map[string]models.Session
	failWith    error
	omitEndTime bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		start: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		open:  make(map[string]models.Session),
	}
}

func (f *fakeSessionStore) StartSession(taskID, userID string, state models.UserState, intervention *models.Intervention) (models.Session, error) {
	if f.failWith != nil {
		return models.Session{}, f.failWith
	}
	f.seq++
	sess := models.Session{
		ID:        fmt.Sprintf("sess-%d", f.seq),
		TaskID:    taskID,
		StartTime: f.start,
		State:     state,
	}
	if intervention != nil {
		copied := *intervention
		sess.SelectedIntervention = &copied
	}
	f.open[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessionStore) EndSession(sessionID string, feedback models.SessionFeedback) (models.Session, error) {
	if f.failWith != nil {
		return models.Session{}, f.failWith
	}
	sess, ok := f.open[sessionID]
	if !ok {
		return models.Session{}, errors.New("unknown session")
	}
	if !f.omitEndTime {
		end := sess.StartTime.Add(f.elapsed)
		sess.EndTime = &end
	}
	sess.Duration = int(f.elapsed.Minutes())
	sess.Completed = true
	fb := feedback
	sess.Feedback = &fb
	delete(f.open, sessionID)
	return sess, nil
}

func (f *fakeSessionStore) ListSessions(userID string) ([]models.Session, error) {
	return nil, nil
}

func (f *fakeSessionStore) ListSessionsByTask(taskID string) ([]models.Session, error) {
	return nil, nil
}

// fakeStreakStore records streak updates.
type fakeStreakStore struct {
	streak      models.Streak
	exists      bool
	now         time.Time
	updated     []int
	initialized int
}

func (f *fakeStreakStore) GetStreak(userID string) (models.Streak, error) {
	if !f.exists {
		return models.Streak{}, store.ErrNotFound
	}
	return f.streak, nil
}

func (f *fakeStreakStore) InitializeStreak(userID string) (models.Streak, error) {
	f.initialized++
	f.streak = models.Streak{Count: 0, LastActiveDate: f.now}
	f.exists = true
	return f.streak, nil
}

func (f *fakeStreakStore) UpdateStreak(userID string, count int) error {
	f.updated = append(f.updated, count)
	f.streak = models.Streak{Count: count, LastActiveDate: f.now}
	return nil
}

// fakeIdentity is an in-test auth collaborator.
type fakeIdentity struct {
	user     *models.User
	loginErr error
	events   chan auth.Event
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{events: make(chan auth.Event, 4)}
}

func (f *fakeIdentity) Register(email, password, name string) (models.User, error) {
	u := models.User{ID: "u1", Email: email, Name: name}
	f.user = &u
	return u, nil
}

func (f *fakeIdentity) Login(email, password string) (models.User, error) {
	if f.loginErr != nil {
		return models.User{}, f.loginErr
	}
	u := models.User{ID: "u1", Email: email}
	f.user = &u
	return u, nil
}

func (f *fakeIdentity) Logout() error {
	f.user = nil
	return nil
}

func (f *fakeIdentity) CurrentUser() (*models.User, error) {
	return f.user, nil
}

func (f *fakeIdentity) Subscribe() (<-chan auth.Event, func()) {
	return f.events, func() { close(f.events) }
}

type fixtures struct {
	tasks    *fakeTaskStore
	sessions *fakeSessionStore
	streaks  *fakeStreakStore
	identity *fakeIdentity
	ctrl     *Controller
}

func newFixtures(t *testing.T) *fixtures {
	t.Helper()
	f := &fixtures{
		tasks:    &fakeTaskStore{},
		sessions: newFakeSessionStore(),
		streaks:  &fakeStreakStore{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		identity: newFakeIdentity(),
	}
	f.ctrl = NewController(f.tasks, f.sessions, f.streaks, f.identity, catalog.Default())
	return f
}

func loggedIn(t *testing.T, f *fixtures) {
	t.Helper()
	if _, err := f.ctrl.Login("a@b.c", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestControllerFullSessionScenario(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)

	task, err := f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityMedium})
	if err != nil {
		t.Fatalf("create task failed: %v", err)
	}
	snap := f.ctrl.Snapshot()
	if snap.CurrentTask == nil || snap.CurrentTask.ID != task.ID {
		t.Fatalf("created task must become current, got %+v", snap.CurrentTask)
	}

	f.sessions.elapsed = 50 * time.Minute
	sess, err := f.ctrl.StartSession(models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}, nil)
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if sess.TaskID != task.ID {
		t.Errorf("session task id = %s, want %s", sess.TaskID, task.ID)
	}
	if f.ctrl.Snapshot().ActiveSession == nil {
		t.Fatal("expected an active session")
	}

	ended, err := f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyOkay, ProgressMade: true})
	if err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if ended.Duration != 50 {
		t.Errorf("duration = %d, want 50", ended.Duration)
	}
	snap = f.ctrl.Snapshot()
	if snap.ActiveSession != nil {
		t.Error("active session must be cleared")
	}
	if len(snap.CurrentTask.Sessions) != 1 {
		t.Errorf("task session sequence length = %d, want 1", len(snap.CurrentTask.Sessions))
	}
	if snap.CurrentTask.Sessions[0].Duration < 0 {
		t.Error("duration must be non-negative")
	}
}

func TestControllerStartSessionPreconditions(t *testing.T) {
	f := newFixtures(t)
	state := models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}

	if _, err := f.ctrl.StartSession(state, nil); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}

	loggedIn(t, f)
	before := f.ctrl.Snapshot()
	if _, err := f.ctrl.StartSession(state, nil); !errors.Is(err, ErrNoCurrentTask) {
		t.Errorf("expected ErrNoCurrentTask, got %v", err)
	}
	after := f.ctrl.Snapshot()
	if after.ActiveSession != nil || len(after.Sessions) != len(before.Sessions) {
		t.Error("state must be unchanged after a failed precondition")
	}

	if _, err := f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.StartSession(state, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.StartSession(state, nil); !errors.Is(err, ErrSessionInProgress) {
		t.Errorf("expected ErrSessionInProgress, got %v", err)
	}
}

func TestControllerEndSessionWithoutActive(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	_, err := f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyEasy})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestControllerStoreFailureLeavesStateUntouched(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.tasks.failWith = errors.New("store down")

	before := f.ctrl.Snapshot()
	_, err := f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})
	if err == nil {
		t.Fatal("expected an error from a failing task store")
	}
	after := f.ctrl.Snapshot()
	if len(after.Tasks) != len(before.Tasks) || after.CurrentTask != nil {
		t.Error("in-memory state must be untouched when the collaborator fails")
	}
}

func TestControllerValidationRejectedBeforeDispatch(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	if _, err := f.ctrl.CreateTask(models.TaskDraft{Priority: models.PriorityLow}); !errors.Is(err, models.ErrEmptyTaskTitle) {
		t.Errorf("expected ErrEmptyTaskTitle, got %v", err)
	}
	if _, err := f.ctrl.StartSession(models.UserState{Energy: "cosmic", Emotion: models.EmotionNeutral}, nil); !errors.Is(err, models.ErrInvalidEnergyLevel) {
		t.Errorf("expected ErrInvalidEnergyLevel, got %v", err)
	}
}

func TestControllerCompleteAndDeleteCurrentTask(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	t1, _ := f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})
	t2, _ := f.ctrl.CreateTask(models.TaskDraft{Title: "T2", Priority: models.PriorityLow})

	done, err := f.ctrl.CompleteCurrentTask()
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.ID != t1.ID || !done.Completed {
		t.Errorf("expected %s completed, got %+v", t1.ID, done)
	}
	snap := f.ctrl.Snapshot()
	if snap.CurrentTask == nil || snap.CurrentTask.ID != t2.ID {
		t.Errorf("current task must advance to %s, got %+v", t2.ID, snap.CurrentTask)
	}
	if len(snap.CompletedTasks) != 1 {
		t.Errorf("completed collection length = %d, want 1", len(snap.CompletedTasks))
	}

	if err := f.ctrl.DeleteCurrentTask(); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	snap = f.ctrl.Snapshot()
	if len(snap.Tasks) != 0 || snap.CurrentTask != nil {
		t.Errorf("expected empty active collection, got %+v", snap.Tasks)
	}

	if err := f.ctrl.DeleteCurrentTask(); !errors.Is(err, ErrNoCurrentTask) {
		t.Errorf("expected ErrNoCurrentTask, got %v", err)
	}
}

func TestControllerCompleteTaskBlockedDuringItsSession(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	task, _ := f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	f.sessions.elapsed = 10 * time.Minute
	if _, err := f.ctrl.StartSession(models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}, nil); err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	if _, err := f.ctrl.CompleteCurrentTask(); !errors.Is(err, ErrSessionInProgress) {
		t.Fatalf("expected ErrSessionInProgress, got %v", err)
	}
	snap := f.ctrl.Snapshot()
	if snap.ActiveSession == nil || snap.ActiveSession.TaskID != task.ID {
		t.Fatal("active session must survive the rejected completion")
	}
	if snap.CurrentTask == nil || snap.CurrentTask.ID != task.ID || len(snap.CompletedTasks) != 0 {
		t.Errorf("task state must be unchanged, got %+v", snap)
	}

	// Ending the session first unblocks completion.
	if _, err := f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyOkay, ProgressMade: true}); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	done, err := f.ctrl.CompleteCurrentTask()
	if err != nil {
		t.Fatalf("complete after end failed: %v", err)
	}
	if done.ID != task.ID || !done.Completed {
		t.Errorf("expected %s completed, got %+v", task.ID, done)
	}
}

func TestControllerSetCurrentTask(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})
	t2, _ := f.ctrl.CreateTask(models.TaskDraft{Title: "T2", Priority: models.PriorityLow})

	if err := f.ctrl.SetCurrentTask(t2.ID); err != nil {
		t.Fatalf("set current failed: %v", err)
	}
	if got := f.ctrl.Snapshot().CurrentTask.ID; got != t2.ID {
		t.Errorf("current task = %s, want %s", got, t2.ID)
	}

	if err := f.ctrl.SetCurrentTask("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if got := f.ctrl.Snapshot().CurrentTask.ID; got != t2.ID {
		t.Error("unknown id must leave the pointer unchanged")
	}
}

func TestControllerStreakIncrementsOnNextDay(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	// Last active the day before the session's end time.
	f.streaks.exists = true
	f.streaks.streak = models.Streak{Count: 2, LastActiveDate: time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)}
	f.sessions.elapsed = 30 * time.Minute

	state := models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}
	if _, err := f.ctrl.StartSession(state, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyOkay, ProgressMade: true}); err != nil {
		t.Fatal(err)
	}

	if len(f.streaks.updated) != 1 || f.streaks.updated[0] != 3 {
		t.Errorf("expected a single streak update to 3, got %v", f.streaks.updated)
	}
	user := f.ctrl.Snapshot().CurrentUser
	if user == nil || user.Streak.Count != 3 {
		t.Errorf("streak must be reflected into the in-memory identity, got %+v", user)
	}
}

func TestControllerStreakSameDayNoUpdate(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	f.streaks.exists = true
	f.streaks.streak = models.Streak{Count: 4, LastActiveDate: time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)}
	f.sessions.elapsed = 10 * time.Minute

	state := models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}
	f.ctrl.StartSession(state, nil)
	f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyEasy, ProgressMade: false})

	if len(f.streaks.updated) != 0 {
		t.Errorf("same-day completion must not persist a streak update, got %v", f.streaks.updated)
	}
}

func TestControllerStreakInitializedLazily(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})
	f.sessions.elapsed = 10 * time.Minute

	state := models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}
	f.ctrl.StartSession(state, nil)
	f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyEasy, ProgressMade: true})

	if f.streaks.initialized != 1 {
		t.Errorf("streak must be initialized lazily, init count = %d", f.streaks.initialized)
	}
}

func TestControllerStreakSkippedWithoutEndTime(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	// Arrange a next-day completion so an update would normally fire.
	f.streaks.exists = true
	f.streaks.streak = models.Streak{Count: 2, LastActiveDate: time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)}
	f.sessions.elapsed = 30 * time.Minute
	f.sessions.omitEndTime = true

	state := models.UserState{Energy: models.EnergyMedium, Emotion: models.EmotionNeutral}
	if _, err := f.ctrl.StartSession(state, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.EndSession(models.SessionFeedback{Difficulty: models.DifficultyOkay, ProgressMade: true}); err != nil {
		t.Fatalf("end session failed: %v", err)
	}

	if f.ctrl.Snapshot().ActiveSession != nil {
		t.Error("session must still end")
	}
	if len(f.streaks.updated) != 0 {
		t.Errorf("a session without an end time must not update the streak, got %v", f.streaks.updated)
	}
	if got := f.ctrl.Snapshot().CurrentUser.Streak.Count; got != 0 {
		t.Errorf("in-memory streak must be untouched, got %d", got)
	}
}

func TestControllerAuthEventLogoutCascades(t *testing.T) {
	f := newFixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer f.ctrl.Close()

	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	f.identity.events <- auth.Event{User: nil}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := f.ctrl.Snapshot()
		if snap.CurrentUser == nil && len(snap.Tasks) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("logout event did not cascade a reset in time")
}

func TestControllerStartRestoresExistingSession(t *testing.T) {
	f := newFixtures(t)
	f.identity.user = &models.User{ID: "u1", Email: "a@b.c"}
	f.tasks.active = []models.Task{{ID: "t1", Title: "restored", Priority: models.PriorityLow, Sessions: []models.Session{}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer f.ctrl.Close()

	snap := f.ctrl.Snapshot()
	if snap.CurrentUser == nil || snap.CurrentUser.ID != "u1" {
		t.Fatal("identity must be restored on start")
	}
	if len(snap.Tasks) != 1 || snap.CurrentTask == nil || snap.CurrentTask.ID != "t1" {
		t.Errorf("tasks must be hydrated on start, got %+v", snap.Tasks)
	}
}

func TestControllerResetAllPreservesUser(t *testing.T) {
	f := newFixtures(t)
	loggedIn(t, f)
	f.ctrl.CreateTask(models.TaskDraft{Title: "T1", Priority: models.PriorityLow})

	f.ctrl.ResetAll()
	snap := f.ctrl.Snapshot()
	if snap.CurrentUser == nil {
		t.Error("reset must preserve the identity")
	}
	if len(snap.Tasks) != 0 {
		t.Error("reset must clear the task collections")
	}
}
