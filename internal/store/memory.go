package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// InMemoryStore is a process-local Store implementation. It is safe for
// concurrent use and returns copies, never aliases into its own maps.
type InMemoryStore struct {
	mu            sync.Mutex
	tasks         map[string]models.Task
	taskSeq       []string // creation order of task ids
	owners        map[string]string
	sessions      map[string]models.Session
	sessSeq       []string // creation order of session ids
	sessionOwners map[string]string
	streaks       map[string]models.Streak
	users         map[string]memoryUser
	now           func() time.Time
}

type memoryUser struct {
	user models.User
	hash string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:         make(map[string]models.Task),
		owners:        make(map[string]string),
		sessions:      make(map[string]models.Session),
		sessionOwners: make(map[string]string),
		streaks:       make(map[string]models.Streak),
		users:         make(map[string]memoryUser),
		now:           time.Now,
	}
}

// ListTasks returns the user's active tasks in creation order, with each
// task's session sequence attached.
func (s *InMemoryStore) ListTasks(userID string) ([]models.Task, error) {
	return s.listTasks(userID, false)
}

// ListCompletedTasks returns the user's completed tasks in creation order.
func (s *InMemoryStore) ListCompletedTasks(userID string) ([]models.Task, error) {
	return s.listTasks(userID, true)
}

func (s *InMemoryStore) listTasks(userID string, completed bool) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, id := range s.taskSeq {
		t, ok := s.tasks[id]
		if !ok || t.Completed != completed {
			continue
		}
		if s.owners[t.ID] != userID {
			continue
		}
		t.Sessions = s.sessionsForTaskLocked(t.ID)
		out = append(out, t)
	}
	return out, nil
}

// CreateTask assigns an id and creation timestamp and stores the task.
func (s *InMemoryStore) CreateTask(draft models.TaskDraft, userID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := models.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		CreatedAt:   s.now(),
		Completed:   false,
		Sessions:    []models.Session{},
	}
	s.tasks[task.ID] = task
	s.taskSeq = append(s.taskSeq, task.ID)
	s.owners[task.ID] = userID
	return task, nil
}

// UpdateTask replaces the stored task fields and returns the stored copy with
// its session sequence attached.
func (s *InMemoryStore) UpdateTask(task models.Task) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[task.ID]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	stored.Title = task.Title
	stored.Description = task.Description
	stored.Priority = task.Priority
	stored.DueDate = task.DueDate
	stored.Completed = task.Completed
	s.tasks[task.ID] = stored
	stored.Sessions = s.sessionsForTaskLocked(task.ID)
	return stored, nil
}

// DeleteTask removes the task permanently. Deleting an unknown task is an error.
func (s *InMemoryStore) DeleteTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, taskID)
	delete(s.owners, taskID)
	for i, id := range s.taskSeq {
		if id == taskID {
			s.taskSeq = append(s.taskSeq[:i], s.taskSeq[i+1:]...)
			break
		}
	}
	return nil
}

// StartSession creates a new session against an existing, still-active task.
func (s *InMemoryStore) StartSession(taskID, userID string, state models.UserState, intervention *models.Intervention) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	if task.Completed {
		return models.Session{}, ErrTaskCompleted
	}
	sess := models.Session{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		StartTime: s.now(),
		State:     state,
		Completed: false,
	}
	if intervention != nil {
		copied := *intervention
		sess.SelectedIntervention = &copied
	}
	s.sessions[sess.ID] = sess
	s.sessSeq = append(s.sessSeq, sess.ID)
	s.sessionOwners[sess.ID] = userID
	return sess, nil
}

// EndSession terminates a session exactly once, computing the duration as
// floored elapsed wall-clock minutes from start.
func (s *InMemoryStore) EndSession(sessionID string, feedback models.SessionFeedback) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	if sess.Completed {
		return models.Session{}, ErrSessionEnded
	}
	if task, ok := s.tasks[sess.TaskID]; ok && task.Completed {
		return models.Session{}, ErrTaskCompleted
	}
	end := s.now()
	sess.EndTime = &end
	sess.Duration = int(end.Sub(sess.StartTime).Minutes())
	sess.Completed = true
	fb := feedback
	sess.Feedback = &fb
	s.sessions[sessionID] = sess
	return sess, nil
}

// ListSessions returns the user's sessions in creation order.
func (s *InMemoryStore) ListSessions(userID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, id := range s.sessSeq {
		if s.sessionOwners[id] != userID {
			continue
		}
		out = append(out, s.sessions[id])
	}
	return out, nil
}

// ListSessionsByTask returns a task's sessions in creation order.
func (s *InMemoryStore) ListSessionsByTask(taskID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsForTaskLocked(taskID), nil
}

func (s *InMemoryStore) sessionsForTaskLocked(taskID string) []models.Session {
	out := []models.Session{}
	for _, id := range s.sessSeq {
		sess := s.sessions[id]
		if sess.TaskID == taskID {
			out = append(out, sess)
		}
	}
	return out
}

// GetStreak returns the user's streak record, or ErrNotFound if none exists.
func (s *InMemoryStore) GetStreak(userID string) (models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streak, ok := s.streaks[userID]
	if !ok {
		return models.Streak{}, ErrNotFound
	}
	return streak, nil
}

// InitializeStreak creates a zero-count streak record for the user.
func (s *InMemoryStore) InitializeStreak(userID string) (models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streak := models.Streak{Count: 0, LastActiveDate: s.now()}
	s.streaks[userID] = streak
	return streak, nil
}

// UpdateStreak sets the count and stamps the last active date.
func (s *InMemoryStore) UpdateStreak(userID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streaks[userID]; !ok {
		return ErrNotFound
	}
	s.streaks[userID] = models.Streak{Count: count, LastActiveDate: s.now()}
	return nil
}

// CreateUser stores a new identity with its password hash.
func (s *InMemoryStore) CreateUser(email, passwordHash, name string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.user.Email == email {
			return models.User{}, ErrEmailTaken
		}
	}
	now := s.now()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Name:        name,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	s.users[user.ID] = memoryUser{user: user, hash: passwordHash}
	return user, nil
}

// GetUserByEmail returns the identity and its password hash for verification.
func (s *InMemoryStore) GetUserByEmail(email string) (models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.user.Email == email {
			return u.user, u.hash, nil
		}
	}
	return models.User{}, "", ErrNotFound
}

// GetUserByID returns the identity.
func (s *InMemoryStore) GetUserByID(id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u.user, nil
}

// TouchLastLogin stamps the user's last login time.
func (s *InMemoryStore) TouchLastLogin(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.user.LastLoginAt = at
	s.users[userID] = u
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
