// Package flow implements the FlowState session/task state machine.
//
// The reducer is the single authority for state transitions. It is pure: no
// I/O, no clock access, no identifier generation. Identifiers and timestamps
// arrive on actions already assigned by the persistence layer, and any
// transition whose precondition fails returns the input state unchanged. The
// controller is responsible for surfacing those silent no-ops to the user.
package flow

import "github.com/flowstate-coach/flowstate/internal/models"

// State is the complete in-memory state owned by the controller.
// CurrentTask and ActiveSession hold copies, never aliases into the slices.
type State struct {
	CurrentUser    *models.User
	Tasks          []models.Task
	CurrentTask    *models.Task
	CompletedTasks []models.Task
	Sessions       []models.Session
	ActiveSession  *models.Session
	UserState      models.UserState
}

// defaultUserState is the check-in state assumed before the first check-in.
var defaultUserState = models.UserState{
	Energy:  models.EnergyMedium,
	Emotion: models.EmotionNeutral,
}

// Initial returns the empty starting state.
func Initial() State {
	return State{UserState: defaultUserState}
}

// Action is the closed set of state transitions. Exactly the types in this
// file implement it; the reducer ignores anything else.
type Action interface {
	isAction()
}

// SetTasks replaces the active task collection. If no current task is set,
// the first entry becomes current.
type SetTasks struct {
	Tasks []models.Task
}

// SetCompletedTasks replaces the completed task collection.
type SetCompletedTasks struct {
	Tasks []models.Task
}

// CreateTask appends a store-created task to the active collection. It becomes
// the current task only if no current task exists.
type CreateTask struct {
	Task models.Task
}

// StartSession sets the active session. The session arrives already carrying
// its store-assigned id and start time. No-op without a current task or while
// another session is active.
type StartSession struct {
	Session models.Session
}

// EndSession appends the terminated session to its owning task's session
// sequence and the global session log, and clears the active session. The
// session's end time and duration were computed by the session store. No-op
// without an active session.
type EndSession struct {
	Session models.Session
}

// SetUserState replaces the last-known check-in state, used for suggestion
// lookups before a session starts.
type SetUserState struct {
	State models.UserState
}

// CompleteCurrentTask moves the current task to the completed collection.
// The task arrives already marked completed by the store. No-op without a
// current task.
type CompleteCurrentTask struct {
	Task models.Task
}

// DeleteCurrentTask removes the current task from the active collection with
// no archival. No-op without a current task.
type DeleteCurrentTask struct{}

// SetCurrentTask points the current-task pointer at a task in the active
// collection. Ignored if the id is not found.
type SetCurrentTask struct {
	ID string
}

// SetUser replaces the identity. A nil user clears the identity and cascades
// a reset of all task and session state.
type SetUser struct {
	User *models.User
}

// ResetAll restores the initial empty state, preserving only the identity.
type ResetAll struct{}

func (SetTasks) isAction()            {}
func (SetCompletedTasks) isAction()   {}
func (CreateTask) isAction()          {}
func (StartSession) isAction()        {}
func (EndSession) isAction()          {}
func (SetUserState) isAction()        {}
func (CompleteCurrentTask) isAction() {}
func (DeleteCurrentTask) isAction()   {}
func (SetCurrentTask) isAction()      {}
func (SetUser) isAction()             {}
func (ResetAll) isAction()            {}

// Reduce maps (state, action) to the next state. It is total on valid state:
// unknown actions and failed preconditions return the input state unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetTasks:
		next := s
		next.Tasks = a.Tasks
		if next.CurrentTask == nil && len(a.Tasks) > 0 {
			first := a.Tasks[0]
			next.CurrentTask = &first
		}
		return next

	case SetCompletedTasks:
		next := s
		next.CompletedTasks = a.Tasks
		return next

	case CreateTask:
		next := s
		next.Tasks = appendTask(s.Tasks, a.Task)
		if next.CurrentTask == nil {
			created := a.Task
			next.CurrentTask = &created
		}
		return next

	case StartSession:
		if s.CurrentTask == nil || s.ActiveSession != nil {
			return s
		}
		next := s
		started := a.Session
		next.ActiveSession = &started
		next.UserState = started.State
		return next

	case EndSession:
		if s.ActiveSession == nil {
			return s
		}
		ended := a.Session
		next := s
		next.Sessions = append(append([]models.Session(nil), s.Sessions...), ended)
		next.Tasks = make([]models.Task, len(s.Tasks))
		for i, task := range s.Tasks {
			if task.ID == ended.TaskID {
				task.Sessions = append(append([]models.Session(nil), task.Sessions...), ended)
			}
			next.Tasks[i] = task
		}
		if s.CurrentTask != nil && s.CurrentTask.ID == ended.TaskID {
			cur := *s.CurrentTask
			cur.Sessions = append(append([]models.Session(nil), cur.Sessions...), ended)
			next.CurrentTask = &cur
		}
		next.ActiveSession = nil
		return next

	case SetUserState:
		next := s
		next.UserState = a.State
		return next

	case CompleteCurrentTask:
		if s.CurrentTask == nil {
			return s
		}
		next := s
		next.Tasks = removeTask(s.Tasks, a.Task.ID)
		next.CompletedTasks = appendTask(s.CompletedTasks, a.Task)
		next.CurrentTask = firstTask(next.Tasks)
		return next

	case DeleteCurrentTask:
		if s.CurrentTask == nil {
			return s
		}
		next := s
		next.Tasks = removeTask(s.Tasks, s.CurrentTask.ID)
		next.CurrentTask = firstTask(next.Tasks)
		return next

	case SetCurrentTask:
		for _, task := range s.Tasks {
			if task.ID == a.ID {
				next := s
				found := task
				next.CurrentTask = &found
				return next
			}
		}
		return s

	case SetUser:
		if a.User == nil {
			// Clearing the identity wipes all task and session state.
			return Initial()
		}
		next := s
		next.CurrentUser = a.User
		return next

	case ResetAll:
		next := Initial()
		next.CurrentUser = s.CurrentUser
		return next

	default:
		return s
	}
}

func appendTask(tasks []models.Task, t models.Task) []models.Task {
	return append(append([]models.Task(nil), tasks...), t)
}

func removeTask(tasks []models.Task, id string) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func firstTask(tasks []models.Task) *models.Task {
	if len(tasks) == 0 {
		return nil
	}
	first := tasks[0]
	return &first
}
