// Package api provides HTTP handlers for FlowState endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowstate-coach/flowstate/internal/auth"
	"github.com/flowstate-coach/flowstate/internal/flow"
	"github.com/flowstate-coach/flowstate/internal/models"
	"github.com/flowstate-coach/flowstate/internal/store"
)

// credentialsRequest carries register and login payloads.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// authResponse pairs the logged-in user with its bearer token.
type authResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// selectTaskRequest names a task for POST /tasks/current.
type selectTaskRequest struct {
	TaskID string `json:"task_id"`
}

// startSessionRequest carries the check-in state and the optionally chosen
// intervention for POST /sessions/start.
type startSessionRequest struct {
	State        models.UserState     `json:"state"`
	Intervention *models.Intervention `json:"intervention,omitempty"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.registerHandler: processing register request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.registerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: email, password"))
		return
	}

	user, err := s.ctrl.Register(req.Email, req.Password, req.Name)
	if err != nil {
		s.writeDomainError(w, "registerHandler", err)
		return
	}
	token, err := s.identity.IssueToken(user)
	if err != nil {
		slog.Error("Server.registerHandler: failed to issue token", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to issue token"))
		return
	}
	slog.Info("Server.registerHandler: user registered", "userID", user.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(authResponse{User: user, Token: token}))
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.loginHandler: processing login request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.loginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	user, err := s.ctrl.Login(req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, "loginHandler", err)
		return
	}
	token, err := s.identity.IssueToken(user)
	if err != nil {
		slog.Error("Server.loginHandler: failed to issue token", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to issue token"))
		return
	}
	slog.Info("Server.loginHandler: user logged in", "userID", user.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(authResponse{User: user, Token: token}))
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if err := s.ctrl.Logout(); err != nil {
		s.writeDomainError(w, "logoutHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Logged out", nil))
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	user := s.ctrl.Snapshot().CurrentUser
	writeJSONResponse(w, http.StatusOK, models.Success(user))
}

func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		if !s.authorize(w, r) {
			return
		}
		tasks := s.ctrl.Snapshot().Tasks
		writeJSONResponse(w, http.StatusOK, models.Success(tasks))
	case http.MethodPost:
		if !s.authorize(w, r) {
			return
		}
		var draft models.TaskDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			slog.Warn("Server.tasksHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		task, err := s.ctrl.CreateTask(draft)
		if err != nil {
			s.writeDomainError(w, "tasksHandler", err)
			return
		}
		slog.Info("Server.tasksHandler: task created", "taskID", task.ID)
		writeJSONResponse(w, http.StatusCreated, models.Success(task))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) tasksTodayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.TodaysTasks()))
}

func (s *Server) tasksCompletedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Snapshot().CompletedTasks))
}

func (s *Server) currentTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	var req selectTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.TaskID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: task_id"))
		return
	}
	if err := s.ctrl.SetCurrentTask(req.TaskID); err != nil {
		s.writeDomainError(w, "currentTaskHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Snapshot().CurrentTask))
}

func (s *Server) completeTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	task, err := s.ctrl.CompleteCurrentTask()
	if err != nil {
		s.writeDomainError(w, "completeTaskHandler", err)
		return
	}
	slog.Info("Server.completeTaskHandler: task completed", "taskID", task.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(task))
}

func (s *Server) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if err := s.ctrl.DeleteCurrentTask(); err != nil {
		s.writeDomainError(w, "deleteTaskHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task deleted", nil))
}

func (s *Server) checkinHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	var state models.UserState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.ctrl.SetUserState(state); err != nil {
		s.writeDomainError(w, "checkinHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.SuggestedInterventions()))
}

func (s *Server) suggestedInterventionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.SuggestedInterventions()))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Snapshot().Sessions))
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	sess, err := s.ctrl.StartSession(req.State, req.Intervention)
	if err != nil {
		s.writeDomainError(w, "startSessionHandler", err)
		return
	}
	slog.Info("Server.startSessionHandler: session started", "sessionID", sess.ID, "taskID", sess.TaskID)
	writeJSONResponse(w, http.StatusCreated, models.Success(sess))
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	var feedback models.SessionFeedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	sess, err := s.ctrl.EndSession(feedback)
	if err != nil {
		s.writeDomainError(w, "endSessionHandler", err)
		return
	}
	slog.Info("Server.endSessionHandler: session ended", "sessionID", sess.ID, "duration", sess.Duration)
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

func (s *Server) streakHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	user := s.ctrl.Snapshot().CurrentUser
	writeJSONResponse(w, http.StatusOK, models.Success(user.Streak))
}

// healthHandler provides a health check endpoint for monitoring
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// authorize verifies the bearer token and that it belongs to the logged-in
// user. It writes the 401 response itself and reports whether to proceed.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing bearer token"))
		return false
	}
	userID, err := s.identity.VerifyToken(token)
	if err != nil {
		slog.Warn("Server.authorize: token rejected", "error", err)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid bearer token"))
		return false
	}
	current := s.ctrl.Snapshot().CurrentUser
	if current == nil || current.ID != userID {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Not logged in"))
		return false
	}
	return true
}

// writeDomainError maps controller and validation errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, handler string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, flow.ErrNotLoggedIn):
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(err.Error()))
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, flow.ErrTaskNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, flow.ErrNoCurrentTask),
		errors.Is(err, flow.ErrNoActiveSession),
		errors.Is(err, flow.ErrSessionInProgress),
		errors.Is(err, store.ErrTaskCompleted):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrEmptyTaskTitle),
		errors.Is(err, models.ErrTaskTitleTooLong),
		errors.Is(err, models.ErrTaskDescriptionTooLong),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidEnergyLevel),
		errors.Is(err, models.ErrInvalidEmotionalState),
		errors.Is(err, models.ErrInvalidDifficulty),
		errors.Is(err, models.ErrFeedbackNotesTooLong),
		errors.Is(err, models.ErrBlockingThoughtsTooLong):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error("Server."+handler+": request failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
