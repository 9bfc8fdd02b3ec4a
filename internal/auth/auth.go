// Package auth implements the identity collaborator for FlowState.
//
// It owns registration, login, logout, the current-user session, and the
// auth-state change stream the controller subscribes to. Credentials are
// verified against bcrypt hashes held by the user store; the HTTP layer uses
// the service's JWT helpers for bearer tokens.
package auth

import (
	"errors"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// Error variables for authentication failures. ErrInvalidCredentials is
// user-correctable and gets a specific message; everything else is surfaced
// as a generic retry-worthy failure.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotLoggedIn        = errors.New("no user is logged in")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Event is an auth-state change notification. User is nil on logout.
type Event struct {
	User *models.User
}

// Identity is the auth collaborator contract the controller depends on.
type Identity interface {
	// Register creates a new identity, initializes its streak record, and
	// logs the user in.
	Register(email, password, name string) (models.User, error)
	// Login verifies credentials and loads the user's streak record,
	// initializing it lazily if none exists. Returns ErrInvalidCredentials
	// when the email or password is wrong.
	Login(email, password string) (models.User, error)
	// Logout clears the current session.
	Logout() error
	// CurrentUser returns the logged-in user, or nil when logged out.
	CurrentUser() (*models.User, error)
	// Subscribe registers for auth-state change events. The returned func
	// unsubscribes and must be called on teardown.
	Subscribe() (<-chan Event, func())
}
