package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowstate-coach/flowstate/internal/models"
	"github.com/flowstate-coach/flowstate/internal/store"
)

// TokenTTL is how long an issued bearer token stays valid.
const TokenTTL = 24 * time.Hour

// eventBuffer bounds each subscriber channel; a subscriber that falls this
// far behind misses events rather than blocking logins.
const eventBuffer = 8

// Service implements Identity over the user and streak stores.
type Service struct {
	users   store.UserStore
	streaks store.StreakStore
	secret  []byte

	mu      sync.Mutex
	current *models.User
	subs    map[int]chan Event
	nextSub int
}

// NewService creates an identity service. The secret signs bearer tokens and
// must be non-empty in production configurations.
func NewService(users store.UserStore, streaks store.StreakStore, secret []byte) *Service {
	return &Service{
		users:   users,
		streaks: streaks,
		secret:  secret,
		subs:    make(map[int]chan Event),
	}
}

// Register creates a new identity, initializes its streak record, and logs
// the user in.
func (s *Service) Register(email, password, name string) (models.User, error) {
	slog.Debug("Service.Register: registering user", "email", email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Service.Register: hashing failed", "error", err)
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := s.users.CreateUser(email, string(hash), name)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return models.User{}, ErrEmailTaken
		}
		slog.Error("Service.Register: create user failed", "error", err, "email", email)
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	streak, err := s.streaks.InitializeStreak(user.ID)
	if err != nil {
		slog.Error("Service.Register: streak init failed", "error", err, "userID", user.ID)
		return models.User{}, fmt.Errorf("failed to initialize streak: %w", err)
	}
	user.Streak = streak

	s.setCurrent(&user)
	slog.Info("Service.Register: user registered", "userID", user.ID)
	return user, nil
}

// Login verifies credentials and loads the user's streak record.
func (s *Service) Login(email, password string) (models.User, error) {
	slog.Debug("Service.Login: logging in", "email", email)
	user, hash, err := s.users.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		slog.Error("Service.Login: user lookup failed", "error", err)
		return models.User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		slog.Warn("Service.Login: password mismatch", "userID", user.ID)
		return models.User{}, ErrInvalidCredentials
	}

	streak, err := s.loadStreak(user.ID)
	if err != nil {
		return models.User{}, err
	}
	user.Streak = streak

	user.LastLoginAt = time.Now()
	if err := s.users.TouchLastLogin(user.ID, user.LastLoginAt); err != nil {
		// Non-fatal: the login itself succeeded.
		slog.Warn("Service.Login: failed to stamp last login", "error", err, "userID", user.ID)
	}

	s.setCurrent(&user)
	slog.Info("Service.Login: user logged in", "userID", user.ID)
	return user, nil
}

// loadStreak fetches the streak record, initializing it lazily when absent.
func (s *Service) loadStreak(userID string) (models.Streak, error) {
	streak, err := s.streaks.GetStreak(userID)
	if errors.Is(err, store.ErrNotFound) {
		return s.streaks.InitializeStreak(userID)
	}
	if err != nil {
		slog.Error("Service.loadStreak: streak lookup failed", "error", err, "userID", userID)
		return models.Streak{}, fmt.Errorf("failed to load streak: %w", err)
	}
	return streak, nil
}

// Logout clears the current session and notifies subscribers.
func (s *Service) Logout() error {
	slog.Debug("Service.Logout: logging out")
	s.setCurrent(nil)
	return nil
}

// CurrentUser returns the logged-in user, or nil when logged out.
func (s *Service) CurrentUser() (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	user := *s.current
	return &user, nil
}

// Subscribe registers for auth-state change events.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, eventBuffer)
	s.subs[id] = ch
	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// setCurrent swaps the current user and broadcasts the change.
func (s *Service) setCurrent(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = user
	for _, ch := range s.subs {
		select {
		case ch <- Event{User: user}:
		default:
			// Subscriber is not draining; drop rather than block.
		}
	}
}

// IssueToken creates a signed bearer token for the user.
func (s *Service) IssueToken(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		slog.Error("Service.IssueToken: signing failed", "error", err, "userID", user.ID)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the user id it carries.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
