package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/flowstate-coach/flowstate/internal/store"
)

func newTestService() *Service {
	s := store.NewInMemoryStore()
	return NewService(s, s, []byte("test-secret"))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService()

	user, err := svc.Register("a@b.c", "secret", "Ada")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.ID == "" || user.Email != "a@b.c" || user.Name != "Ada" {
		t.Errorf("registered user fields wrong: %+v", user)
	}
	if user.Streak.Count != 0 {
		t.Errorf("registration must initialize a zero streak, got %d", user.Streak.Count)
	}

	if _, err := svc.Register("a@b.c", "other", "Bob"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	if err := svc.Logout(); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	cur, err := svc.CurrentUser()
	if err != nil || cur != nil {
		t.Errorf("expected no current user after logout, got %+v %v", cur, err)
	}

	logged, err := svc.Login("a@b.c", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if logged.ID != user.ID {
		t.Errorf("login returned a different identity: %s vs %s", logged.ID, user.ID)
	}
	cur, _ = svc.CurrentUser()
	if cur == nil || cur.ID != user.ID {
		t.Errorf("current user not set after login: %+v", cur)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := newTestService()
	svc.Register("a@b.c", "secret", "Ada")

	if _, err := svc.Login("a@b.c", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Login("nobody@b.c", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginInitializesStreakLazily(t *testing.T) {
	// A user created directly in the store, without Register, has no streak
	// record yet; login must create one rather than fail.
	backing := store.NewInMemoryStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	seeded, err := backing.CreateUser("b@c.d", string(hash), "Bea")
	if err != nil {
		t.Fatal(err)
	}

	svc := NewService(backing, backing, []byte("test-secret"))
	user, err := svc.Login("b@c.d", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatalf("login returned %s, want %s", user.ID, seeded.ID)
	}
	if _, err := backing.GetStreak(user.ID); err != nil {
		t.Errorf("streak record must exist after login: %v", err)
	}
}

func TestSubscribeBroadcastsAuthChanges(t *testing.T) {
	svc := newTestService()
	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	user, err := svc.Register("a@b.c", "secret", "Ada")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	ev := <-events
	if ev.User == nil || ev.User.ID != user.ID {
		t.Errorf("expected login event for %s, got %+v", user.ID, ev.User)
	}

	svc.Logout()
	ev = <-events
	if ev.User != nil {
		t.Errorf("expected a nil-user event on logout, got %+v", ev.User)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	svc := newTestService()
	events, unsubscribe := svc.Subscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Error("channel must be closed after unsubscribe")
	}
	// Double unsubscribe must not panic.
	unsubscribe()
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService()
	user, err := svc.Register("a@b.c", "secret", "Ada")
	if err != nil {
		t.Fatal(err)
	}

	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	subject, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}
	if subject != user.ID {
		t.Errorf("token subject = %s, want %s", subject, user.ID)
	}

	if _, err := svc.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	other := NewService(store.NewInMemoryStore(), store.NewInMemoryStore(), []byte("different-secret"))
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret must be rejected, got %v", err)
	}
}
