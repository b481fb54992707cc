package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/pathway/internal/docstore"
	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/notify"
	"github.com/kalambet/pathway/internal/profile"
	"github.com/kalambet/pathway/internal/storage"
)

// --- Mock provider ---

type mockProvider struct {
	mu        sync.Mutex
	current   *identity.User
	observers map[*notify.Queue[*identity.User]]struct{}
}

func newMockProvider() *mockProvider {
	return &mockProvider{observers: make(map[*notify.Queue[*identity.User]]struct{})}
}

func (p *mockProvider) OnAuthStateChanged(fn func(*identity.User)) func() {
	q := notify.NewQueue(fn)
	p.mu.Lock()
	p.observers[q] = struct{}{}
	q.Push(p.current)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.observers, q)
		p.mu.Unlock()
		q.Close()
	}
}

func (p *mockProvider) set(u *identity.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = u
	for q := range p.observers {
		q.Push(u)
	}
}

func (p *mockProvider) SignIn(_ context.Context, email, _ string) (*identity.User, error) {
	u := &identity.User{ID: "id-" + email, Email: email}
	p.set(u)
	return u, nil
}

func (p *mockProvider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	return p.SignIn(ctx, email, password)
}

func (p *mockProvider) SignOut(context.Context) error {
	p.set(nil)
	return nil
}

func (p *mockProvider) CurrentUser() *identity.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// --- Helpers ---

type fixture struct {
	provider *mockProvider
	profiles *profile.Manager
	docs     *docstore.SQLite
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	docs := docstore.NewSQLite(s)
	f := &fixture{
		provider: newMockProvider(),
		profiles: profile.NewManager(docs),
		docs:     docs,
	}
	f.ctrl = NewController(f.provider, f.profiles)
	f.ctrl.Start()
	t.Cleanup(func() {
		f.ctrl.Stop()
		f.profiles.Shutdown()
	})
	return f
}

func waitState(t *testing.T, c *Controller, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.Snapshot(); snap.State == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, have %s", want, c.State())
	return Snapshot{}
}

// --- Tests ---

func TestController_StartsAnonymous(t *testing.T) {
	f := newFixture(t)
	if got := f.ctrl.State(); got != Anonymous {
		t.Errorf("State = %s, want anonymous", got)
	}
	if f.ctrl.Profile() != nil || f.ctrl.User() != nil {
		t.Error("anonymous session exposes a user or profile")
	}
}

func TestController_SignInLoadsProfile(t *testing.T) {
	f := newFixture(t)
	f.provider.SignIn(context.Background(), "a@b.co", "")

	snap := waitState(t, f.ctrl, Authenticated)
	if snap.User == nil || snap.User.ID != "id-a@b.co" {
		t.Errorf("User = %+v", snap.User)
	}
	if snap.Profile == nil || snap.Profile.Name != "a@b.co" || snap.Profile.Grade != "12" {
		t.Errorf("Profile = %+v, want default", snap.Profile)
	}
}

func TestController_SignOutClosesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.SignIn(ctx, "a@b.co", "")
	waitState(t, f.ctrl, Authenticated)

	f.provider.SignOut(ctx)
	waitState(t, f.ctrl, Anonymous)

	if f.ctrl.Profile() != nil {
		t.Error("Profile should be nil after sign-out")
	}
	if f.profiles.IsOpen("id-a@b.co") {
		t.Error("profile subscription still open after sign-out")
	}
}

func TestController_SwitchUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.SignIn(ctx, "a@b.co", "")
	waitState(t, f.ctrl, Authenticated)

	f.provider.SignIn(ctx, "c@d.co", "")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := f.ctrl.Snapshot()
		if snap.State == Authenticated && snap.User.ID == "id-c@d.co" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := f.ctrl.Snapshot()
	if snap.State != Authenticated || snap.User.ID != "id-c@d.co" {
		t.Fatalf("snapshot = %+v, want authenticated as c@d.co", snap)
	}
	if snap.Profile.Name != "c@d.co" {
		t.Errorf("profile name = %q, want c@d.co", snap.Profile.Name)
	}
	if f.profiles.IsOpen("id-a@b.co") {
		t.Error("previous user's subscription was not closed")
	}
}

func TestController_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grade := "11"
	if err := f.ctrl.UpdateProfile(ctx, profile.Partial{Grade: &grade}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("UpdateProfile while anonymous = %v, want ErrNotAuthenticated", err)
	}

	f.provider.SignIn(ctx, "a@b.co", "")
	waitState(t, f.ctrl, Authenticated)
	if err := f.ctrl.UpdateProfile(ctx, profile.Partial{Grade: &grade}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p := f.ctrl.Profile(); p == nil || p.Grade != "11" {
		// The optimistic value reaches the controller through the listener.
		time.Sleep(50 * time.Millisecond)
		if p = f.ctrl.Profile(); p == nil || p.Grade != "11" {
			t.Errorf("Profile after update = %+v", p)
		}
	}
}

func TestController_OnChangeSequence(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var states []State
	stop := f.ctrl.OnChange(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})
	defer stop()

	f.provider.SignIn(context.Background(), "a@b.co", "")
	waitState(t, f.ctrl, Authenticated)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []State{Anonymous, Loading, Authenticated}
	if len(states) < len(want) {
		t.Fatalf("states = %v, want prefix %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestController_Await(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.Await(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Await while anonymous = %v, want ErrNotAuthenticated", err)
	}

	f.provider.SignIn(context.Background(), "a@b.co", "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// The controller may not have seen the sign-in yet; Await covers that gap.
	snap, err := f.ctrl.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if snap.Profile == nil {
		t.Error("Await returned without a profile")
	}
}
