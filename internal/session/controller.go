// Package session binds identity events to the lifetime of the signed-in
// user's profile subscription.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/notify"
	"github.com/kalambet/pathway/internal/profile"
)

// ErrNotAuthenticated is returned by operations that need a loaded,
// signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the session lifecycle state.
type State int

const (
	Anonymous State = iota
	Loading
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the observable session. Profile is nil unless State is
// Authenticated.
type Snapshot struct {
	State   State
	User    *identity.User
	Profile *profile.Profile
}

// Controller tracks the signed-in user and the live view of their profile.
type Controller struct {
	provider identity.Provider
	profiles *profile.Manager
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	user         *identity.User
	prof         *profile.Profile
	gen          uint64
	stopListen   func()
	observers    map[uint64]*notify.Queue[Snapshot]
	nextObserver uint64
	stopAuth     func()
}

// NewController creates a controller. Call Start to begin following the
// provider.
func NewController(provider identity.Provider, profiles *profile.Manager) *Controller {
	return &Controller{
		provider:  provider,
		profiles:  profiles,
		logger:    slog.Default(),
		observers: make(map[uint64]*notify.Queue[Snapshot]),
	}
}

// Start subscribes to identity events. A user already signed in is loaded
// right away.
func (c *Controller) Start() {
	stop := c.provider.OnAuthStateChanged(c.handleUser)
	c.mu.Lock()
	c.stopAuth = stop
	c.mu.Unlock()
}

// Stop unsubscribes from identity events and closes the current profile
// subscription. The state is left as it was.
func (c *Controller) Stop() {
	c.mu.Lock()
	stopAuth := c.stopAuth
	c.stopAuth = nil
	c.mu.Unlock()
	// Waits out an in-flight identity event before tearing down.
	if stopAuth != nil {
		stopAuth()
	}

	c.mu.Lock()
	stopListen := c.stopListen
	c.stopListen = nil
	user := c.user
	c.gen++
	observers := c.observers
	c.observers = make(map[uint64]*notify.Queue[Snapshot])
	c.mu.Unlock()

	if stopListen != nil {
		stopListen()
	}
	if user != nil {
		c.profiles.Close(user.ID)
	}
	for _, q := range observers {
		q.Close()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) User() *identity.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

// Profile returns the visible profile, or nil unless Authenticated.
func (c *Controller) Profile() *profile.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyProfile(c.prof)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn for state changes. fn first receives the current
// snapshot. The returned func unregisters it.
func (c *Controller) OnChange(fn func(Snapshot)) func() {
	q := notify.NewQueue(fn)

	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = q
	q.Push(c.snapshotLocked())
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
			q.Close()
		})
	}
}

// Await blocks until the session is Authenticated and returns that
// snapshot. It fails with ErrNotAuthenticated when nobody is signed in,
// and keeps waiting while a sign-in the provider reported is still on its
// way to the controller.
func (c *Controller) Await(ctx context.Context) (Snapshot, error) {
	changed := make(chan struct{}, 1)
	cancel := c.OnChange(func(Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		snap := c.Snapshot()
		switch snap.State {
		case Authenticated:
			return snap, nil
		case Anonymous:
			if c.provider.CurrentUser() == nil {
				return Snapshot{}, ErrNotAuthenticated
			}
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// UpdateProfile merge-writes partial into the signed-in user's profile.
func (c *Controller) UpdateProfile(ctx context.Context, partial profile.Partial) error {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := c.user.ID
	c.mu.Unlock()

	return c.profiles.MergeWrite(ctx, userID, partial)
}

// handleUser runs on the provider's delivery goroutine, so calls never
// overlap.
func (c *Controller) handleUser(u *identity.User) {
	c.mu.Lock()
	prev := c.user
	if sameUser(prev, u) {
		c.mu.Unlock()
		return
	}
	stopListen := c.stopListen
	c.stopListen = nil
	c.gen++
	c.user = nil
	c.prof = nil
	c.state = Anonymous
	c.mu.Unlock()

	if prev != nil {
		if stopListen != nil {
			stopListen()
		}
		c.profiles.Close(prev.ID)
		c.logger.Info("session ended", "user_id", prev.ID)
	}

	c.mu.Lock()
	if u != nil {
		c.user = copyUser(u)
		c.state = Loading
	}
	gen := c.gen
	c.publishLocked()
	c.mu.Unlock()

	if u == nil {
		return
	}

	c.logger.Info("session started", "user_id", u.ID)
	if err := c.profiles.Open(context.Background(), u.ID, u.Email); err != nil {
		c.logger.Error("opening profile failed", "user_id", u.ID, "error", err)
		return
	}
	stop, err := c.profiles.Listen(u.ID, func(p profile.Profile) {
		c.onProfile(gen, p)
	})
	if err != nil {
		c.logger.Error("listening to profile failed", "user_id", u.ID, "error", err)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		stop()
		return
	}
	c.stopListen = stop
	c.mu.Unlock()
}

func (c *Controller) onProfile(gen uint64, p profile.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.prof = &p
	c.state = Authenticated
	c.publishLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, User: copyUser(c.user), Profile: copyProfile(c.prof)}
}

func (c *Controller) publishLocked() {
	for _, q := range c.observers {
		q.Push(c.snapshotLocked())
	}
}

func sameUser(a, b *identity.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func copyUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func copyProfile(p *profile.Profile) *profile.Profile {
	if p == nil {
		return nil
	}
	cp := p.Clone()
	return &cp
}
