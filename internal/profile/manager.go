package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/pathway/internal/docstore"
	"github.com/kalambet/pathway/internal/notify"
)

var (
	// ErrNotOpen is returned for operations on a user whose profile is not
	// currently open.
	ErrNotOpen = errors.New("profile not open")
	// ErrNotLoaded is returned by writes issued before the first snapshot
	// of an open profile has arrived.
	ErrNotLoaded = errors.New("profile not loaded yet")
	// ErrPersistence wraps a failed write. The optimistic change has already
	// been rolled back when it is returned.
	ErrPersistence = errors.New("profile write failed")
)

const defaultCreateTimeout = 10 * time.Second

// Listener receives the visible profile. Calls for one listener are
// sequential and never overlap.
type Listener func(Profile)

// overlay is an optimistic write not yet confirmed by the store, tagged with
// the confirmed version it was applied on top of.
type overlay struct {
	seq     uint64
	base    int64
	partial Partial
}

type subscription struct {
	userID string
	email  string

	mu               sync.Mutex
	closed           bool
	confirmed        *Profile
	confirmedVersion int64
	overlays         []overlay
	nextSeq          uint64
	current          *Profile
	listeners        map[uint64]*notify.Queue[Profile]
	nextListener     uint64
	unsubscribe      func()
}

// Manager keeps live profile subscriptions per signed-in user and applies
// field-level merge writes with optimistic local state.
//
// The visible profile is the last snapshot pushed by the store with every
// pending write overlaid in issue order. A pushed snapshot whose version is
// newer than the version a pending write was based on replaces that write's
// overlay, so remote pushes always win.
type Manager struct {
	store         docstore.Store
	logger        *slog.Logger
	createTimeout time.Duration

	creates singleflight.Group
	tasks   sync.WaitGroup

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewManager creates a Manager on top of store.
func NewManager(store docstore.Store) *Manager {
	return &Manager{
		store:         store,
		logger:        slog.Default(),
		createTimeout: defaultCreateTimeout,
		subs:          make(map[string]*subscription),
	}
}

// Open starts the live subscription for userID. Opening a user that is
// already open is a no-op. If the stored document is missing, a default
// profile is created in the background; creation failures are logged only.
func (m *Manager) Open(ctx context.Context, userID, email string) error {
	m.mu.Lock()
	if _, ok := m.subs[userID]; ok {
		m.mu.Unlock()
		return nil
	}
	sub := &subscription{
		userID:    userID,
		email:     email,
		listeners: make(map[uint64]*notify.Queue[Profile]),
	}
	m.subs[userID] = sub
	m.mu.Unlock()

	unsub, err := m.store.Subscribe(ctx, Collection, userID, func(snap docstore.Snapshot) {
		m.onSnapshot(sub, snap)
	})
	if err != nil {
		m.mu.Lock()
		if m.subs[userID] == sub {
			delete(m.subs, userID)
		}
		m.mu.Unlock()
		return fmt.Errorf("subscribing to profile %s: %w", userID, err)
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		unsub()
		return nil
	}
	sub.unsubscribe = unsub
	sub.mu.Unlock()

	m.logger.Debug("profile subscription opened", "user_id", userID)
	return nil
}

// Close ends the subscription for userID. No listener is invoked after Close
// returns. Close must not be called from one of the user's own listeners.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	sub := m.subs[userID]
	delete(m.subs, userID)
	m.mu.Unlock()
	if sub == nil {
		return
	}
	m.closeSub(sub)
	m.logger.Debug("profile subscription closed", "user_id", userID)
}

func (m *Manager) closeSub(sub *subscription) {
	sub.mu.Lock()
	sub.closed = true
	listeners := sub.listeners
	sub.listeners = nil
	unsub := sub.unsubscribe
	sub.unsubscribe = nil
	sub.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, q := range listeners {
		q.Close()
	}
}

// Shutdown closes every open subscription and waits for background default
// profile creation to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for id, sub := range m.subs {
		subs = append(subs, sub)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		m.closeSub(sub)
	}
	m.tasks.Wait()
}

// IsOpen reports whether userID has a live subscription.
func (m *Manager) IsOpen(userID string) bool {
	return m.lookup(userID) != nil
}

// Current returns the visible profile. The second result is false while the
// first snapshot has not arrived or the user is not open.
func (m *Manager) Current(userID string) (Profile, bool) {
	sub := m.lookup(userID)
	if sub == nil {
		return Profile{}, false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || sub.current == nil {
		return Profile{}, false
	}
	return sub.current.Clone(), true
}

// Listen registers fn for visible profile changes. If a profile is already
// visible fn receives it first. The returned cancel func is idempotent.
func (m *Manager) Listen(userID string, fn Listener) (func(), error) {
	sub := m.lookup(userID)
	if sub == nil {
		return nil, ErrNotOpen
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return nil, ErrNotOpen
	}
	id := sub.nextListener
	sub.nextListener++
	q := notify.NewQueue(func(p Profile) { fn(p) })
	sub.listeners[id] = q
	if sub.current != nil {
		q.Push(sub.current.Clone())
	}
	sub.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			delete(sub.listeners, id)
			sub.mu.Unlock()
			q.Close()
		})
	}, nil
}

// MergeWrite applies partial to the visible profile immediately and writes
// only the named fields to the store. On failure the optimistic change is
// rolled back and an error wrapping ErrPersistence is returned. Writes are
// refused with ErrNotLoaded until the profile has loaded.
func (m *Manager) MergeWrite(ctx context.Context, userID string, partial Partial) error {
	sub := m.lookup(userID)
	if sub == nil {
		return ErrNotOpen
	}
	if partial.IsEmpty() {
		return nil
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return ErrNotOpen
	}
	if sub.confirmed == nil {
		sub.mu.Unlock()
		return ErrNotLoaded
	}
	seq := sub.nextSeq
	sub.nextSeq++
	sub.overlays = append(sub.overlays, overlay{seq: seq, base: sub.confirmedVersion, partial: partial})
	sub.publishLocked()
	sub.mu.Unlock()

	// A write that lands before the default profile is created seeds it, so
	// the document never holds only the written fields.
	opts := docstore.PutOptions{Merge: true, Defaults: Default(sub.email).fields()}
	if err := m.store.Put(ctx, Collection, userID, partial.fields(), opts); err != nil {
		sub.mu.Lock()
		if sub.removeOverlay(seq) && !sub.closed {
			sub.publishLocked()
		}
		sub.mu.Unlock()
		m.logger.Warn("profile write failed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (m *Manager) lookup(userID string) *subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[userID]
}

func (m *Manager) onSnapshot(sub *subscription, snap docstore.Snapshot) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}

	var create *Profile
	if !snap.Exists {
		def := Default(sub.email)
		sub.confirmed = &def
		sub.confirmedVersion = 0
		// Versions restart once a document is gone.
		sub.overlays = nil
		create = &def
	} else {
		var p Profile
		if err := snap.Decode(&p); err != nil {
			sub.mu.Unlock()
			m.logger.Warn("ignoring undecodable profile snapshot", "user_id", sub.userID, "version", snap.Version, "error", err)
			return
		}
		p = p.Clone()
		sub.confirmed = &p
		sub.confirmedVersion = snap.Version
		kept := sub.overlays[:0]
		for _, o := range sub.overlays {
			if o.base >= snap.Version {
				kept = append(kept, o)
			}
		}
		sub.overlays = kept
	}
	sub.publishLocked()
	sub.mu.Unlock()

	if create != nil {
		m.createDefault(sub.userID, *create)
	}
}

// createDefault writes def for userID unless a document exists by the time
// the write commits. Concurrent requests for the same user share one attempt.
func (m *Manager) createDefault(userID string, def Profile) {
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		_, err, _ := m.creates.Do(userID, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), m.createTimeout)
			defer cancel()
			return nil, m.store.Put(ctx, Collection, userID, def.fields(), docstore.PutOptions{CreateOnly: true})
		})
		if err != nil {
			m.logger.Warn("default profile creation failed", "user_id", userID, "error", err)
			return
		}
	}()
}

func (s *subscription) removeOverlay(seq uint64) bool {
	for i, o := range s.overlays {
		if o.seq == seq {
			s.overlays = append(s.overlays[:i], s.overlays[i+1:]...)
			return true
		}
	}
	return false
}

// publishLocked recomputes the visible profile and queues it for every
// listener. Callers hold s.mu.
func (s *subscription) publishLocked() {
	if s.confirmed == nil {
		s.current = nil
		return
	}
	p := s.confirmed.Clone()
	for _, o := range s.overlays {
		o.partial.Apply(&p)
	}
	s.current = &p
	for _, q := range s.listeners {
		q.Push(p.Clone())
	}
}
