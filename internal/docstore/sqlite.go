package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"github.com/kalambet/pathway/internal/notify"
	"github.com/kalambet/pathway/internal/storage"
)

// Backend is the storage the SQLite document store persists to.
// Implemented by storage.Store.
type Backend interface {
	GetDocument(ctx context.Context, collection, id string) (storage.Document, error)
	UpdateDocument(ctx context.Context, collection, id string, fn func(current []byte, exists bool) ([]byte, error)) (storage.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
}

// errExists aborts a create-only write inside the update transaction.
var errExists = errors.New("document exists")

type docKey struct {
	collection string
	id         string
}

type watcher struct {
	queue *notify.Queue[Snapshot]
}

// SQLite is a Store persisted in SQLite with in-process change feeds.
// Writes are serialized so that subscribers observe versions in commit order.
type SQLite struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	watchers map[docKey]map[*watcher]struct{}
}

// NewSQLite creates a document store on top of backend.
func NewSQLite(backend Backend) *SQLite {
	return &SQLite{
		backend:  backend,
		logger:   slog.Default(),
		watchers: make(map[docKey]map[*watcher]struct{}),
	}
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	doc, err := s.backend.GetDocument(ctx, collection, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{Collection: collection, ID: id}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return snapshotOf(doc), nil
}

func (s *SQLite) Put(ctx context.Context, collection, id string, fields map[string]any, opts PutOptions) error {
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	seed, err := encodeFields(opts.Defaults)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.backend.UpdateDocument(ctx, collection, id, func(current []byte, exists bool) ([]byte, error) {
		if opts.CreateOnly && exists {
			return nil, errExists
		}
		merged := make(map[string]json.RawMessage)
		if !exists {
			for k, v := range seed {
				merged[k] = v
			}
		}
		if opts.Merge && exists && len(current) > 0 {
			if err := json.Unmarshal(current, &merged); err != nil {
				return nil, fmt.Errorf("decoding stored document: %w", err)
			}
		}
		for k, v := range encoded {
			merged[k] = v
		}
		return json.Marshal(merged)
	})
	if errors.Is(err, errExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", collection, id, err)
	}

	s.publishLocked(snapshotOf(doc))
	return nil
}

// Delete removes a document and pushes an absent snapshot to subscribers.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteDocument(ctx, collection, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	s.publishLocked(Snapshot{Collection: collection, ID: id})
	return nil
}

func (s *SQLite) Subscribe(ctx context.Context, collection, id string, fn Listener) (func(), error) {
	key := docKey{collection: collection, id: id}
	w := &watcher{queue: notify.NewQueue(func(snap Snapshot) { fn(snap) })}

	s.mu.Lock()
	// The initial read happens under the write lock so no commit can slip
	// between it and registration.
	initial, err := s.Get(ctx, collection, id)
	if err != nil {
		s.mu.Unlock()
		w.queue.Close()
		return nil, err
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[*watcher]struct{})
	}
	s.watchers[key][w] = struct{}{}
	w.queue.Push(initial)
	s.mu.Unlock()

	s.logger.Debug("document subscription opened", "collection", collection, "id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[key], w)
			if len(s.watchers[key]) == 0 {
				delete(s.watchers, key)
			}
			s.mu.Unlock()
			w.queue.Close()
			s.logger.Debug("document subscription closed", "collection", collection, "id", id)
		})
	}, nil
}

// Subscribers returns the number of live subscriptions on a document.
func (s *SQLite) Subscribers(collection, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[docKey{collection: collection, id: id}])
}

func (s *SQLite) publishLocked(snap Snapshot) {
	for w := range s.watchers[docKey{collection: snap.Collection, id: snap.ID}] {
		w.queue.Push(snap)
	}
}

func encodeFields(fields map[string]any) (map[string]json.RawMessage, error) {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshalling field %q: %w", k, err)
		}
		encoded[k] = b
	}
	return encoded, nil
}

func snapshotOf(doc storage.Document) Snapshot {
	return Snapshot{
		Collection: doc.Collection,
		ID:         doc.ID,
		Exists:     true,
		Version:    doc.Version,
		Data:       json.RawMessage(doc.Data),
	}
}
