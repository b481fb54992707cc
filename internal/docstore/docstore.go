// Package docstore defines the key-addressed document store the profile layer
// synchronizes against: point reads, merge writes, and live subscriptions.
package docstore

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
)

// ErrCircuitOpen is returned when the store is being short-circuited after
// repeated failures.
var ErrCircuitOpen = errors.New("document store unavailable")

// Snapshot is the complete observed state of one document.
type Snapshot struct {
	Collection string
	ID         string
	Exists     bool
	// Version is assigned by the store and grows with every committed
	// write. It is 0 when the document does not exist.
	Version int64
	Data    json.RawMessage
}

// Decode unmarshals the document body into v. It is a no-op for absent documents.
func (s Snapshot) Decode(v any) error {
	if !s.Exists || len(s.Data) == 0 {
		return nil
	}
	return json.Unmarshal(s.Data, v)
}

// PutOptions controls how Put combines fields with the stored document.
type PutOptions struct {
	// Merge keeps top-level fields that are not named in the write. Named
	// fields are replaced wholesale; nested values are not deep-merged.
	Merge bool
	// CreateOnly writes only when the document does not exist yet. When it
	// does, Put is a no-op: nothing is stored and nothing is pushed.
	CreateOnly bool
	// Defaults seeds a document that does not exist yet; fields named in the
	// write still win. Ignored when the document exists.
	Defaults map[string]any
}

// Listener receives snapshots pushed by a subscription.
type Listener func(Snapshot)

// Store is the document store contract.
type Store interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	Put(ctx context.Context, collection, id string, fields map[string]any, opts PutOptions) error
	// Subscribe delivers the current snapshot, then one snapshot per
	// committed change, in commit order, until the returned function is
	// called.
	Subscribe(ctx context.Context, collection, id string, fn Listener) (unsubscribe func(), err error)
}
