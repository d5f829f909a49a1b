// Package store persists per-widget state.
package store

import (
	"context"
	"errors"

	"github.com/battmeter/battmeter/pkg/widget"
)

// ErrStoreUnavailable wraps every persistence failure reported by a Store.
var ErrStoreUnavailable = errors.New("widget state store unavailable")

// Mutator changes a widget's state in place during a Write.
type Mutator func(s *widget.State)

// Store is a durable key-value store holding one widget.State per widget.
//
// Write is an atomic read-modify-write: writes to the same widget are
// serialized, the last completed write wins, and a concurrent Read observes
// either the state before or after a Write, never a mix of both.
type Store interface {
	// Read returns the persisted state, with absent fields if nothing was
	// written yet.
	Read(ctx context.Context, id widget.ID) (widget.State, error)
	// Write applies m to the current state of id and persists the result.
	Write(ctx context.Context, id widget.ID, m Mutator) (widget.State, error)
	// Delete drops all state of id.
	Delete(ctx context.Context, id widget.ID) error
}
