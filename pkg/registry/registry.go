// Package registry keeps track of placed widgets. It is the host side that
// assigns widget identities and destroys their state when they are removed.
package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/battmeter/battmeter/pkg/widget"
)

// ErrNotFound is returned for a widget that was never placed or was removed.
var ErrNotFound = errors.New("widget not found")

// Registry assigns and enumerates widget identities.
type Registry interface {
	// Place registers a new widget and returns its identity.
	Place(ctx context.Context, name string) (widget.Info, error)
	// Remove unregisters a widget and deletes its persisted state.
	Remove(ctx context.Context, id widget.ID) error
	// Get returns the widget placed as id, or ErrNotFound.
	Get(ctx context.Context, id widget.ID) (widget.Info, error)
	// List returns all placed widgets ordered by placement time.
	List(ctx context.Context) ([]widget.Info, error)
	// ActiveIDs returns the identities of all placed widgets.
	ActiveIDs(ctx context.Context) ([]widget.ID, error)
}

func newID() widget.ID {
	return widget.ID("w-" + strings.SplitN(uuid.NewString(), "-", 2)[0])
}

func ids(infos []widget.Info) []widget.ID {
	out := make([]widget.ID, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.ID)
	}
	return out
}
