package store

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/battmeter/battmeter/pkg/widget"
)

var _ Store = &Memory{}

type memoryEntry struct {
	mu    sync.Mutex
	state widget.State
}

// Memory is a Store kept in process memory. Each widget has its own lock, so
// writes to different widgets never wait for each other.
type Memory struct {
	mu      sync.Mutex
	entries map[widget.ID]*memoryEntry
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[widget.ID]*memoryEntry)}
}

func (m *Memory) entry(id widget.ID, create bool) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok && create {
		e = &memoryEntry{}
		m.entries[id] = e
	}
	return e
}

func (m *Memory) Read(ctx context.Context, id widget.ID) (widget.State, error) {
	if err := ctx.Err(); err != nil {
		return widget.State{}, pkgerrors.Wrapf(ErrStoreUnavailable, "read %s: %v", id, err)
	}

	e := m.entry(id, false)
	if e == nil {
		return widget.State{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

func (m *Memory) Write(ctx context.Context, id widget.ID, mut Mutator) (widget.State, error) {
	if err := ctx.Err(); err != nil {
		return widget.State{}, pkgerrors.Wrapf(ErrStoreUnavailable, "write %s: %v", id, err)
	}

	e := m.entry(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	mut(&next)
	e.state = next
	return next.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id widget.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}
