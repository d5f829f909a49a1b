package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/widget"
)

var _ Registry = &Memory{}

// Memory is an in-process Registry.
type Memory struct {
	mu      sync.RWMutex
	widgets map[widget.ID]widget.Info
	states  store.Store
}

// NewMemory returns an empty Memory registry that deletes state from states
// when a widget is removed.
func NewMemory(states store.Store) *Memory {
	return &Memory{
		widgets: make(map[widget.ID]widget.Info),
		states:  states,
	}
}

func (m *Memory) Place(_ context.Context, name string) (widget.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := widget.Info{ID: newID(), Name: name, PlacedAt: time.Now().Round(0)}
	for {
		if _, ok := m.widgets[info.ID]; !ok {
			break
		}
		info.ID = newID()
	}
	m.widgets[info.ID] = info
	return info, nil
}

func (m *Memory) Remove(ctx context.Context, id widget.ID) error {
	m.mu.Lock()
	_, ok := m.widgets[id]
	delete(m.widgets, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if m.states != nil {
		return m.states.Delete(ctx, id)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id widget.ID) (widget.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.widgets[id]
	if !ok {
		return widget.Info{}, ErrNotFound
	}
	return info, nil
}

func (m *Memory) List(_ context.Context) ([]widget.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]widget.Info, 0, len(m.widgets))
	for _, i := range m.widgets {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].PlacedAt.Equal(out[b].PlacedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].PlacedAt.Before(out[b].PlacedAt)
	})
	return out, nil
}

func (m *Memory) ActiveIDs(ctx context.Context) ([]widget.ID, error) {
	infos, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return ids(infos), nil
}
