package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/widget"
)

func forEachRegistry(t *testing.T, fn func(t *testing.T, r Registry, states store.Store)) {
	t.Run("memory", func(t *testing.T) {
		states := store.NewMemory()
		fn(t, NewMemory(states), states)
	})
	t.Run("sqlite", func(t *testing.T) {
		states, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		t.Cleanup(func() { _ = states.Close() })

		r, err := NewSQLite(states.DB(), states)
		if err != nil {
			t.Fatalf("NewSQLite() error = %v", err)
		}
		fn(t, r, states)
	})
}

func TestPlaceAndList(t *testing.T) {
	forEachRegistry(t, func(t *testing.T, r Registry, _ store.Store) {
		ctx := context.Background()

		ids, err := r.ActiveIDs(ctx)
		if err != nil {
			t.Fatalf("ActiveIDs() error = %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("ActiveIDs() = %v, want empty", ids)
		}

		a, err := r.Place(ctx, "desk")
		if err != nil {
			t.Fatalf("Place() error = %v", err)
		}
		b, err := r.Place(ctx, "panel")
		if err != nil {
			t.Fatalf("Place() error = %v", err)
		}
		if a.ID == b.ID {
			t.Fatalf("Place() returned duplicate id %s", a.ID)
		}

		infos, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("List() returned %d widgets, want 2", len(infos))
		}
		got := map[widget.ID]string{}
		for _, i := range infos {
			got[i.ID] = i.Name
		}
		if got[a.ID] != "desk" || got[b.ID] != "panel" {
			t.Fatalf("List() = %v", got)
		}
	})
}

func TestRemoveDeletesState(t *testing.T) {
	forEachRegistry(t, func(t *testing.T, r Registry, states store.Store) {
		ctx := context.Background()

		info, err := r.Place(ctx, "desk")
		if err != nil {
			t.Fatalf("Place() error = %v", err)
		}
		if _, err := states.Write(ctx, info.ID, func(s *widget.State) {
			p := 50.0
			s.Percent = &p
		}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if err := r.Remove(ctx, info.ID); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		st, err := states.Read(ctx, info.ID)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if st.Initialized() {
			t.Fatalf("state survived removal: %+v", st)
		}

		ids, err := r.ActiveIDs(ctx)
		if err != nil {
			t.Fatalf("ActiveIDs() error = %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("ActiveIDs() = %v, want empty", ids)
		}

		if err := r.Remove(ctx, info.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second Remove() error = %v, want ErrNotFound", err)
		}
	})
}

func TestGet(t *testing.T) {
	forEachRegistry(t, func(t *testing.T, r Registry, _ store.Store) {
		ctx := context.Background()

		if _, err := r.Get(ctx, "w-missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() of unknown widget error = %v, want ErrNotFound", err)
		}

		placed, err := r.Place(ctx, "desk")
		if err != nil {
			t.Fatalf("Place() error = %v", err)
		}
		got, err := r.Get(ctx, placed.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != placed.ID || got.Name != "desk" || !got.PlacedAt.Equal(placed.PlacedAt) {
			t.Fatalf("Get() = %+v, want %+v", got, placed)
		}

		if err := r.Remove(ctx, placed.ID); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := r.Get(ctx, placed.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
		}
	})
}
