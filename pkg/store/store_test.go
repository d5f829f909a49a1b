package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/battmeter/battmeter/pkg/widget"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openTestSQLite(t)) })
}

func setBoth(p float64, ts int64) Mutator {
	return func(s *widget.State) {
		s.Percent = &p
		s.LastUpdatedMillis = &ts
	}
}

func TestReadAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		st, err := s.Read(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if st.Percent != nil || st.LastUpdatedMillis != nil {
			t.Fatalf("Read() = %+v, want empty state", st)
		}
	})
}

func TestWriteRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		got, err := s.Write(ctx, "A", setBoth(45.5, 1000))
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if *got.Percent != 45.5 || *got.LastUpdatedMillis != 1000 {
			t.Fatalf("Write() returned %+v", got)
		}

		st, err := s.Read(ctx, "A")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if st.Percent == nil || *st.Percent != 45.5 {
			t.Fatalf("Percent = %v, want 45.5", st.Percent)
		}
		if st.LastUpdatedMillis == nil || *st.LastUpdatedMillis != 1000 {
			t.Fatalf("LastUpdatedMillis = %v, want 1000", st.LastUpdatedMillis)
		}

		other, err := s.Read(ctx, "B")
		if err != nil {
			t.Fatalf("Read(B) error = %v", err)
		}
		if other.Initialized() {
			t.Fatalf("write to A leaked into B: %+v", other)
		}
	})
}

func TestWriteKeepsUntouchedKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Write(ctx, "A", setBoth(30, 1000)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if _, err := s.Write(ctx, "A", func(st *widget.State) {
			ts := int64(2000)
			st.LastUpdatedMillis = &ts
		}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		st, err := s.Read(ctx, "A")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if *st.Percent != 30 || *st.LastUpdatedMillis != 2000 {
			t.Fatalf("Read() = %v/%v, want 30/2000", *st.Percent, *st.LastUpdatedMillis)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Write(ctx, "A", setBoth(30, 1000)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if err := s.Delete(ctx, "A"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		st, err := s.Read(ctx, "A")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if st.Initialized() || st.LastUpdatedMillis != nil {
			t.Fatalf("Read() after Delete = %+v, want empty", st)
		}
	})
}

func TestConcurrentWritesSerialized(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const writers = 20

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Write(ctx, "A", func(st *widget.State) {
					var n float64
					if st.Percent != nil {
						n = *st.Percent
					}
					n++
					st.Percent = &n
				})
				if err != nil {
					t.Errorf("Write() error = %v", err)
				}
			}()
		}
		wg.Wait()

		st, err := s.Read(ctx, "A")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if st.Percent == nil || *st.Percent != writers {
			t.Fatalf("Percent = %v, want %d (lost update)", st.Percent, writers)
		}
	})
}

func TestNoTornReads(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Write(ctx, "A", setBoth(0, 0)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				st, err := s.Read(ctx, "A")
				if err != nil {
					t.Errorf("Read() error = %v", err)
					return
				}
				if st.Percent == nil || st.LastUpdatedMillis == nil {
					t.Errorf("Read() observed a missing field: %+v", st)
					return
				}
				if int64(*st.Percent) != *st.LastUpdatedMillis {
					t.Errorf("torn read: percent=%v lastUpdatedMillis=%v", *st.Percent, *st.LastUpdatedMillis)
					return
				}
			}
		}()

		for i := 1; i <= 50; i++ {
			if _, err := s.Write(ctx, "A", setBoth(float64(i), int64(i))); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
		}
		close(done)
		wg.Wait()
	})
}
