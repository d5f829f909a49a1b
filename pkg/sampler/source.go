package sampler

import (
	"context"
	"math"
	"sync"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
)

var _ Source = &SystemSource{}

// SystemSource reads the machine's batteries. Multiple batteries are summed
// into a single snapshot, using mWh for both level and scale.
type SystemSource struct {
	getAll func() ([]*battery.Battery, error)
}

// NewSystemSource returns a Source backed by the operating system's battery
// interface.
func NewSystemSource() *SystemSource {
	return &SystemSource{getAll: battery.GetAll}
}

func (s *SystemSource) Snapshot(_ context.Context) (*Snapshot, error) {
	batteries, err := s.getAll()
	if len(batteries) == 0 {
		if err != nil {
			return nil, pkgerrors.Wrapf(ErrSamplingUnavailable, "failed to read batteries: %v", err)
		}
		return nil, pkgerrors.Wrap(ErrSamplingUnavailable, "no batteries found")
	}

	var current, full float64
	usable := 0
	for _, bat := range batteries {
		// Partial errors leave some batteries nil or without a capacity.
		if bat == nil || bat.Full <= 0 {
			continue
		}
		current += bat.Current
		full += bat.Full
		usable++
	}
	if usable == 0 {
		return nil, pkgerrors.Wrap(ErrSamplingUnavailable, "no battery reports a full capacity")
	}

	return &Snapshot{
		Level: int(math.Round(current)),
		Scale: int(math.Round(full)),
	}, nil
}

var _ Source = &StaticSource{}

// StaticSource always returns the last snapshot set on it. A nil snapshot
// makes it unavailable.
type StaticSource struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStaticSource returns a StaticSource holding snap.
func NewStaticSource(snap *Snapshot) *StaticSource {
	return &StaticSource{snap: snap}
}

// Set replaces the held snapshot.
func (s *StaticSource) Set(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *StaticSource) Snapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snap == nil {
		return nil, ErrSamplingUnavailable
	}
	c := *s.snap
	return &c, nil
}
