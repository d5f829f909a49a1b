// Package sampler turns raw battery status snapshots into percentages.
package sampler

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrSamplingUnavailable is returned by sources that cannot provide a snapshot.
var ErrSamplingUnavailable = errors.New("battery sampling unavailable")

// Snapshot is a point-in-time battery status as reported by the host.
type Snapshot struct {
	Level int `json:"level"`
	Scale int `json:"scale"`
}

// Reading is a battery percentage derived from a Snapshot.
type Reading struct {
	Percent float64 `json:"percent"`
}

// Percent derives the charge percentage from s. It produces no reading when
// the snapshot is missing or its scale is not positive.
func Percent(s *Snapshot) (Reading, bool) {
	if s == nil || s.Scale <= 0 {
		return Reading{}, false
	}
	return Reading{Percent: float64(s.Level) * 100 / float64(s.Scale)}, true
}

// Source provides battery snapshots.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Sample takes a snapshot from src and derives a reading from it. Source
// failures are logged and reported as no reading.
func Sample(ctx context.Context, src Source) (Reading, bool) {
	if src == nil {
		return Reading{}, false
	}

	snap, err := src.Snapshot(ctx)
	if err != nil {
		logrus.WithError(err).Debug("battery snapshot unavailable")
		return Reading{}, false
	}

	r, ok := Percent(snap)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"level": snap.Level,
			"scale": snap.Scale,
		}).Debug("battery snapshot has no usable scale")
	}
	return r, ok
}
