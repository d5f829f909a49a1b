// Package widget holds the types shared by the store, the coordinator, the
// renderer and the daemon API: widget identities and their persisted state.
package widget

import (
	"encoding/json"
	"time"
)

// ID is the opaque handle assigned by the registry when a widget is placed.
type ID string

// Persisted keys of a widget's state.
const (
	KeyPercent           = "percent"
	KeyLastUpdatedMillis = "lastUpdatedMillis"
)

// State is the persisted state of one widget. Nil fields mean the widget has
// never been updated with that value.
type State struct {
	Percent           *float64 `json:"percent,omitempty"`
	LastUpdatedMillis *int64   `json:"lastUpdatedMillis,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	var c State
	if s.Percent != nil {
		p := *s.Percent
		c.Percent = &p
	}
	if s.LastUpdatedMillis != nil {
		t := *s.LastUpdatedMillis
		c.LastUpdatedMillis = &t
	}
	return c
}

// Initialized reports whether a percentage has ever been stored.
func (s State) Initialized() bool {
	return s.Percent != nil
}

// LastUpdated returns the last update time, or the zero time if absent.
func (s State) LastUpdated() time.Time {
	if s.LastUpdatedMillis == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.LastUpdatedMillis)
}

// Info describes a placed widget.
type Info struct {
	ID       ID        `json:"id"`
	Name     string    `json:"name"`
	PlacedAt time.Time `json:"placedAt"`
}

// Percent is an optional battery percentage.
type Percent struct {
	value float64
	set   bool
}

// Some returns a present Percent.
func Some(v float64) Percent { return Percent{value: v, set: true} }

// None returns an absent Percent.
func None() Percent { return Percent{} }

// Get returns the value and whether it is present.
func (p Percent) Get() (float64, bool) { return p.value, p.set }

// Valid reports whether p is present and within [0, 100].
func (p Percent) Valid() bool {
	return p.set && p.value >= 0 && p.value <= 100
}

func (p Percent) String() string {
	if !p.set {
		return "none"
	}
	b, _ := json.Marshal(p.value)
	return string(b)
}

// MarshalJSON encodes an absent Percent as null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON decodes null as an absent Percent.
func (p *Percent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Some(v)
	return nil
}
