// Package coordinator refreshes every placed widget with a new battery
// reading: it writes the reading and the update time into the widget state
// store and asks the renderer to redraw each widget.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/debuglog"
	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/widget"
)

// Enumerator lists the widgets that are currently placed.
type Enumerator interface {
	ActiveIDs(ctx context.Context) ([]widget.ID, error)
}

// Renderer redraws a widget from its latest state.
type Renderer interface {
	Render(ctx context.Context, id widget.ID, st widget.State) error
}

// Result summarizes one UpdateAll call.
type Result struct {
	Widgets  int `json:"widgets"`
	Written  int `json:"written"`
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
}

// Coordinator applies updates to all placed widgets.
type Coordinator struct {
	widgets  Enumerator
	states   store.Store
	renderer Renderer
	log      *debuglog.Log
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithDebugLog records every update in log.
func WithDebugLog(log *debuglog.Log) Option {
	return func(c *Coordinator) { c.log = log }
}

// New returns a Coordinator.
func New(widgets Enumerator, states store.Store, renderer Renderer, opts ...Option) *Coordinator {
	if widgets == nil || states == nil || renderer == nil {
		panic("coordinator dependencies cannot be nil")
	}

	c := &Coordinator{
		widgets:  widgets,
		states:   states,
		renderer: renderer,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpdateAll stamps every placed widget with the current time and, when
// explicit holds a valid percentage, stores it too. An absent or invalid
// percentage leaves the stored one untouched. Each widget is written and
// rendered independently: a failure on one widget does not stop the others,
// and no failure is returned to the caller.
func (c *Coordinator) UpdateAll(ctx context.Context, explicit widget.Percent) Result {
	now := c.now()
	nowMillis := now.UnixMilli()
	c.log.Append(fmt.Sprintf("update percent=%s", explicit), now)

	var res Result

	ids, err := c.widgets.ActiveIDs(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to enumerate widgets, skipping update")
		return res
	}
	if len(ids) == 0 {
		logrus.Debug("no widgets placed, nothing to update")
		return res
	}
	res.Widgets = len(ids)

	if _, ok := explicit.Get(); ok && !explicit.Valid() {
		logrus.WithField("percent", explicit).Warn("ignoring percentage outside [0, 100]")
	}

	mutate := func(st *widget.State) {
		// Keep the timestamp monotonic if the wall clock went backwards.
		if st.LastUpdatedMillis == nil || *st.LastUpdatedMillis < nowMillis {
			ts := nowMillis
			st.LastUpdatedMillis = &ts
		}
		if explicit.Valid() {
			p, _ := explicit.Get()
			st.Percent = &p
		}
	}

	for _, id := range ids {
		st, err := c.states.Write(ctx, id, mutate)
		if err != nil {
			logrus.WithError(err).WithField("widget", id).Error("failed to write widget state")
			res.Failed++
			continue
		}
		res.Written++

		if err := c.renderer.Render(ctx, id, st); err != nil {
			logrus.WithError(err).WithField("widget", id).Error("failed to render widget")
			res.Failed++
			continue
		}
		res.Rendered++
	}

	logrus.WithFields(logrus.Fields{
		"percent":  explicit,
		"widgets":  res.Widgets,
		"written":  res.Written,
		"rendered": res.Rendered,
		"failed":   res.Failed,
	}).Debug("widgets updated")

	return res
}
