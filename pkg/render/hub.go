package render

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/debuglog"
	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/widget"
)

// Event is the payload of an events.WidgetRender event.
type Event struct {
	Widget widget.ID    `json:"widget"`
	State  widget.State `json:"state"`
	View   View         `json:"view"`
	Ts     int64        `json:"ts"`
}

// Hub renders widgets by publishing their views on an event hub. Displays
// subscribe to the hub and redraw from the published view.
type Hub struct {
	events *events.EventHub
	log    *debuglog.Log

	// OnLoading is called when a widget is rendered without a percentage,
	// asking for a fresh battery sample. It returns a channel that is closed
	// once the sample request has finished, or nil. It is not called again
	// while a request is in flight.
	OnLoading func() <-chan struct{}

	loadingRequested atomic.Bool
}

// NewHub returns a Hub publishing on hub. log may be nil.
func NewHub(hub *events.EventHub, log *debuglog.Log) *Hub {
	return &Hub{events: hub, log: log}
}

// Render publishes the view of st for id.
func (h *Hub) Render(_ context.Context, id widget.ID, st widget.State) error {
	now := time.Now()
	v := Build(st)

	h.events.Publish(events.WidgetRender, Event{
		Widget: id,
		State:  st,
		View:   v,
		Ts:     now.UnixMilli(),
	})
	h.log.Append("render "+string(id), now)

	logrus.WithFields(logrus.Fields{
		"widget":  id,
		"loading": v.Loading,
		"label":   v.Label,
	}).Trace("widget rendered")

	if !v.Loading {
		return nil
	}
	if h.OnLoading != nil && h.loadingRequested.CompareAndSwap(false, true) {
		logrus.WithField("widget", id).Debug("widget has no percentage yet, requesting a sample")
		go h.requestSample()
	}
	return nil
}

func (h *Hub) requestSample() {
	defer h.loadingRequested.Store(false)

	done := h.OnLoading()
	if done == nil {
		return
	}
	<-done
}
