package types

import (
	"time"

	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/widget"
)

// WidgetStatus is a placed widget with its state and current view.
// This struct is shared between the daemon, the D-Bus service and the client.
type WidgetStatus struct {
	widget.Info
	State widget.State `json:"state"`
	View  render.View  `json:"view"`
}

// NewWidgetStatus builds the status of info from its stored state.
func NewWidgetStatus(info widget.Info, st widget.State) WidgetStatus {
	return WidgetStatus{Info: info, State: st, View: render.Build(st)}
}

// BatteryResponse is the reply to a battery snapshot report.
type BatteryResponse struct {
	Accepted bool    `json:"accepted"`
	Percent  float64 `json:"percent,omitempty"`
	Message  string  `json:"message"`
}

// ScheduleStatus describes the timer that triggers battery samples.
type ScheduleStatus struct {
	Schedule   string     `json:"schedule"`
	Next       *time.Time `json:"next,omitempty"`
	LastSample *time.Time `json:"lastSample,omitempty"`
	// ContinuousSamples counts the latest timer samples that ran on time.
	ContinuousSamples int `json:"continuousSamples"`
	// MissedSamples is set when the timer has not fired for more than two
	// intervals, e.g. after the system slept.
	MissedSamples bool `json:"missedSamples"`
}
