package events

import "encoding/json"

// Event name constants
const (
	WidgetRender  = "widget.render"
	WidgetPlaced  = "widget.placed"
	WidgetRemoved = "widget.removed"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// WidgetEvent is the typed payload for widget.placed and widget.removed.
type WidgetEvent struct {
	Widget string `json:"widget"`
	Name   string `json:"name,omitempty"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[render.Event](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Widget, payload.View.Label)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
