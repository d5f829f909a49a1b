package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is cancelled or the daemon
// closes the stream. The returned channel is closed afterwards.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 16)

	go func() {
		defer close(out)

		resp, err := c.do(ctx, http.MethodGet, "/events", "")
		if err != nil {
			logrus.WithError(err).Error("failed to subscribe to daemon events")
			return
		}
		defer closeBody(resp)

		if resp.StatusCode != http.StatusOK {
			logrus.Errorf("failed to subscribe to daemon events: got %d", resp.StatusCode)
			return
		}

		if err := readEvents(ctx, resp.Body, out); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("event stream ended")
		}
	}()

	return out
}

// readEvents parses a text/event-stream body. Only the event and data
// fields are used; multiple data lines are joined with newlines.
func readEvents(ctx context.Context, r io.Reader, out chan<- events.Event) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var data []string
	flush := func() bool {
		defer func() {
			name = ""
			data = nil
		}()
		if len(data) == 0 {
			return true
		}
		if name == "" {
			name = "message"
		}
		ev := events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if !flush() {
				return ctx.Err()
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	flush()
	return nil
}
