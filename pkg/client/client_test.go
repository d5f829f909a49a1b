package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/battmeter/battmeter/pkg/events"
)

// serveUnix serves h on a unix socket and returns its path.
func serveUnix(t *testing.T, h http.Handler) string {
	t.Helper()

	// Keep the path short, unix socket paths are limited to ~100 bytes.
	dir, err := os.MkdirTemp("", "bm")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "d.sock")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return path
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetVersion()
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("GetVersion() error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestSendStatusCodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `"v1.2.3"`)
	})
	mux.HandleFunc("/widgets/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			http.Error(w, `"404 not found"`, http.StatusNotFound)
			return
		}
		http.Error(w, `"boom"`, http.StatusInternalServerError)
	})
	c := NewClient(serveUnix(t, mux))

	v, err := c.GetVersion()
	if err != nil || v != "v1.2.3" {
		t.Errorf("GetVersion() = %q, %v", v, err)
	}

	if err := c.RemoveWidget("w-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveWidget() error = %v, want ErrNotFound", err)
	}

	_, err = c.GetWidget("w-1")
	if err == nil || errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "500") {
		t.Errorf("GetWidget() error = %v, want a 500 error", err)
	}

	if _, err := c.Send("PATCH", "/version", ""); err == nil {
		t.Error("Send(PATCH) succeeded, want unknown method error")
	}
}

func TestSetBatterySendsSnapshot(t *testing.T) {
	var gotBody, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/battery", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"accepted":true,"percent":45,"message":"update queued"}`)
	})
	c := NewClient(serveUnix(t, mux))

	resp, err := c.SetBattery(45, 100, true)
	if err != nil {
		t.Fatalf("SetBattery() error = %v", err)
	}
	if !resp.Accepted || resp.Percent != 45 {
		t.Errorf("SetBattery() = %+v", resp)
	}
	if gotBody != `{"level":45,"scale":100}` {
		t.Errorf("body = %s", gotBody)
	}
	if gotQuery != "wait=true" {
		t.Errorf("query = %s", gotQuery)
	}
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": comment",
		"event:widget.render",
		`data:{"widget":"w-1"}`,
		"",
		"event: widget.placed",
		`data: {"widget":"w-2",`,
		`data: "name":"desk"}`,
		"",
		"",
		`data:{"x":1}`,
	}, "\n")

	out := make(chan events.Event, 8)
	if err := readEvents(context.Background(), strings.NewReader(stream), out); err != nil {
		t.Fatalf("readEvents() error = %v", err)
	}
	close(out)

	var got []events.Event
	for ev := range out {
		got = append(got, ev)
	}

	want := []events.Event{
		{Name: "widget.render", Data: []byte(`{"widget":"w-1"}`)},
		{Name: "widget.placed", Data: []byte("{\"widget\":\"w-2\",\n\"name\":\"desk\"}")},
		{Name: "message", Data: []byte(`{"x":1}`)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Name != want[i].Name || string(got[i].Data) != string(want[i].Data) {
			t.Errorf("event %d = %s %s, want %s %s", i, got[i].Name, got[i].Data, want[i].Name, want[i].Data)
		}
	}
}

func TestSubscribeEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event:widget.removed\ndata:{\"widget\":\"w-9\",\"ts\":1}\n\n")
	})
	c := NewClient(serveUnix(t, mux))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []events.Event
	for ev := range c.SubscribeEvents(ctx) {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	we, err := events.DecodeAs[events.WidgetEvent](got[0])
	if err != nil || we.Widget != "w-9" {
		t.Errorf("decoded %+v, %v", we, err)
	}
}
