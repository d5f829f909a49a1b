package dbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/battmeter/battmeter/pkg/coordinator"
	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/registry"
	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/types"
	"github.com/battmeter/battmeter/pkg/widget"
)

type countingTrigger struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTrigger) OnForeground() coordinator.Ticket {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return coordinator.Ticket{}
}

type signal struct {
	name   string
	values []interface{}
}

type recordingEmitter struct {
	ch chan signal
}

func (r *recordingEmitter) Emit(_ godbus.ObjectPath, name string, values ...interface{}) error {
	r.ch <- signal{name: name, values: values}
	return nil
}

func newTestService(t *testing.T) (*Service, registry.Registry, store.Store, *countingTrigger) {
	t.Helper()
	states := store.NewMemory()
	widgets := registry.NewMemory(states)
	trig := &countingTrigger{}
	return NewService(widgets, states, trig), widgets, states, trig
}

func TestService_ListWidgets(t *testing.T) {
	svc, widgets, states, _ := newTestService(t)
	ctx := context.Background()

	out, derr := svc.ListWidgets()
	if derr != nil {
		t.Fatalf("ListWidgets() error = %v", derr)
	}
	if out != "[]" {
		t.Errorf("ListWidgets() = %s, want []", out)
	}

	info, err := widgets.Place(ctx, "panel")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := states.Write(ctx, info.ID, func(s *widget.State) {
		p := 72.0
		s.Percent = &p
	}); err != nil {
		t.Fatal(err)
	}

	out, derr = svc.ListWidgets()
	if derr != nil {
		t.Fatalf("ListWidgets() error = %v", derr)
	}
	var got []types.WidgetStatus
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	if len(got) != 1 || got[0].ID != info.ID || got[0].View.Label != "72%" {
		t.Errorf("ListWidgets() = %+v", got)
	}
}

func TestService_GetWidget(t *testing.T) {
	svc, widgets, _, _ := newTestService(t)

	info, err := widgets.Place(context.Background(), "panel")
	if err != nil {
		t.Fatal(err)
	}

	out, derr := svc.GetWidget(string(info.ID))
	if derr != nil {
		t.Fatalf("GetWidget() error = %v", derr)
	}
	var got types.WidgetStatus
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	if got.Name != "panel" || !got.View.Loading {
		t.Errorf("GetWidget() = %+v, want loading panel", got)
	}

	_, derr = svc.GetWidget("w-missing")
	if derr == nil || derr.Name != errNotFound {
		t.Errorf("GetWidget(missing) error = %v, want %s", derr, errNotFound)
	}
}

func TestService_Foreground(t *testing.T) {
	svc, _, _, trig := newTestService(t)

	if derr := svc.Foreground(); derr != nil {
		t.Fatalf("Foreground() error = %v", derr)
	}
	if trig.calls != 1 {
		t.Errorf("trigger called %d times, want 1", trig.calls)
	}
}

func TestService_Forward(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	hub := events.NewEventHub()
	em := &recordingEmitter{ch: make(chan signal, 4)}

	done := make(chan struct{})
	go func() {
		svc.Forward(em, hub)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Forward did not subscribe")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Publish(events.WidgetPlaced, events.WidgetEvent{Widget: "w-1"})
	hub.Publish(events.WidgetRender, render.Event{Widget: "w-1", View: render.View{Loading: true}})

	select {
	case sig := <-em.ch:
		if sig.name != ifaceName+".Rendered" {
			t.Errorf("signal name = %s", sig.name)
		}
		if len(sig.values) != 2 || sig.values[0] != "w-1" {
			t.Errorf("signal values = %v", sig.values)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal emitted")
	}

	hub.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not return after the hub closed")
	}

	select {
	case sig := <-em.ch:
		t.Errorf("unexpected signal %v", sig)
	default:
	}
}
