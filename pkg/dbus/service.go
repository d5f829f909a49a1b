// Package dbus exports the widgets over the D-Bus session bus so desktop
// applets can read them and receive render signals.
package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/coordinator"
	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/registry"
	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/store"
	"github.com/battmeter/battmeter/pkg/types"
	"github.com/battmeter/battmeter/pkg/widget"
)

const (
	busName   = "io.github.battmeter"
	objPath   = "/io/github/battmeter"
	ifaceName = "io.github.battmeter"

	errNotFound = ifaceName + ".Error.NotFound"

	callTimeout = 5 * time.Second
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="ListWidgets">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetWidget">
      <arg direction="in" type="s" name="id"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Foreground">
    </method>
    <signal name="Rendered">
      <arg type="s" name="id"/>
      <arg type="s" name="json"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Trigger starts widget updates.
type Trigger interface {
	OnForeground() coordinator.Ticket
}

// Emitter sends D-Bus signals. *godbus.Conn implements it.
type Emitter interface {
	Emit(path godbus.ObjectPath, name string, values ...interface{}) error
}

// Service exposes the widgets over D-Bus.
type Service struct {
	widgets registry.Registry
	states  store.Store
	trigger Trigger
}

// NewService creates a new D-Bus service.
func NewService(widgets registry.Registry, states store.Store, trigger Trigger) *Service {
	return &Service{widgets: widgets, states: states, trigger: trigger}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.Export(s, objPath, ifaceName); err != nil {
		return nil, fmt.Errorf("export %s: %w", ifaceName, err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	return conn, nil
}

func (s *Service) describe(ctx context.Context, info widget.Info) (types.WidgetStatus, error) {
	st, err := s.states.Read(ctx, info.ID)
	if err != nil {
		return types.WidgetStatus{}, err
	}
	return types.NewWidgetStatus(info, st), nil
}

// ListWidgets returns every placed widget with its state as JSON.
func (s *Service) ListWidgets() (string, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	infos, err := s.widgets.List(ctx)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	out := make([]types.WidgetStatus, 0, len(infos))
	for _, i := range infos {
		w, err := s.describe(ctx, i)
		if err != nil {
			return "", godbus.MakeFailedError(err)
		}
		out = append(out, w)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetWidget returns one widget with its state as JSON.
func (s *Service) GetWidget(id string) (string, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	info, err := s.widgets.Get(ctx, widget.ID(id))
	if errors.Is(err, registry.ErrNotFound) {
		return "", godbus.NewError(errNotFound, []interface{}{fmt.Sprintf("widget %s not found", id)})
	}
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	w, err := s.describe(ctx, info)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Foreground asks for every widget to be redrawn.
func (s *Service) Foreground() *godbus.Error {
	s.trigger.OnForeground()
	return nil
}

// Forward emits a Rendered signal for each render event published on hub.
// It returns when the hub is closed.
func (s *Service) Forward(conn Emitter, hub *events.EventHub) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	for ev := range ch {
		if ev.Name != events.WidgetRender {
			continue
		}
		re, err := events.DecodeAs[render.Event](ev)
		if err != nil {
			logrus.WithError(err).Warn("failed to decode render event")
			continue
		}
		if err := conn.Emit(objPath, ifaceName+".Rendered", string(re.Widget), string(ev.Data)); err != nil {
			logrus.WithError(err).WithField("widget", re.Widget).Warn("failed to emit D-Bus signal")
		}
	}
}
