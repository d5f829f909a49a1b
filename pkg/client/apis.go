package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/battmeter/battmeter/pkg/config"
	"github.com/battmeter/battmeter/pkg/sampler"
	"github.com/battmeter/battmeter/pkg/types"
	"github.com/battmeter/battmeter/pkg/widget"
)

func decodeJSON[T any](ret string, what string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func waitQuery(wait bool) string {
	if wait {
		return "?wait=true"
	}
	return ""
}

func (c *Client) ListWidgets() ([]types.WidgetStatus, error) {
	ret, err := c.Get("/widgets")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list widgets")
	}
	return decodeJSON[[]types.WidgetStatus](ret, "widgets")
}

func (c *Client) GetWidget(id widget.ID) (*types.WidgetStatus, error) {
	ret, err := c.Get("/widgets/" + url.PathEscape(string(id)))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get widget %s", id)
	}
	ws, err := decodeJSON[types.WidgetStatus](ret, "widget")
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// PlaceWidget registers a new widget and waits for its first render.
func (c *Client) PlaceWidget(name string) (*widget.Info, error) {
	payload, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/widgets?wait=true", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to place widget")
	}
	info, err := decodeJSON[widget.Info](ret, "widget info")
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) RemoveWidget(id widget.ID) error {
	if _, err := c.Delete("/widgets/" + url.PathEscape(string(id))); err != nil {
		return pkgerrors.Wrapf(err, "failed to remove widget %s", id)
	}
	return nil
}

// SetBattery reports a raw battery snapshot to the daemon.
func (c *Client) SetBattery(level, scale int, wait bool) (*types.BatteryResponse, error) {
	payload, err := json.Marshal(sampler.Snapshot{Level: level, Scale: scale})
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/battery"+waitQuery(wait), string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set battery")
	}
	resp, err := decodeJSON[types.BatteryResponse](ret, "battery response")
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Foreground(wait bool) error {
	if _, err := c.Post("/foreground"+waitQuery(wait), ""); err != nil {
		return pkgerrors.Wrapf(err, "failed to refresh widgets")
	}
	return nil
}

func (c *Client) Resample(wait bool) error {
	if _, err := c.Post("/resample"+waitQuery(wait), ""); err != nil {
		return pkgerrors.Wrapf(err, "failed to resample battery")
	}
	return nil
}

// GetLog returns the last n debug log lines. n == 0 returns every line.
func (c *Client) GetLog(n int) ([]string, error) {
	ret, err := c.Get("/log?lines=" + strconv.Itoa(n))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get debug log")
	}
	return decodeJSON[[]string](ret, "debug log")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	conf, err := decodeJSON[config.RawFileConfig](ret, "config")
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) GetSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get sample schedule")
	}
	st, err := decodeJSON[types.ScheduleStatus](ret, "sample schedule")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return decodeJSON[string](ret, "version")
}
