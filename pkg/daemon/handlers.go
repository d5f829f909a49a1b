package daemon

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/config"
	"github.com/battmeter/battmeter/pkg/coordinator"
	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/registry"
	"github.com/battmeter/battmeter/pkg/sampler"
	"github.com/battmeter/battmeter/pkg/types"
	"github.com/battmeter/battmeter/pkg/version"
	"github.com/battmeter/battmeter/pkg/widget"
)

const maxLogLines = 10000

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// waitIfAsked blocks until tk is done when the request has ?wait=true.
func waitIfAsked(c *gin.Context, tk coordinator.Ticket) bool {
	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		return true
	}
	if err := tk.Wait(c.Request.Context()); err != nil {
		abortWithError(c, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

func (d *Daemon) widgetStatus(c *gin.Context, info widget.Info) (types.WidgetStatus, error) {
	st, err := d.states.Read(c.Request.Context(), info.ID)
	if err != nil {
		return types.WidgetStatus{}, err
	}
	return types.NewWidgetStatus(info, st), nil
}

func (d *Daemon) findWidget(c *gin.Context, id widget.ID) (widget.Info, bool, error) {
	info, err := d.widgets.Get(c.Request.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		return widget.Info{}, false, nil
	}
	if err != nil {
		return widget.Info{}, false, err
	}
	return info, true, nil
}

func (d *Daemon) listWidgets(c *gin.Context) {
	infos, err := d.widgets.List(c.Request.Context())
	if err != nil {
		logrus.Errorf("listWidgets failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]types.WidgetStatus, 0, len(infos))
	for _, i := range infos {
		ws, err := d.widgetStatus(c, i)
		if err != nil {
			logrus.Errorf("listWidgets failed: %v", err)
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		out = append(out, ws)
	}

	c.IndentedJSON(http.StatusOK, out)
}

func (d *Daemon) placeWidget(c *gin.Context) {
	var name string
	if err := c.BindJSON(&name); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		abortWithError(c, http.StatusBadRequest, errors.New("widget name must not be empty"))
		return
	}

	info, err := d.widgets.Place(c.Request.Context(), name)
	if err != nil {
		logrus.Errorf("placeWidget failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{"widget": info.ID, "name": info.Name}).Info("widget placed")
	d.hub.Publish(events.WidgetPlaced, events.WidgetEvent{Widget: string(info.ID), Name: info.Name, Ts: time.Now().UnixMilli()})

	// Render the new widget right away. Without a stored percentage it shows
	// as loading, which in turn asks for a sample.
	if !waitIfAsked(c, d.dispatcher.OnForeground()) {
		return
	}

	c.IndentedJSON(http.StatusCreated, info)
}

func (d *Daemon) getWidget(c *gin.Context) {
	info, ok, err := d.findWidget(c, widget.ID(c.Param("id")))
	if err != nil {
		logrus.Errorf("getWidget failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abortWithError(c, http.StatusNotFound, registry.ErrNotFound)
		return
	}

	ws, err := d.widgetStatus(c, info)
	if err != nil {
		logrus.Errorf("getWidget failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusOK, ws)
}

func (d *Daemon) removeWidget(c *gin.Context) {
	id := widget.ID(c.Param("id"))
	err := d.widgets.Remove(c.Request.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logrus.Errorf("removeWidget failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("widget", id).Info("widget removed")
	d.hub.Publish(events.WidgetRemoved, events.WidgetEvent{Widget: string(id), Ts: time.Now().UnixMilli()})

	c.IndentedJSON(http.StatusOK, "ok")
}

func (d *Daemon) putBattery(c *gin.Context) {
	var snap sampler.Snapshot
	if err := c.BindJSON(&snap); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	r, ok := sampler.Percent(&snap)
	tk := d.dispatcher.OnBatteryChanged(snap.Level, snap.Scale)
	if !waitIfAsked(c, tk) {
		return
	}

	if !ok {
		c.IndentedJSON(http.StatusAccepted, types.BatteryResponse{
			Message: "battery scale must be positive, update skipped",
		})
		return
	}

	c.IndentedJSON(http.StatusAccepted, types.BatteryResponse{
		Accepted: true,
		Percent:  r.Percent,
		Message:  "update queued",
	})
}

func (d *Daemon) postForeground(c *gin.Context) {
	if !waitIfAsked(c, d.dispatcher.OnForeground()) {
		return
	}
	c.IndentedJSON(http.StatusAccepted, "ok")
}

func (d *Daemon) postResample(c *gin.Context) {
	if !waitIfAsked(c, d.dispatcher.Resample()) {
		return
	}
	c.IndentedJSON(http.StatusAccepted, "ok")
}

func (d *Daemon) getEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (d *Daemon) getLog(c *gin.Context) {
	n := 100
	if s := c.Query("lines"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 || v > maxLogLines {
			abortWithError(c, http.StatusBadRequest, errors.New("lines must be between 0 and 10000"))
			return
		}
		n = v
	}

	lines, err := d.debugLog.Lines(n)
	if err != nil {
		logrus.Errorf("getLog failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	c.IndentedJSON(http.StatusOK, lines)
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.scheduler.Status())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
