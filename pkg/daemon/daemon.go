package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/config"
	"github.com/battmeter/battmeter/pkg/coordinator"
	dbussvc "github.com/battmeter/battmeter/pkg/dbus"
	"github.com/battmeter/battmeter/pkg/debuglog"
	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/registry"
	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/sampler"
	"github.com/battmeter/battmeter/pkg/store"
)

// Daemon wires the widget registry, the state store, the renderer and the
// update dispatcher together and serves them over HTTP.
type Daemon struct {
	conf config.Config

	states     store.Store
	widgets    registry.Registry
	hub        *events.EventHub
	renderer   *render.Hub
	dispatcher *coordinator.Dispatcher
	debugLog   *debuglog.Log
	scheduler  *SampleScheduler

	closers []func() error
}

// New builds a Daemon from conf. src provides battery snapshots for timer
// and on-demand samples.
func New(conf config.Config, src sampler.Source) (*Daemon, error) {
	d := &Daemon{
		conf: conf,
		hub:  events.NewEventHub(),
	}

	if err := d.openStorage(); err != nil {
		d.Close()
		return nil, err
	}

	if p := conf.DebugLogPath(); p != "" {
		l, err := debuglog.Open(p)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.debugLog = l
		d.closers = append(d.closers, l.Close)
	}

	d.renderer = render.NewHub(d.hub, d.debugLog)
	coord := coordinator.New(d.widgets, d.states, d.renderer, coordinator.WithDebugLog(d.debugLog))
	d.dispatcher = coordinator.NewDispatcher(coord,
		coordinator.WithSource(src),
		coordinator.WithQueueSize(conf.QueueSize()),
	)
	d.renderer.OnLoading = func() <-chan struct{} { return d.dispatcher.Resample().Done() }

	sch, err := NewSampleScheduler(func() { d.dispatcher.Resample() })
	if err != nil {
		d.Close()
		return nil, err
	}
	d.scheduler = sch
	if err := d.scheduler.Schedule(conf.SampleSchedule()); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) openStorage() error {
	p := d.conf.DBPath()
	if p == "" {
		logrus.Info("no database configured, widgets are kept in memory")
		d.states = store.NewMemory()
		d.widgets = registry.NewMemory(d.states)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create data directory for %s", p)
	}
	db, err := store.OpenSQLite(p)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, db.Close)

	reg, err := registry.NewSQLite(db.DB(), db)
	if err != nil {
		return err
	}
	d.states = db
	d.widgets = reg
	return nil
}

// Start begins timer-driven sampling and takes an initial sample.
func (d *Daemon) Start() {
	d.scheduler.Start()
	d.dispatcher.Resample()
}

// Reload re-reads the configuration and applies the new sample schedule.
// Storage stays where it was opened.
func (d *Daemon) Reload() error {
	dbPath := d.conf.DBPath()
	if err := d.conf.Load(); err != nil {
		return err
	}
	d.conf.SetDBPath(dbPath)
	return d.scheduler.Schedule(d.conf.SampleSchedule())
}

// Close stops sampling, runs queued updates and releases storage. It is
// safe to call on a partially built Daemon.
func (d *Daemon) Close() {
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.dispatcher != nil {
		d.dispatcher.Close()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logrus.Errorf("failed to release daemon resource: %v", err)
		}
	}
	d.closers = nil
}

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/widgets", d.listWidgets)
	router.POST("/widgets", d.placeWidget)
	router.GET("/widgets/:id", d.getWidget)
	router.DELETE("/widgets/:id", d.removeWidget)
	router.PUT("/battery", d.putBattery)
	router.POST("/foreground", d.postForeground)
	router.POST("/resample", d.postResample)
	router.GET("/events", d.getEvents)
	router.GET("/log", d.getLog)
	router.GET("/config", d.getConfig)
	router.GET("/schedule", d.getSchedule)
	router.GET("/version", getVersion)

	return router
}

// Run starts the daemon and serves the API on unixSocketPath until SIGINT or
// SIGTERM. An ephemeral daemon keeps widgets in memory whatever the config says.
func Run(configPath string, unixSocketPath string, allowNonRoot bool, ephemeral bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if ephemeral {
		conf.SetDBPath("")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	d, err := New(conf, sampler.NewSystemSource())
	if err != nil {
		return pkgerrors.Wrap(err, "failed to start daemon")
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := d.Reload(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: d.setupRoutes(),
	}
	// Event streams never go idle on their own.
	srv.RegisterOnShutdown(d.hub.Close)

	// Remove a stale socket left by a crashed daemon.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		d.Close()
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	var bus *dbus.Conn
	if conf.ExportDBus() {
		svc := dbussvc.NewService(d.widgets, d.states, d.dispatcher)
		bus, err = svc.Export()
		if err != nil {
			logrus.Errorf("failed to export D-Bus service, continuing without it: %v", err)
		} else {
			go svc.Forward(bus, d.hub)
			logrus.Info("D-Bus service exported")
		}
	}

	d.Start()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if bus != nil {
		if err := bus.Close(); err != nil {
			logrus.Errorf("failed to close D-Bus connection: %v", err)
		}
	}

	logrus.Info("draining pending updates")
	d.Close()

	logrus.Info("exiting")
	return nil
}
