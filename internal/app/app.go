// Package app wires the tracer's core (pkg/trie, pkg/activeflow,
// internal/engine, internal/snapshot, internal/scheduler) together with its
// ambient stack (internal/config, internal/metrics) and domain handlers
// (internal/handlers, internal/hostmonitor) into one process lifecycle:
// New, Start, Stop, Run.
//
// Grounded on the teacher's internal/app.App: a struct holding every
// component, a New that loads config and constructs them in dependency
// order, a Start/Stop pair that (de)activates them in a fixed sequence, and
// a Run that blocks on OS signals. The teacher's component list (dispatcher,
// sinks, monitors, position manager, enterprise features) is replaced here
// with this domain's own (engine, scheduler, handlers, host monitor).
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"flowtraced/internal/config"
	"flowtraced/internal/handlers"
	"flowtraced/internal/hostmonitor"
	"flowtraced/internal/metrics"
	"flowtraced/internal/scheduler"
	"flowtraced/internal/snapshot"
	flowengine "flowtraced/internal/engine"
	"flowtraced/pkg/errors"
	"flowtraced/pkg/flowtypes"
)

// App owns every long-lived component of one tracer process.
type App struct {
	cfg    *flowtypes.Config
	logger *logrus.Logger

	engine    *flowengine.Engine
	builder   *snapshot.Builder
	registry  *scheduler.Registry
	scheduler *scheduler.Scheduler
	hostMon   *hostmonitor.Monitor

	snapCache *snapshotCache
	closers   []io.Closer

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configFile, constructs the engine and its surrounding ambient
// and domain stack, and returns a ready-to-Start App.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, errors.New(errors.CodeConfigInvalid, "app", "load_config", err.Error()).Wrap(err)
	}

	logger := newLogger(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	eng := flowengine.New(*cfg, logger)
	builder := snapshot.New(eng, eng.Tracker())
	registry := scheduler.NewRegistry()
	sched := scheduler.New(builder, registry, cfg.PushInterval, logger)

	app := &App{
		cfg:       cfg,
		logger:    logger,
		engine:    eng,
		builder:   builder,
		registry:  registry,
		scheduler: sched,
		ctx:       ctx,
		cancel:    cancel,
	}

	cache := newSnapshotCache()
	app.snapCache = cache
	registry.Register(cache)

	if err := app.wireHandlers(); err != nil {
		cancel()
		return nil, err
	}

	if cfg.HostMonitor.Enabled {
		mon, err := hostmonitor.New(cfg.HostMonitor.Interval, metrics.HostGauges{}, logger)
		if err != nil {
			cancel()
			return nil, errors.New(errors.CodeEngineConstruction, "app", "host_monitor", err.Error()).Wrap(err)
		}
		app.hostMon = mon
	}

	if cfg.Server.Enabled {
		app.httpServer = app.buildOpsServer()
	}

	return app, nil
}

func newLogger(cfg *flowtypes.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// wireHandlers registers the concrete Handler implementations configured in
// cfg.Handlers, skipping any whose block is absent or disabled.
func (a *App) wireHandlers() error {
	hc := a.cfg.Handlers

	if hc.File != nil && hc.File.Enabled {
		fh, err := handlers.NewFileHandler(*hc.File, a.logger)
		if err != nil {
			return errors.New(errors.CodeHandlerRegister, "app", "file_handler", err.Error()).Wrap(err)
		}
		a.registry.Register(fh)
		a.closers = append(a.closers, fh)
	}

	if hc.Kafka != nil && hc.Kafka.Enabled {
		kh, err := handlers.NewKafkaHandler(*hc.Kafka, a.logger)
		if err != nil {
			return errors.New(errors.CodeHandlerRegister, "app", "kafka_handler", err.Error()).Wrap(err)
		}
		a.registry.Register(kh)
		a.closers = append(a.closers, kh)
	}

	if hc.Docker != nil && hc.Docker.Enabled {
		dh := handlers.NewDockerCorrelationHandler(*hc.Docker, a.logger)
		a.registry.Register(dh)
		a.closers = append(a.closers, dh)
	}

	return nil
}

// Engine exposes the process-wide intake handle for instrumentation
// callers. cmd/flowtraced does not call it; a deployment wires it from
// generated instrumentation per spec.md §6.
func (a *App) Engine() *flowengine.Engine { return a.engine }

// Start activates every configured component: the ops HTTP surface, the
// host monitor, and finally the scheduler pump, matching the teacher's
// ordering of "auxiliary surfaces up first, core pump last."
func (a *App) Start() error {
	a.logger.Info("starting flowtraced")

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting ops http server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("ops http server error")
			}
		}()
	}

	if a.hostMon != nil {
		a.hostMon.Start(a.ctx)
	}

	a.scheduler.Start()

	a.logger.Info("flowtraced started")
	return nil
}

// Stop cancels the context, stops the scheduler (forcing a final snapshot
// after marking every still-active flow an end-of-life leak per spec.md
// §4.4/§4.7), stops the host monitor, closes handler resources, and shuts
// down the ops HTTP server — in that order, matching the teacher's
// app.Stop sequencing from input-side to output-side components.
func (a *App) Stop() error {
	a.logger.Info("stopping flowtraced")
	a.cancel()

	a.engine.Shutdown()
	a.scheduler.Shutdown()

	if a.hostMon != nil {
		a.hostMon.Stop()
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.WithError(err).Warn("error closing handler resource during shutdown")
		}
	}

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("ops http server shutdown error")
		}
	}

	a.wg.Wait()
	a.logger.Info("flowtraced stopped")
	return nil
}

// Run starts the app and blocks until SIGINT/SIGTERM, then stops it.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	a.logger.Info("shutdown signal received")
	return a.Stop()
}

// buildOpsServer assembles the read-only diagnostics surface of
// SPEC_FULL.md §3: /healthz, /metrics (Prometheus), and /snapshot (the
// latest snapshot as JSON). This is NOT the management interface spec.md §1
// names as an external collaborator out of scope — it exposes diagnostics,
// never instrumentation-site configuration.
func (a *App) buildOpsServer() *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", a.handleSnapshot).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	return &http.Server{Addr: addr, Handler: r}
}

// snapshotCache is a flowtypes.Handler that does nothing but remember the
// latest snapshot it was handed, so /snapshot can serve it on demand
// without forcing an extra trie walk between scheduler ticks.
type snapshotCache struct {
	val atomic.Value // flowtypes.MetricSnapshot
}

func newSnapshotCache() *snapshotCache {
	c := &snapshotCache{}
	c.val.Store(flowtypes.MetricSnapshot{Metrics: map[flowtypes.MetricType]flowtypes.MetricPayload{}})
	return c
}

func (c *snapshotCache) Name() string { return "snapshot-cache" }

func (c *snapshotCache) RequiredMetrics() map[flowtypes.MetricType]struct{} {
	want := make(map[flowtypes.MetricType]struct{}, len(flowtypes.AllMetricTypes))
	for _, mt := range flowtypes.AllMetricTypes {
		want[mt] = struct{}{}
	}
	return want
}

func (c *snapshotCache) OnMetrics(snap flowtypes.MetricSnapshot) error {
	c.val.Store(snap)
	return nil
}

func (c *snapshotCache) latest() flowtypes.MetricSnapshot {
	return c.val.Load().(flowtypes.MetricSnapshot)
}
