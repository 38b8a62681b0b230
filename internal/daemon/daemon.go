// Package daemon runs the window-management engine: it owns the loop the
// engine lives on and connects it to a protocol driver, the IPC socket,
// the metrics endpoint and the module watcher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/1broseidon/wmcore/internal/config"
	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/ipc"
	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/policy"
	"github.com/1broseidon/wmcore/internal/runtimepath"
	"github.com/1broseidon/wmcore/internal/script"
)

// BuiltinModule is the reload path that switches to the built-in policy.
const BuiltinModule = ":builtin"

// Config configures a Daemon.
type Config struct {
	Config *config.Config
	Logger *slog.Logger
	Driver Driver
	// SocketPath and PIDPath default to the runtime directory.
	SocketPath string
	PIDPath    string
	// Registry receives the engine's collectors. A fresh registry with Go
	// and process collectors is used when nil.
	Registry          *prometheus.Registry
	ReconcileInterval time.Duration
}

// Daemon wires the engine to the outside world.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	driver   Driver
	loop     *Loop
	engine   *engine.Engine
	registry *prometheus.Registry
	ipc      *ipc.Server
	pidPath  string

	reconcileInterval time.Duration

	// modulePath is only touched on the loop.
	modulePath string

	watchMu sync.Mutex
	watcher *Watcher
	watched string

	metricsSrv  *http.Server
	metricsAddr string

	ready chan struct{}
}

var (
	_ Sink        = (*Daemon)(nil)
	_ ipc.Handler = (*Daemon)(nil)
)

// New creates a daemon. Nothing runs until Run is called.
func New(cfg Config) (*Daemon, error) {
	if cfg.Driver == nil {
		return nil, errors.New("daemon: driver is required")
	}
	c := cfg.Config
	if c == nil {
		c = config.DefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	layout, err := c.Builtin.TilingLayout()
	if err != nil {
		return nil, err
	}
	fallback := policy.New(policy.Options{
		Layout:                layout,
		ServerSideDecorations: c.Builtin.ServerSideDecorations,
		Logger:                logger.With("module", "builtin"),
	})

	eng, err := engine.New(engine.Config{
		Logger:   logger,
		Backend:  cfg.Driver,
		Metrics:  engine.NewMetrics(reg),
		Fallback: fallback,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:               c,
		logger:            logger,
		driver:            cfg.Driver,
		loop:              NewLoop(logger),
		engine:            eng,
		registry:          reg,
		pidPath:           cfg.PIDPath,
		reconcileInterval: cfg.ReconcileInterval,
		modulePath:        c.Module.Path,
		ready:             make(chan struct{}),
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		if socketPath, err = runtimepath.SocketPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	if d.pidPath == "" {
		if d.pidPath, err = runtimepath.PIDPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve PID file path: %w", err)
		}
	}
	d.ipc = ipc.NewServerAt(socketPath, d, logger)
	return d, nil
}

// Post queues fn on the engine's goroutine.
func (d *Daemon) Post(fn func(e *engine.Engine)) error {
	return d.loop.Post(func() { fn(d.engine) })
}

// Do runs fn on the engine's goroutine and waits for it.
func (d *Daemon) Do(fn func(e *engine.Engine) error) error {
	return d.loop.Do(func() error { return fn(d.engine) })
}

// Ready is closed once the IPC socket accepts connections and the driver
// has been started.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// MetricsAddr is the bound /metrics address, or "" when disabled.
func (d *Daemon) MetricsAddr() string {
	return d.metricsAddr
}

// Run starts every component and blocks until ctx is cancelled or the
// driver stops.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		d.loop.Run(context.Background())
	}()

	if err := d.Do(func(e *engine.Engine) error { return d.load(e, d.modulePath) }); err != nil {
		d.logger.Warn("configured module failed to load, running built-in policy",
			"path", d.cfg.Module.Path, "error", err)
	}

	if err := d.ipc.Start(); err != nil {
		d.stopLoop(loopDone)
		return err
	}
	if err := writePIDFile(d.pidPath); err != nil {
		d.logger.Warn("failed to write PID file", "path", d.pidPath, "error", err)
	}
	if err := d.startMetrics(); err != nil {
		d.ipc.Stop()
		d.stopLoop(loopDone)
		return err
	}
	if d.cfg.Module.Path != "" && d.cfg.Module.Watch {
		d.watch(d.cfg.Module.Path)
	}

	reconciler := NewReconciler(ReconcilerConfig{
		Interval: d.reconcileInterval,
		Logger:   d.logger,
	}, d, d.driver)
	go reconciler.Run(ctx)

	d.logger.Info("wmcore daemon started", "driver", d.driver.Name(), "socket", d.ipc.SocketPath())
	close(d.ready)

	err := d.driver.Run(ctx, d)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		d.logger.Error("driver stopped", "driver", d.driver.Name(), "error", err)
	}

	d.logger.Info("shutting down wmcore daemon")
	cancel()
	d.stopWatcher()
	d.stopMetrics()
	d.ipc.Stop()
	d.stopLoop(loopDone)
	if cerr := d.driver.Close(); cerr != nil {
		d.logger.Warn("driver close failed", "error", cerr)
	}
	os.Remove(d.pidPath)
	return err
}

func (d *Daemon) stopLoop(loopDone <-chan struct{}) {
	if err := d.Do(func(e *engine.Engine) error {
		e.Close()
		return nil
	}); err != nil {
		d.logger.Warn("failed to retire module", "error", err)
	}
	d.loop.Close()
	<-loopDone
}

// load activates the module at path on the loop. A module that cannot be
// read or compiled is still handed to the engine so the failure is
// recorded and the built-in policy takes over when nothing else runs.
func (d *Daemon) load(e *engine.Engine, path string) error {
	if path == "" || path == BuiltinModule {
		d.modulePath = ""
		_, err := e.LoadFallback()
		return err
	}

	var m module.Module
	mod, err := script.Load(path, script.Options{
		Logger:  d.logger.With("module_path", path),
		Timeout: d.cfg.Module.CallTimeout,
	})
	if err != nil {
		m = brokenModule{err: err}
	} else {
		m = mod
	}
	if _, err := e.LoadModule(m); err != nil {
		return err
	}
	d.modulePath = path
	return nil
}

// brokenModule reports why a module directory could not be loaded.
type brokenModule struct {
	err error
}

func (b brokenModule) Info() (module.Info, error) { return module.Info{}, b.err }

func (b brokenModule) Create(*module.Server) (module.Instance, error) { return nil, b.err }

func (d *Daemon) watch(dir string) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if d.watcher != nil && d.watched == abs {
		return
	}
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}

	w, err := NewWatcher(abs, d.cfg.Module.ReloadDebounce, d.logger, func() {
		d.logger.Info("module changed on disk, reloading", "path", abs)
		if _, err := d.ReloadModule(abs); err != nil {
			d.logger.Warn("module reload failed", "path", abs, "error", err)
		}
	})
	if err != nil {
		d.logger.Warn("module watcher disabled", "path", abs, "error", err)
		return
	}
	d.watcher = w
	d.watched = abs
}

func (d *Daemon) stopWatcher() {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
}

func (d *Daemon) startMetrics() error {
	addr := d.cfg.Metrics.Listen
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	d.metricsSrv = &http.Server{Handler: d.newRouter(time.Now()), ReadHeaderTimeout: 5 * time.Second}
	d.metricsAddr = ln.Addr().String()
	go func() {
		if err := d.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", "error", err)
		}
	}()
	d.logger.Info("metrics endpoint listening", "addr", d.metricsAddr)
	return nil
}

func (d *Daemon) stopMetrics() {
	if d.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.metricsSrv.Shutdown(ctx)
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600)
}

// Status implements ipc.Handler.
func (d *Daemon) Status() (ipc.StatusData, error) {
	var data ipc.StatusData
	err := d.Do(func(e *engine.Engine) error {
		data = ipc.StatusFromEngine(e.Status(), d.driver.Name(), d.modulePath)
		return nil
	})
	return data, err
}

// Toplevels implements ipc.Handler.
func (d *Daemon) Toplevels() ([]ipc.ToplevelInfo, error) {
	var list []ipc.ToplevelInfo
	err := d.Do(func(e *engine.Engine) error {
		list = ipc.ToplevelsFromEngine(e.Toplevels())
		return nil
	})
	return list, err
}

// Outputs implements ipc.Handler.
func (d *Daemon) Outputs() ([]ipc.OutputInfo, error) {
	var list []ipc.OutputInfo
	err := d.Do(func(e *engine.Engine) error {
		list = ipc.OutputsFromModule(e.Outputs())
		return nil
	})
	return list, err
}

// Module implements ipc.Handler.
func (d *Daemon) Module() (ipc.ModuleData, error) {
	var data ipc.ModuleData
	err := d.Do(func(e *engine.Engine) error {
		data = d.moduleData(e)
		return nil
	})
	return data, err
}

func (d *Daemon) moduleData(e *engine.Engine) ipc.ModuleData {
	st := e.Status()
	return ipc.ModuleFromStatus(st.Module, d.modulePath, st.LastLoadError)
}

// ReloadModule implements ipc.Handler. An empty path reloads the current
// module directory; BuiltinModule switches to the built-in policy. On
// failure the running module is kept and the error returned.
func (d *Daemon) ReloadModule(path string) (ipc.ModuleData, error) {
	var (
		data    ipc.ModuleData
		current string
	)
	err := d.Do(func(e *engine.Engine) error {
		if path == "" {
			path = d.modulePath
		}
		err := d.load(e, path)
		data = d.moduleData(e)
		current = d.modulePath
		return err
	})
	if err != nil {
		return data, err
	}
	if current != "" && d.cfg.Module.Watch {
		d.watch(current)
	} else if current == "" {
		d.stopWatcher()
	}
	return data, nil
}
