package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/config"
	"github.com/jmylchreest/pidisplay/internal/dbus"
	"github.com/jmylchreest/pidisplay/internal/lcd"
	"github.com/jmylchreest/pidisplay/internal/properties"
	"github.com/jmylchreest/pidisplay/internal/webthing"
)

// Options configures a Daemon beyond its config file.
type Options struct {
	// ConfigPath is the watched config file. Empty uses the default path.
	ConfigPath string
	// Override is applied to every loaded config, including reloads.
	Override func(*config.DaemonConfig) error
	// LevelVar receives the log level on reload.
	LevelVar *slog.LevelVar
	// PinLevel keeps the level chosen on the command line across reloads.
	PinLevel bool
	// Watch enables config hot-reload.
	Watch bool
	// Driver replaces the configured LCD driver.
	Driver compositor.Driver
	// Listener replaces the configured listen address.
	Listener net.Listener
	Logger   *slog.Logger
}

// Daemon owns one display and every transport exposing it.
type Daemon struct {
	cfg    *config.DaemonConfig
	opts   Options
	logger *slog.Logger

	driver   compositor.Driver
	hub      *properties.Hub
	display  *compositor.Display
	registry *properties.Registry
	server   *webthing.Server
	dbus     *dbus.DisplayServer
	notifier *Notifier
	watcher  *ConfigWatcher
}

// LoadConfig loads the daemon config from path and applies override.
func LoadConfig(path string, override func(*config.DaemonConfig) error) (*config.DaemonConfig, error) {
	cfg, err := config.LoadDaemonConfig(path)
	if err != nil {
		return nil, err
	}
	if override == nil {
		return cfg, nil
	}
	if err := override(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// New binds the display and builds every component. A *lcd.BindError means
// the LCD could not be reached; the devices found on the bus have been
// logged by then.
func New(cfg *config.DaemonConfig, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver := opts.Driver
	if driver == nil {
		var err error
		driver, err = openDriver(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	hub := properties.NewHub(properties.DefaultBuffer, logger)
	display := compositor.New(driver, compositor.Options{
		TTLUnit:  cfg.Layers.TTLUnit.Duration(),
		Observer: hub,
		Logger:   logger,
	})
	registry := properties.NewRegistry(display)

	notifier, err := NewNotifier(display, cfg.Notices, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		driver:   driver,
		hub:      hub,
		display:  display,
		registry: registry,
		notifier: notifier,
		server: webthing.New(webthing.Config{
			Addr:            cfg.ListenAddr(),
			Name:            cfg.Thing.Name,
			Description:     cfg.Thing.Description,
			ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		}, registry, hub, logger),
	}

	if cfg.DBus.Enabled {
		d.dbus = dbus.NewDisplayServer(registry, hub, logger)
		d.dbus.SetBus(dbus.Bus(cfg.DBus.Bus))
	}

	if err := display.Refresh(); err != nil {
		logger.Warn("failed to blank display", "error", err)
	}
	if cfg.State.Enabled {
		d.restoreState()
	}

	return d, nil
}

func openDriver(cfg *config.DaemonConfig, logger *slog.Logger) (compositor.Driver, error) {
	if cfg.LCD.Driver == config.DriverMemory {
		logger.Info("using in-memory display", "geometry", cfg.Geometry().String())
		return lcd.NewMemory(cfg.Geometry()), nil
	}

	dev, err := lcd.Open(cfg.LCDDriverConfig(), logger)
	if err != nil {
		logger.Error("binding driver failed", "error", err)
		logAvailableDevices(cfg.LCD.Bus, logger)
		return nil, err
	}
	return dev, nil
}

// logAvailableDevices helps pick the right address after a failed bind.
func logAvailableDevices(bus string, logger *slog.Logger) {
	addrs, err := lcd.ScanBus(bus)
	if err != nil {
		logger.Warn("failed to scan i2c bus", "bus", bus, "error", err)
		return
	}
	if len(addrs) == 0 {
		logger.Info("no i2c devices found", "bus", bus)
		return
	}
	found := make([]string, len(addrs))
	for i, a := range addrs {
		found[i] = fmt.Sprintf("0x%02x", a)
	}
	logger.Info("available i2c devices", "bus", bus, "addresses", found)
}

// Display returns the layered display.
func (d *Daemon) Display() *compositor.Display {
	return d.display
}

// Registry returns the property registry shared by all transports.
func (d *Daemon) Registry() *properties.Registry {
	return d.registry
}

// Run serves until ctx is cancelled or the server fails, then shuts every
// component down and persists layer state if enabled.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		if d.opts.Listener != nil {
			serveErr <- d.server.Serve(ctx, d.opts.Listener)
			return
		}
		serveErr <- d.server.ListenAndServe(ctx)
	}()

	if d.dbus != nil {
		if err := d.dbus.Start(); err != nil {
			d.logger.Warn("failed to start D-Bus server", "error", err)
			d.dbus = nil
		}
	}

	if d.opts.Watch {
		d.startWatcher(ctx)
	}

	d.logger.Info("pidisplayd ready",
		"thing", webthing.Title(d.cfg.Thing.Name),
		"addr", d.cfg.ListenAddr(),
		"dbus", d.dbus != nil)

	err := <-serveErr
	d.shutdown()
	return err
}

func (d *Daemon) startWatcher(ctx context.Context) {
	w := NewConfigWatcher(d.opts.ConfigPath, d.logger)
	w.SetLoader(func(path string) (*config.DaemonConfig, error) {
		return LoadConfig(path, d.opts.Override)
	})
	w.SetReloadCallback(d.applyConfig)
	w.SetErrorCallback(d.notifier.NotifyConfigError)
	if err := w.Start(ctx, d.cfg); err != nil {
		d.logger.Warn("failed to start config watcher", "error", err)
		return
	}
	d.watcher = w
}

// applyConfig takes over the settings that can change at runtime. Anything
// else keeps its startup value and is reported as needing a restart.
func (d *Daemon) applyConfig(next *config.DaemonConfig) {
	restart := d.cfg.RestartRequired(next)
	if len(restart) > 0 {
		d.logger.Warn("config changes need a restart to take effect", "settings", restart)
	}

	if d.opts.LevelVar != nil && !d.opts.PinLevel {
		if level, err := config.ParseLevel(next.Log.Level); err == nil {
			d.opts.LevelVar.Set(level)
		}
	}
	d.server.SetDescription(next.Thing.Description)
	if err := d.notifier.Configure(next.Notices); err != nil {
		d.logger.Warn("failed to apply notice settings", "error", err)
	}

	d.notifier.NotifyConfigReloaded(restart)
}

func (d *Daemon) restoreState() {
	path := d.cfg.StatePath()
	state, err := LoadState(path)
	if err != nil {
		d.logger.Warn("failed to load layer state", "path", path, "error", err)
		return
	}
	n, err := state.Restore(d.display)
	if err != nil {
		d.logger.Warn("failed to restore some layers", "error", err)
	}
	d.logger.Info("layer state restored", "path", path, "layers", n)
}

func (d *Daemon) saveState() {
	path := d.cfg.StatePath()
	state := CaptureState(d.display)
	if err := SaveState(path, state); err != nil {
		d.logger.Warn("failed to save layer state", "path", path, "error", err)
		return
	}
	d.logger.Info("layer state saved", "path", path, "layers", len(state.Layers))
}

func (d *Daemon) shutdown() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.dbus != nil {
		if err := d.dbus.Stop(); err != nil {
			d.logger.Warn("error stopping D-Bus server", "error", err)
		}
	}
	d.notifier.Dismiss()
	if d.cfg.State.Enabled {
		d.saveState()
	}

	d.display.Close()
	d.hub.Close()

	if c, ok := d.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.logger.Warn("error closing display driver", "error", err)
		}
	}
	d.logger.Info("pidisplayd stopped")
}
