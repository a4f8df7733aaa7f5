// Package main is the entry point for the pidisplayd LCD daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pidisplay/internal/config"
	"github.com/jmylchreest/pidisplay/internal/daemon"
	"github.com/jmylchreest/pidisplay/internal/lcd"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var opts struct {
	configPath string
	envFile    string
	verbose    bool
	noWatch    bool
	driver     string
	bus        string
	host       string
	state      bool
}

var rootCmd = &cobra.Command{
	Use:   "pidisplayd [port] [name] [expander] [address] [lines] [columns]",
	Short: "Serve a character LCD as a WebThing",
	Long: `pidisplayd drives an HD44780 character LCD behind an I2C port expander
and exposes it as a WebThing with three text layers.

Settings are read from ~/.config/pidisplay/pidisplayd.toml, then from
PIDISPLAY_* environment variables (a .env file is loaded first if present),
then from flags and positional arguments.

Examples:
  # Defaults from the config file
  pidisplayd

  # Port 8070, thing "Desk", PCF8574 expander at 0x27, 4x20 display
  pidisplayd 8070 Desk pcf8574 0x27 4 20

  # Run without hardware
  pidisplayd --driver memory -v`,
	Args:          cobra.MaximumNArgs(6),
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&opts.configPath, "config", "",
		"Path to config file (default: ~/.config/pidisplay/pidisplayd.toml)")
	rootCmd.Flags().StringVar(&opts.envFile, "env-file", ".env",
		"Environment file loaded before the config")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging (ignores log.level)")
	rootCmd.Flags().BoolVar(&opts.noWatch, "no-watch", false,
		"Disable config hot-reload")
	rootCmd.Flags().StringVar(&opts.driver, "driver", "",
		"LCD driver (i2c, memory)")
	rootCmd.Flags().StringVar(&opts.bus, "bus", "",
		"I2C bus name (default: first bus found)")
	rootCmd.Flags().StringVar(&opts.host, "host", "",
		"Listen host (default: all interfaces)")
	rootCmd.Flags().BoolVar(&opts.state, "persist", false,
		"Persist layer contents across restarts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("pidisplayd failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting pidisplayd", "version", version)

	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	override := overrides(cmd, args)
	cfg, err := daemon.LoadConfig(opts.configPath, override)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.verbose {
		level.Set(slog.LevelDebug)
	} else if l, err := config.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(l)
	}

	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: opts.configPath,
		Override:   override,
		LevelVar:   level,
		PinLevel:   opts.verbose,
		Watch:      !opts.noWatch,
		Logger:     logger,
	})
	if err != nil {
		var bindErr *lcd.BindError
		if errors.As(err, &bindErr) {
			return fmt.Errorf("failed to bind display: %w", err)
		}
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info("pidisplayd stopped")
	return nil
}

// overrides returns the function applying positional arguments and explicitly
// set flags on top of every loaded config.
func overrides(cmd *cobra.Command, args []string) func(*config.DaemonConfig) error {
	flags := cmd.Flags()
	return func(c *config.DaemonConfig) error {
		if err := c.ApplyArgs(args); err != nil {
			return err
		}
		if flags.Changed("driver") {
			c.LCD.Driver = opts.driver
		}
		if flags.Changed("bus") {
			c.LCD.Bus = opts.bus
		}
		if flags.Changed("host") {
			c.Server.Host = opts.host
		}
		if flags.Changed("persist") {
			c.State.Enabled = opts.state
		}
		return nil
	}
}

// loadEnvFile loads variables from path without overriding the environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
