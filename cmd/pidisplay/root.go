// Package main provides the CLI entrypoint for pidisplay.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pidisplay/internal/client"
	"github.com/jmylchreest/pidisplay/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
		server     string
		output     string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pidisplay",
	Short: "Control a pidisplayd character LCD",
	Long: `pidisplay talks to a pidisplayd daemon over its WebThing API.

It reads and writes the three display layers, shows what the LCD is
rendering and scans I2C buses for attached displays.

Running pidisplay without a subcommand launches the live viewer.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if globalOpts.server != "" {
			cfg.Server.URL = globalOpts.server
		}
		if globalOpts.output != "" {
			if err := config.ValidateOutput(globalOpts.output); err != nil {
				return err
			}
			cfg.Output.Format = globalOpts.output
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/pidisplay/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.server, "server", "s", "",
		"Daemon URL (default: http://localhost:8070)")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.output, "output", "o", "",
		"Output format (plain, json, yaml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// newClient returns a client for the configured daemon.
func newClient() *client.Client {
	logger.Debug("using daemon", "url", cfg.Server.URL)
	return client.New(cfg.Server.URL, cfg.Server.Timeout.Duration())
}
