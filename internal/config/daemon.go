package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/lcd"
)

// EnvPrefix prefixes every environment variable read by the daemon.
const EnvPrefix = "PIDISPLAY_"

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "1s", "500ms", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML and env parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	// Bare integers are milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '1s', '500ms', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Address is an I2C device address. It accepts "0x27" style hex or decimal.
type Address uint16

// ParseAddress parses a hex ("0x27") or decimal ("39") I2C address.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	base := 10
	if strings.HasPrefix(s, "0x") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid i2c address %q: %w", s, err)
	}
	return Address(v), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint16(a))
}

// DaemonConfig is the configuration for pidisplayd.
// Loaded from ~/.config/pidisplay/pidisplayd.toml
type DaemonConfig struct {
	Server  ServerConfig `toml:"server" envPrefix:"SERVER_"`
	Thing   ThingConfig  `toml:"thing" envPrefix:"THING_"`
	LCD     LCDConfig    `toml:"lcd" envPrefix:"LCD_"`
	Layers  LayersConfig `toml:"layers" envPrefix:"LAYERS_"`
	DBus    DBusConfig   `toml:"dbus" envPrefix:"DBUS_"`
	Log     LogConfig    `toml:"log" envPrefix:"LOG_"`
	Notices NoticeConfig `toml:"notices" envPrefix:"NOTICES_"`
	State   StateConfig  `toml:"state" envPrefix:"STATE_"`
}

// ServerConfig contains the WebThing listener settings.
type ServerConfig struct {
	Host            string   `toml:"host" env:"HOST"`
	Port            int      `toml:"port" env:"PORT"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ThingConfig describes the thing to clients.
type ThingConfig struct {
	Name        string `toml:"name" env:"NAME"`
	Description string `toml:"description" env:"DESCRIPTION"`
}

// LCDConfig selects the display hardware.
type LCDConfig struct {
	Driver    string  `toml:"driver" env:"DRIVER"` // "i2c" or "memory"
	Bus       string  `toml:"bus" env:"BUS"`       // empty = first bus found
	Address   Address `toml:"address" env:"ADDRESS"`
	Expander  string  `toml:"expander" env:"EXPANDER"`
	Lines     int     `toml:"lines" env:"LINES"`
	Columns   int     `toml:"columns" env:"COLUMNS"`
	Backlight bool    `toml:"backlight" env:"BACKLIGHT"`
}

// LayersConfig contains compositor settings.
type LayersConfig struct {
	TTLUnit Duration `toml:"ttl_unit" env:"TTL_UNIT"` // duration of one TTL step
}

// DBusConfig controls the optional D-Bus exposition.
type DBusConfig struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	Bus     string `toml:"bus" env:"BUS"` // "session" or "system"
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"` // "debug", "info", "warn", "error"
}

// NoticeConfig controls internal notices shown on the display, such as
// config reloads.
type NoticeConfig struct {
	Enabled     bool     `toml:"enabled" env:"ENABLED"`
	Layer       string   `toml:"layer" env:"LAYER"`
	TTL         int      `toml:"ttl" env:"TTL"` // in TTL units
	MinInterval Duration `toml:"min_interval" env:"MIN_INTERVAL"`
}

// StateConfig controls persistence of layer contents across restarts.
type StateConfig struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	Path    string `toml:"path" env:"PATH"` // empty = data dir
}

// LCD drivers.
const (
	DriverI2C    = "i2c"
	DriverMemory = "memory"
)

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Server: ServerConfig{
			Host:            "",
			Port:            8070,
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Thing: ThingConfig{
			Name:        "",
			Description: "A character LCD with three prioritised text layers",
		},
		LCD: LCDConfig{
			Driver:    DriverI2C,
			Address:   0x27,
			Expander:  "PCF8574",
			Lines:     lcd.DefaultGeometry.Lines,
			Columns:   lcd.DefaultGeometry.Columns,
			Backlight: true,
		},
		Layers: LayersConfig{
			TTLUnit: Duration(time.Second),
		},
		DBus: DBusConfig{
			Enabled: false,
			Bus:     "session",
		},
		Log: LogConfig{
			Level: "info",
		},
		Notices: NoticeConfig{
			Enabled:     false,
			Layer:       "upper",
			TTL:         5,
			MinInterval: Duration(2 * time.Second),
		},
		State: StateConfig{
			Enabled: false,
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func DaemonConfigPath() string {
	return filepath.Join(configHome(), "pidisplay", "pidisplayd.toml")
}

// LoadDaemonConfig loads the daemon configuration: defaults, then the TOML
// file at path (the default path if empty), then PIDISPLAY_* environment
// variables. A missing file is not an error.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		path = DaemonConfigPath()
	}

	config := DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig writes the configuration to path atomically.
func SaveDaemonConfig(config *DaemonConfig, path string) error {
	if path == "" {
		path = DaemonConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// ApplyArgs applies the positional form
// <port> <name> <expander> <address> [lines] [columns].
// Any prefix of the list may be given.
func (c *DaemonConfig) ApplyArgs(args []string) error {
	if len(args) > 6 {
		return fmt.Errorf("too many arguments: expected at most 6, got %d", len(args))
	}
	for i, arg := range args {
		var err error
		switch i {
		case 0:
			c.Server.Port, err = strconv.Atoi(arg)
			if err != nil {
				err = fmt.Errorf("invalid port %q", arg)
			}
		case 1:
			c.Thing.Name = arg
		case 2:
			c.LCD.Expander = arg
		case 3:
			c.LCD.Address, err = ParseAddress(arg)
		case 4:
			c.LCD.Lines, err = strconv.Atoi(arg)
			if err != nil {
				err = fmt.Errorf("invalid line count %q", arg)
			}
		case 5:
			c.LCD.Columns, err = strconv.Atoi(arg)
			if err != nil {
				err = fmt.Errorf("invalid column count %q", arg)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.LCD.Driver {
	case DriverI2C, DriverMemory:
	default:
		return fmt.Errorf("invalid lcd driver %q, must be one of: [%s %s]", c.LCD.Driver, DriverI2C, DriverMemory)
	}
	if c.LCD.Driver == DriverI2C {
		if !validExpander(c.LCD.Expander) {
			return fmt.Errorf("invalid expander %q, must be one of: %v", c.LCD.Expander, lcd.Expanders())
		}
		if c.LCD.Address < 0x03 || c.LCD.Address > 0x77 {
			return fmt.Errorf("i2c address must be between 0x03 and 0x77, got %s", c.LCD.Address)
		}
	}
	if err := c.Geometry().Validate(); err != nil {
		return err
	}

	if c.Layers.TTLUnit.Duration() <= 0 {
		return fmt.Errorf("ttl_unit must be positive, got %s", c.Layers.TTLUnit.Duration())
	}

	switch c.DBus.Bus {
	case "session", "system":
	default:
		return fmt.Errorf("invalid dbus bus %q, must be session or system", c.DBus.Bus)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Notices.Enabled {
		if _, err := compositor.ParseRank(c.Notices.Layer); err != nil {
			return fmt.Errorf("invalid notice layer: %w", err)
		}
		if c.Notices.TTL < 0 {
			return fmt.Errorf("notice ttl must be 0 or greater, got %d", c.Notices.TTL)
		}
	}

	return nil
}

func validExpander(name string) bool {
	for _, e := range lcd.Expanders() {
		if strings.EqualFold(e, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Geometry returns the configured character grid.
func (c *DaemonConfig) Geometry() lcd.Geometry {
	return lcd.Geometry{Lines: c.LCD.Lines, Columns: c.LCD.Columns}
}

// ListenAddr returns the host:port the WebThing server binds.
func (c *DaemonConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LCDDriverConfig returns the hardware settings for lcd.Open.
func (c *DaemonConfig) LCDDriverConfig() lcd.Config {
	return lcd.Config{
		Bus:       c.LCD.Bus,
		Address:   uint16(c.LCD.Address),
		Expander:  c.LCD.Expander,
		Geometry:  c.Geometry(),
		Backlight: c.LCD.Backlight,
	}
}

// StatePath returns the state file location.
func (c *DaemonConfig) StatePath() string {
	if c.State.Path != "" {
		return expandPath(c.State.Path)
	}
	return filepath.Join(DataPath(), "state.json")
}

// RestartRequired lists the settings that differ from other and only take
// effect after a restart.
func (c *DaemonConfig) RestartRequired(other *DaemonConfig) []string {
	var fields []string
	if c.Server != other.Server {
		fields = append(fields, "server")
	}
	if c.Thing.Name != other.Thing.Name {
		fields = append(fields, "thing.name")
	}
	if c.LCD != other.LCD {
		fields = append(fields, "lcd")
	}
	if c.Layers != other.Layers {
		fields = append(fields, "layers")
	}
	if c.DBus != other.DBus {
		fields = append(fields, "dbus")
	}
	if c.State != other.State {
		fields = append(fields, "state")
	}
	return fields
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", s)
	}
	return level, nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
