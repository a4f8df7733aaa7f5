package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pidisplayd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()

	assert.Equal(t, 8070, cfg.Server.Port)
	assert.Equal(t, DriverI2C, cfg.LCD.Driver)
	assert.Equal(t, Address(0x27), cfg.LCD.Address)
	assert.Equal(t, "PCF8574", cfg.LCD.Expander)
	assert.Equal(t, 4, cfg.LCD.Lines)
	assert.Equal(t, 20, cfg.LCD.Columns)
	assert.Equal(t, time.Second, cfg.Layers.TTLUnit.Duration())
	assert.False(t, cfg.DBus.Enabled)
	assert.False(t, cfg.Notices.Enabled, "notices borrow a client layer, so they are opt-in")
	assert.Equal(t, "upper", cfg.Notices.Layer)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDaemonConfig_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadDaemonConfig("/nonexistent/path/pidisplayd.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemonConfig(), cfg)
}

func TestLoadDaemonConfig_ParsesTOML(t *testing.T) {
	path := writeFile(t, `
[server]
host = "127.0.0.1"
port = 9000
shutdown_timeout = "10s"

[thing]
name = "Hallway"
description = "by the door"

[lcd]
driver = "i2c"
bus = "1"
address = 0x3f
expander = "mcp23008"
lines = 2
columns = 16
backlight = false

[layers]
ttl_unit = 500

[dbus]
enabled = true
bus = "system"

[log]
level = "debug"

[notices]
enabled = true
layer = "middle"
ttl = 3
min_interval = "1m"

[state]
enabled = true
path = "/var/lib/pidisplay/state.json"
`)

	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "Hallway", cfg.Thing.Name)
	assert.Equal(t, Address(0x3f), cfg.LCD.Address)
	assert.Equal(t, "mcp23008", cfg.LCD.Expander)
	assert.False(t, cfg.LCD.Backlight)
	assert.Equal(t, 500*time.Millisecond, cfg.Layers.TTLUnit.Duration())
	assert.True(t, cfg.DBus.Enabled)
	assert.Equal(t, "system", cfg.DBus.Bus)
	assert.True(t, cfg.Notices.Enabled)
	assert.Equal(t, "middle", cfg.Notices.Layer)
	assert.Equal(t, time.Minute, cfg.Notices.MinInterval.Duration())
	assert.Equal(t, "/var/lib/pidisplay/state.json", cfg.StatePath())

	driver := cfg.LCDDriverConfig()
	assert.Equal(t, uint16(0x3f), driver.Address)
	assert.Equal(t, "1", driver.Bus)
	assert.Equal(t, 2, driver.Geometry.Lines)
	assert.Equal(t, 16, driver.Geometry.Columns)
}

func TestLoadDaemonConfig_AddressAsString(t *testing.T) {
	path := writeFile(t, `
[lcd]
address = "0x20"
`)
	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Address(0x20), cfg.LCD.Address)
}

func TestLoadDaemonConfig_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
[server]
port = 9000

[thing]
name = "FromFile"
`)
	t.Setenv("PIDISPLAY_SERVER_PORT", "9100")
	t.Setenv("PIDISPLAY_LCD_ADDRESS", "0x3f")
	t.Setenv("PIDISPLAY_LCD_DRIVER", "memory")
	t.Setenv("PIDISPLAY_LAYERS_TTL_UNIT", "250ms")

	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "FromFile", cfg.Thing.Name)
	assert.Equal(t, Address(0x3f), cfg.LCD.Address)
	assert.Equal(t, DriverMemory, cfg.LCD.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Layers.TTLUnit.Duration())
}

func TestLoadDaemonConfig_Errors(t *testing.T) {
	_, err := LoadDaemonConfig(writeFile(t, `[server`))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadDaemonConfig(writeFile(t, "[server]\nport = 0\n"))
	assert.ErrorContains(t, err, "invalid configuration")

	t.Setenv("PIDISPLAY_SERVER_PORT", "many")
	_, err = LoadDaemonConfig("/nonexistent/pidisplayd.toml")
	assert.ErrorContains(t, err, "failed to parse environment")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *DaemonConfig)
		errMsg string
	}{
		{"port too low", func(c *DaemonConfig) { c.Server.Port = 0 }, "port"},
		{"port too high", func(c *DaemonConfig) { c.Server.Port = 70000 }, "port"},
		{"unknown driver", func(c *DaemonConfig) { c.LCD.Driver = "spi" }, "lcd driver"},
		{"unknown expander", func(c *DaemonConfig) { c.LCD.Expander = "74HC595" }, "expander"},
		{"reserved address", func(c *DaemonConfig) { c.LCD.Address = 0x78 }, "address"},
		{"too many lines", func(c *DaemonConfig) { c.LCD.Lines = 5 }, "lines"},
		{"zero columns", func(c *DaemonConfig) { c.LCD.Columns = 0 }, "columns"},
		{"zero ttl unit", func(c *DaemonConfig) { c.Layers.TTLUnit = 0 }, "ttl_unit"},
		{"bad dbus bus", func(c *DaemonConfig) { c.DBus.Bus = "user" }, "dbus"},
		{"bad log level", func(c *DaemonConfig) { c.Log.Level = "loud" }, "log level"},
		{"bad notice layer", func(c *DaemonConfig) { c.Notices.Layer = "top" }, "notice layer"},
		{"negative notice ttl", func(c *DaemonConfig) { c.Notices.TTL = -1 }, "notice ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDaemonConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_MemoryDriverSkipsHardwareChecks(t *testing.T) {
	cfg := DefaultDaemonConfig()
	cfg.LCD.Driver = DriverMemory
	cfg.LCD.Expander = ""
	cfg.LCD.Address = 0
	assert.NoError(t, cfg.Validate())
}

func TestApplyArgs(t *testing.T) {
	cfg := DefaultDaemonConfig()
	require.NoError(t, cfg.ApplyArgs([]string{"9070", "Kitchen", "MCP23008", "0x20", "2", "16"}))

	assert.Equal(t, 9070, cfg.Server.Port)
	assert.Equal(t, "Kitchen", cfg.Thing.Name)
	assert.Equal(t, "MCP23008", cfg.LCD.Expander)
	assert.Equal(t, Address(0x20), cfg.LCD.Address)
	assert.Equal(t, 2, cfg.LCD.Lines)
	assert.Equal(t, 16, cfg.LCD.Columns)
	assert.NoError(t, cfg.Validate())

	cfg = DefaultDaemonConfig()
	require.NoError(t, cfg.ApplyArgs([]string{"8080", "Hall", "PCF8574", "39"}))
	assert.Equal(t, Address(0x27), cfg.LCD.Address)
	assert.Equal(t, 4, cfg.LCD.Lines, "optional geometry keeps the default")

	assert.Error(t, DefaultDaemonConfig().ApplyArgs([]string{"port"}))
	assert.Error(t, DefaultDaemonConfig().ApplyArgs([]string{"1", "n", "e", "0xZZ"}))
	assert.Error(t, DefaultDaemonConfig().ApplyArgs([]string{"1", "n", "e", "1", "x"}))
	assert.Error(t, DefaultDaemonConfig().ApplyArgs([]string{"1", "2", "3", "4", "5", "6", "7"}))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected Address
		wantErr  bool
	}{
		{"0x27", 0x27, false},
		{"0X3F", 0x3f, false},
		{"39", 39, false},
		{" 0x20 ", 0x20, false},
		{"0x", 0, true},
		{"twenty", 0, true},
		{"0x10000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, a)
		})
	}
	assert.Equal(t, "0x27", Address(0x27).String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"1s", time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"2000", 2 * time.Second, false},
		{"0", 0, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestRestartRequired(t *testing.T) {
	a := DefaultDaemonConfig()
	b := DefaultDaemonConfig()
	assert.Empty(t, a.RestartRequired(b))

	b.Log.Level = "debug"
	b.Thing.Description = "new"
	b.Notices.TTL = 9
	assert.Empty(t, a.RestartRequired(b), "hot-reloadable fields never need a restart")

	b.LCD.Columns = 16
	b.Server.Port = 9999
	assert.Equal(t, []string{"server", "lcd"}, a.RestartRequired(b))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestSaveDaemonConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pidisplayd.toml")
	cfg := DefaultDaemonConfig()
	cfg.LCD.Address = 0x3f
	cfg.Layers.TTLUnit = Duration(250 * time.Millisecond)
	require.NoError(t, SaveDaemonConfig(cfg, path))

	loaded, err := LoadDaemonConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDaemonConfigPath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/pidisplay/pidisplayd.toml", DaemonConfigPath())
	assert.Equal(t, "/tmp/xdg/pidisplay/config.toml", ConfigPath())

	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	assert.Equal(t, "/tmp/data/pidisplay/state.json", DefaultDaemonConfig().StatePath())
}

func TestLoadConfig_Client(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
url = "http://pi.local:8070"
timeout = "2s"

[output]
format = "json"

[watch]
show_help = false
`), 0644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://pi.local:8070", cfg.Server.URL)
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout.Duration())
	assert.Equal(t, "json", cfg.Output.Format)
	assert.False(t, cfg.Watch.ShowHelp)
	assert.True(t, cfg.Watch.ShowLayers)

	t.Setenv("PIDISPLAY_CLIENT_URL", "http://other:1")
	t.Setenv("PIDISPLAY_OUTPUT_FORMAT", "yaml")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://other:1", cfg.Server.URL)
	assert.Equal(t, "yaml", cfg.Output.Format)

	t.Setenv("PIDISPLAY_OUTPUT_FORMAT", "xml")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Output.Format = "yaml"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
