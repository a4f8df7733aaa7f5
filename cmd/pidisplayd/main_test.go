package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pidisplay/internal/config"
)

func TestOverrides(t *testing.T) {
	require.NoError(t, rootCmd.Flags().Set("driver", "memory"))
	t.Cleanup(func() {
		rootCmd.Flags().Lookup("driver").Changed = false
		opts.driver = ""
	})

	c := config.DefaultDaemonConfig()
	c.LCD.Bus = "I2C7"
	apply := overrides(rootCmd, []string{"9000", "Kitchen", "pcf8574", "0x3f", "2", "16"})
	require.NoError(t, apply(c))

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "Kitchen", c.Thing.Name)
	assert.Equal(t, config.Address(0x3f), c.LCD.Address)
	assert.Equal(t, 2, c.LCD.Lines)
	assert.Equal(t, 16, c.LCD.Columns)
	assert.Equal(t, config.DriverMemory, c.LCD.Driver)
	assert.Equal(t, "I2C7", c.LCD.Bus, "unset flags keep the config value")

	assert.Error(t, overrides(rootCmd, []string{"port"})(config.DefaultDaemonConfig()))
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PIDISPLAY_TEST_VALUE=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("PIDISPLAY_TEST_VALUE") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("PIDISPLAY_TEST_VALUE"))
}
