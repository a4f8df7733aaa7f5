package main

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/config"
	"github.com/jmylchreest/pidisplay/internal/lcd"
	"github.com/jmylchreest/pidisplay/internal/properties"
	"github.com/jmylchreest/pidisplay/internal/webthing"
)

// withDaemon points the CLI globals at an in-process thing server.
func withDaemon(t *testing.T) *compositor.Display {
	t.Helper()
	hub := properties.NewHub(8, nil)
	d := compositor.New(lcd.NewMemory(lcd.DefaultGeometry), compositor.Options{Observer: hub})
	s := webthing.New(webthing.Config{Name: "Test"}, properties.NewRegistry(d), hub, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		d.Close()
	})

	cfg = config.DefaultConfig()
	cfg.Server.URL = ts.URL
	cfg.Server.Timeout = config.Duration(5 * time.Second)
	logger = slog.New(slog.DiscardHandler)
	return d
}

func TestRunSet(t *testing.T) {
	d := withDaemon(t)
	setOpts.ttl, setOpts.stdin = 0, false

	setCmd.SetContext(context.Background())
	require.NoError(t, setCmd.Flags().Set("ttl", "30"))
	t.Cleanup(func() { setCmd.Flags().Lookup("ttl").Changed = false })

	require.NoError(t, runSet(setCmd, []string{"upper", `Hello\nWorld`}))
	assert.Equal(t, "Hello\nWorld", d.Text())
	upper, _ := d.Panel(compositor.RankUpper)
	assert.Equal(t, 30, upper.TTL())

	assert.Error(t, runSet(setCmd, []string{"top", "x"}))
}

func TestRunSet_Stdin(t *testing.T) {
	d := withDaemon(t)
	setOpts.stdin = true
	t.Cleanup(func() { setOpts.stdin = false })

	setCmd.SetContext(context.Background())
	setCmd.SetIn(strings.NewReader("from pipe\n"))
	require.NoError(t, runSet(setCmd, []string{"lower"}))
	assert.Equal(t, "from pipe", d.Text())
}

func TestRunClear(t *testing.T) {
	d := withDaemon(t)
	for _, r := range compositor.Ranks() {
		p, _ := d.Panel(r)
		require.NoError(t, p.UpdateText(r.String()))
	}

	clearCmd.SetContext(context.Background())
	require.NoError(t, runClear(clearCmd, []string{"upper"}))
	assert.Equal(t, "middle", d.Text())

	clearOpts.all = true
	t.Cleanup(func() { clearOpts.all = false })
	require.NoError(t, runClear(clearCmd, nil))
	assert.Equal(t, "", d.Text())
}
