package dbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/lcd"
	"github.com/jmylchreest/pidisplay/internal/properties"
)

type fakeProps struct {
	mu     sync.Mutex
	values map[string]any
}

func (f *fakeProps) SetMust(iface, property string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]any)
	}
	f.values[iface+"."+property] = v
}

func newTestServer(t *testing.T) (*DisplayServer, *lcd.Memory) {
	t.Helper()
	mem := lcd.NewMemory(lcd.DefaultGeometry)
	hub := properties.NewHub(4, nil)
	d := compositor.New(mem, compositor.Options{Observer: hub})
	t.Cleanup(func() {
		d.Close()
		hub.Close()
	})
	return NewDisplayServer(properties.NewRegistry(d), hub, nil), mem
}

func TestDisplayServer_SetLayer(t *testing.T) {
	s, mem := newTestServer(t)

	require.Nil(t, s.SetLayer("upper", "hello", 30))
	text, dErr := s.GetText()
	require.Nil(t, dErr)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "hello", mem.Lines()[0][:5])

	l, err := s.registry.Display().Panel(compositor.RankUpper)
	require.NoError(t, err)
	assert.Equal(t, 30, l.TTL())

	require.Nil(t, s.SetLayer("1", "mid", -1))
	require.Nil(t, s.Clear("upper"))
	text, _ = s.GetText()
	assert.Equal(t, "mid", text)
}

func TestDisplayServer_MethodErrors(t *testing.T) {
	s, _ := newTestServer(t)

	dErr := s.SetLayer("sideways", "x", -1)
	require.NotNil(t, dErr)
	assert.Equal(t, ErrNameUnknownLayer, dErr.Name)

	dErr = s.SetLayer("upper", "x", -7)
	require.NotNil(t, dErr)
	assert.Equal(t, ErrNameInvalidValue, dErr.Name)

	dErr = s.Clear("9")
	require.NotNil(t, dErr)
	assert.Equal(t, ErrNameUnknownLayer, dErr.Name)
}

func TestDisplayServer_OnSet(t *testing.T) {
	s, mem := newTestServer(t)

	dErr := s.onSet(&prop.Change{Iface: DBusInterface, Name: "lower_layer_text", Value: "via props"})
	require.Nil(t, dErr)
	text, _ := s.GetText()
	assert.Equal(t, "via props", text)

	dErr = s.onSet(&prop.Change{Iface: DBusInterface, Name: "lower_layer_text_ttl", Value: int32(-3)})
	require.NotNil(t, dErr)
	assert.Equal(t, ErrNameInvalidValue, dErr.Name)

	// A device failure still applies the value, so Set succeeds.
	mem.Fail(errors.New("nack"))
	dErr = s.onSet(&prop.Change{Iface: DBusInterface, Name: "lower_layer_text", Value: "offline"})
	assert.Nil(t, dErr)
	text, _ = s.GetText()
	assert.Equal(t, "offline", text)
}

func TestDisplayServer_PropertyMap(t *testing.T) {
	s, _ := newTestServer(t)
	require.Nil(t, s.SetLayer("middle", "seed", -1))

	m := s.propertyMap()[DBusInterface]
	require.Len(t, m, 7)

	assert.False(t, m["text"].Writable)
	assert.Equal(t, "seed", m["text"].Value)
	assert.True(t, m["middle_layer_text"].Writable)
	assert.Equal(t, int32(-1), m["middle_layer_text_ttl"].Value)
	for name, p := range m {
		assert.Equal(t, prop.EmitTrue, p.Emit, name)
	}
}

func TestDisplayServer_ApplyUpdate(t *testing.T) {
	s, _ := newTestServer(t)
	fake := &fakeProps{}
	s.props = fake

	s.apply(map[string]any{
		"text":                 "shown",
		"upper_layer_text_ttl": 12,
	})

	assert.Equal(t, map[string]any{
		DBusInterface + ".text":                 "shown",
		DBusInterface + ".upper_layer_text_ttl": int32(12),
	}, fake.values)
}

func TestDisplayServer_ForwardsHubUpdates(t *testing.T) {
	s, _ := newTestServer(t)
	fake := &fakeProps{}
	s.props = fake

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go s.forward(s.hub.Subscribe(), stopCh, doneCh)

	require.Nil(t, s.SetLayer("lower", "forwarded", -1))
	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.values[DBusInterface+".text"] == "forwarded"
	}, time.Second, 5*time.Millisecond)

	close(stopCh)
	<-doneCh
	assert.Equal(t, 0, s.hub.Count())
}

func TestToDBusError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{properties.ErrUnknownProperty, ErrNameUnknownProperty},
		{properties.ErrReadOnly, ErrNameReadOnly},
		{properties.ErrInvalidValue, ErrNameInvalidValue},
		{compositor.ErrInvalidTTL, ErrNameInvalidValue},
		{compositor.ErrOutOfRange, ErrNameUnknownLayer},
		{&compositor.DisplayWriteError{Op: "write", Cause: errors.New("x")}, ErrNameWriteFailed},
		{compositor.ErrClosed, ErrNameClosed},
		{errors.New("other"), "org.freedesktop.DBus.Error.Failed"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			dErr := toDBusError(tt.err)
			require.NotNil(t, dErr)
			assert.Equal(t, tt.expected, dErr.Name)
		})
	}
	assert.Nil(t, toDBusError(nil))
}

func TestToDBusValue(t *testing.T) {
	assert.Equal(t, int32(5), toDBusValue(properties.TypeInteger, 5))
	assert.Equal(t, "x", toDBusValue(properties.TypeString, "x"))
	assert.Equal(t, "", toDBusValue(properties.TypeString, nil))
}

func TestDisplayMethods(t *testing.T) {
	var names []string
	for _, m := range displayMethods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Clear", "SetLayer", "GetText"}, names)
}

func TestStopWithoutStart(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.Stop())
}
