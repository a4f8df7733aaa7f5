package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/properties"
)

const (
	// DBusInterface is the display interface name.
	DBusInterface = "io.github.jmylchreest.PiDisplay"
	// DBusPath is the display object path.
	DBusPath = "/io/github/jmylchreest/PiDisplay"
	// DBusBusName is the bus name to claim.
	DBusBusName = "io.github.jmylchreest.PiDisplay"
)

// Bus selects which message bus to export on.
type Bus string

const (
	BusSession Bus = "session"
	BusSystem  Bus = "system"
)

// propertySetter is the part of *prop.Properties the server updates.
type propertySetter interface {
	SetMust(iface, property string, v any)
}

// DisplayServer exports the display properties and layer methods on D-Bus.
type DisplayServer struct {
	conn     *dbus.Conn
	logger   *slog.Logger
	registry *properties.Registry
	hub      *properties.Hub
	bus      Bus

	mu      sync.Mutex
	props   propertySetter
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDisplayServer creates a server for the registry. Changes published by
// the hub are mirrored as PropertiesChanged signals.
func NewDisplayServer(registry *properties.Registry, hub *properties.Hub, logger *slog.Logger) *DisplayServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayServer{
		logger:   logger,
		registry: registry,
		hub:      hub,
		bus:      BusSession,
	}
}

// SetBus selects the session or system bus. It must be called before Start.
func (s *DisplayServer) SetBus(bus Bus) {
	s.bus = bus
}

func (s *DisplayServer) connect() (*dbus.Conn, error) {
	switch s.bus {
	case BusSystem:
		return dbus.SystemBus()
	case BusSession, "":
		return dbus.SessionBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", s.bus)
	}
}

// Start connects to the bus, exports the display object and starts
// forwarding changes.
func (s *DisplayServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to %s bus: %w", s.bus, err)
	}
	s.conn = conn

	if err := conn.Export(s, DBusPath, DBusInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	props, err := prop.Export(conn, DBusPath, s.propertyMap())
	if err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: DBusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       DBusInterface,
				Methods:    displayMethods(),
				Properties: props.Introspection(DBusInterface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), DBusPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(DBusBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", DBusBusName)
	}

	s.mu.Lock()
	s.props = props
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.forward(s.hub.Subscribe(), s.stopCh, s.doneCh)

	s.logger.Info("D-Bus display server started", "bus", string(s.bus), "interface", DBusInterface, "path", DBusPath)
	return nil
}

// Stop releases the bus name and stops forwarding changes.
func (s *DisplayServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh

	if s.conn != nil {
		if _, err := s.conn.ReleaseName(DBusBusName); err != nil {
			s.logger.Warn("failed to release bus name", "error", err)
		}
		// The shared bus connection stays open.
	}

	s.logger.Info("D-Bus display server stopped")
	return nil
}

// forward mirrors hub updates onto the exported properties until stopped.
func (s *DisplayServer) forward(sub *properties.Subscription, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer sub.Close()

	for {
		select {
		case <-stopCh:
			return
		case u, ok := <-sub.C():
			if !ok {
				return
			}
			s.apply(u.Values)
		}
	}
}

// apply stores every value on the exported properties. Each store emits
// PropertiesChanged.
func (s *DisplayServer) apply(values map[string]any) {
	s.mu.Lock()
	props := s.props
	s.mu.Unlock()
	if props == nil {
		return
	}

	for _, d := range s.registry.Descriptors() {
		v, ok := values[d.Name]
		if !ok {
			continue
		}
		props.SetMust(DBusInterface, d.Name, toDBusValue(d.Type, v))
	}
}

// propertyMap builds the prop.Map from the registry, seeded with current
// values.
func (s *DisplayServer) propertyMap() prop.Map {
	values := s.registry.Values()
	m := make(map[string]*prop.Prop)
	for _, d := range s.registry.Descriptors() {
		m[d.Name] = &prop.Prop{
			Value:    toDBusValue(d.Type, values[d.Name]),
			Writable: !d.ReadOnly,
			Emit:     prop.EmitTrue,
			Callback: s.onSet,
		}
	}
	return prop.Map{DBusInterface: m}
}

// onSet forwards org.freedesktop.DBus.Properties.Set to the registry.
func (s *DisplayServer) onSet(c *prop.Change) *dbus.Error {
	s.logger.Debug("property set over D-Bus", "property", c.Name)
	err := s.registry.Set(c.Name, c.Value)
	var writeErr *compositor.DisplayWriteError
	if errors.As(err, &writeErr) {
		// The value was applied; only the device missed it.
		s.logger.Warn("display write failed", "property", c.Name, "error", err)
		return nil
	}
	return toDBusError(err)
}

// Clear empties a layer.
// D-Bus method: Clear(s) -> nothing
func (s *DisplayServer) Clear(layer string) *dbus.Error {
	s.logger.Debug("Clear called", "layer", layer)

	l, err := s.registry.Display().PanelByName(layer)
	if err != nil {
		return toDBusError(err)
	}
	return toDBusError(l.Clear())
}

// SetLayer replaces the text and TTL of a layer in one call.
// D-Bus method: SetLayer(ssi) -> nothing
func (s *DisplayServer) SetLayer(layer, text string, ttl int32) *dbus.Error {
	s.logger.Debug("SetLayer called", "layer", layer, "ttl", ttl)

	r, err := compositor.ParseRank(layer)
	if err != nil {
		return toDBusError(err)
	}
	if err := s.registry.Set(properties.LayerTTLProperty(r), ttl); err != nil {
		return toDBusError(err)
	}
	return toDBusError(s.registry.Set(properties.LayerTextProperty(r), text))
}

// GetText returns the rendered text.
// D-Bus method: GetText() -> s
func (s *DisplayServer) GetText() (string, *dbus.Error) {
	return s.registry.Display().Text(), nil
}

func toDBusValue(t properties.Type, v any) any {
	switch t {
	case properties.TypeInteger:
		n, _ := v.(int)
		return int32(n)
	default:
		str, _ := v.(string)
		return str
	}
}

// displayMethods returns the D-Bus method introspection data.
func displayMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "Clear",
			Args: []introspect.Arg{
				{Name: "layer", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "SetLayer",
			Args: []introspect.Arg{
				{Name: "layer", Type: "s", Direction: "in"},
				{Name: "text", Type: "s", Direction: "in"},
				{Name: "ttl", Type: "i", Direction: "in"},
			},
		},
		{
			Name: "GetText",
			Args: []introspect.Arg{
				{Name: "text", Type: "s", Direction: "out"},
			},
		},
	}
}

// Connection returns the underlying D-Bus connection.
func (s *DisplayServer) Connection() *dbus.Conn {
	return s.conn
}
