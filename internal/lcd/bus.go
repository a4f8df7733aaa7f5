package lcd

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Config selects the bus, expander and grid of a hardware display.
type Config struct {
	// Bus is the I2C bus name or number. Empty picks the first bus found.
	Bus       string
	Address   uint16
	Expander  string
	Geometry  Geometry
	Backlight bool
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

func openBus(name string) (i2c.BusCloser, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus: %w", err)
	}
	return bus, nil
}

// Open binds an HD44780 on the configured bus and runs its init sequence.
// Any failure is reported as a *BindError.
func Open(cfg Config, logger *slog.Logger) (*HD44780, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bindErr := func(err error) error {
		return &BindError{Bus: cfg.Bus, Address: cfg.Address, Expander: cfg.Expander, Cause: err}
	}

	exp, err := lookupExpander(cfg.Expander)
	if err != nil {
		return nil, bindErr(err)
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, bindErr(err)
	}

	bus, err := openBus(cfg.Bus)
	if err != nil {
		return nil, bindErr(err)
	}

	d := newHD44780(&i2c.Dev{Addr: cfg.Address, Bus: bus}, exp, cfg.Address, cfg.Geometry)
	d.backlight = cfg.Backlight
	d.closer = bus
	if err := d.init(); err != nil {
		_ = bus.Close()
		return nil, bindErr(err)
	}

	logger.Info("lcd bound",
		"bus", bus.String(),
		"address", fmt.Sprintf("0x%02x", cfg.Address),
		"expander", exp.name,
		"geometry", cfg.Geometry.String())
	return d, nil
}

// ScanBus probes every 7-bit address on the bus and returns those that
// acknowledge a one byte read.
func ScanBus(name string) ([]uint16, error) {
	bus, err := openBus(name)
	if err != nil {
		return nil, err
	}
	defer bus.Close()
	return scan(bus), nil
}

// scan skips the reserved address ranges at both ends.
func scan(bus i2c.Bus) []uint16 {
	var found []uint16
	buf := make([]byte, 1)
	for addr := uint16(0x03); addr <= 0x77; addr++ {
		if err := bus.Tx(addr, nil, buf); err == nil {
			found = append(found, addr)
		}
	}
	return found
}

// Buses returns the names of the I2C buses registered on this host.
func Buses() ([]string, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
