package lcd

import (
	"fmt"
	"sort"
	"strings"
)

// expander describes how the HD44780 pins are wired to an I2C port
// expander.
type expander struct {
	name      string
	rs        byte
	en        byte
	backlight byte
	dataShift uint // bit position of D4
	register  int  // GPIO register to write, or -1 to write the port directly
	setup     [][]byte
}

var expanders = map[string]expander{
	// Common I2C backpack: P0=RS P1=RW P2=E P3=backlight P4..P7=D4..D7.
	"PCF8574": {
		name:      "PCF8574",
		rs:        0x01,
		en:        0x04,
		backlight: 0x08,
		dataShift: 4,
		register:  -1,
	},
	// Adafruit I2C/SPI backpack: GP1=RS GP2=E GP3..GP6=D4..D7 GP7=backlight.
	"MCP23008": {
		name:      "MCP23008",
		rs:        0x02,
		en:        0x04,
		backlight: 0x80,
		dataShift: 3,
		register:  0x09,
		setup: [][]byte{
			{0x00, 0x00}, // IODIR: all outputs
		},
	},
}

// Expanders returns the supported port expander names.
func Expanders() []string {
	names := make([]string, 0, len(expanders))
	for name := range expanders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupExpander(name string) (*expander, error) {
	e, ok := expanders[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q, must be one of: %v", ErrUnknownExpander, name, Expanders())
	}
	return &e, nil
}

// encode returns the port value for a data nibble with the enable pin low.
func (e *expander) encode(nibble byte, rs, light bool) byte {
	v := (nibble & 0x0F) << e.dataShift
	if rs {
		v |= e.rs
	}
	if light {
		v |= e.backlight
	}
	return v
}

// frame wraps a port value in whatever the expander needs on the wire.
func (e *expander) frame(v byte) []byte {
	if e.register < 0 {
		return []byte{v}
	}
	return []byte{byte(e.register), v}
}
