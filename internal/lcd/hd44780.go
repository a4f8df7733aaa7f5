package lcd

import (
	"io"
	"sync"
	"time"
)

// HD44780 instruction set, 4-bit interface.
const (
	cmdClear          = 0x01
	cmdEntryMode      = 0x04
	cmdDisplayControl = 0x08
	cmdFunctionSet    = 0x20
	cmdSetDDRAM       = 0x80

	entryIncrement = 0x02
	displayOn      = 0x04
	twoLineMode    = 0x08
)

// Conn is a single I2C device on a bus.
type Conn interface {
	Tx(w, r []byte) error
}

// HD44780 is a character LCD controller behind an I2C port expander.
type HD44780 struct {
	mu        sync.Mutex
	dev       Conn
	closer    io.Closer
	expander  *expander
	address   uint16
	geometry  Geometry
	backlight bool
	sleep     func(time.Duration)
}

func newHD44780(dev Conn, exp *expander, address uint16, g Geometry) *HD44780 {
	return &HD44780{
		dev:       dev,
		expander:  exp,
		address:   address,
		geometry:  g,
		backlight: true,
		sleep:     time.Sleep,
	}
}

// Geometry returns the character grid size.
func (d *HD44780) Geometry() Geometry {
	return d.geometry
}

// Clear blanks the display and homes the cursor.
func (d *HD44780) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.command(cmdClear); err != nil {
		return &HardwareError{Op: "clear", Address: d.address, Cause: err}
	}
	d.sleep(2 * time.Millisecond)
	return nil
}

// Write lays text out on the grid and writes it row by row.
func (d *HD44780) Write(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, row := range Layout(text, d.geometry) {
		if len(row) == 0 {
			continue
		}
		if err := d.command(cmdSetDDRAM | d.rowOffset(i)); err != nil {
			return &HardwareError{Op: "write", Address: d.address, Cause: err}
		}
		for _, b := range row {
			if err := d.data(b); err != nil {
				return &HardwareError{Op: "write", Address: d.address, Cause: err}
			}
		}
	}
	return nil
}

// SetBacklight switches the backlight. The new state is latched with the
// next bus write.
func (d *HD44780) SetBacklight(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.backlight = on
	if err := d.port(d.expander.encode(0, false, on)); err != nil {
		return &HardwareError{Op: "backlight", Address: d.address, Cause: err}
	}
	return nil
}

// Close releases the bus.
func (d *HD44780) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// init runs the power-on sequence that forces the controller into 4-bit
// mode regardless of its current state.
func (d *HD44780) init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, setup := range d.expander.setup {
		if err := d.dev.Tx(setup, nil); err != nil {
			return err
		}
	}

	d.sleep(50 * time.Millisecond)
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := d.nibble(0x03, false); err != nil {
			return err
		}
		d.sleep(wait)
	}
	if err := d.nibble(0x02, false); err != nil {
		return err
	}

	function := byte(cmdFunctionSet)
	if d.geometry.Lines > 1 {
		function |= twoLineMode
	}
	for _, cmd := range []byte{function, cmdDisplayControl | displayOn, cmdClear, cmdEntryMode | entryIncrement} {
		if err := d.command(cmd); err != nil {
			return err
		}
		if cmd == cmdClear {
			d.sleep(2 * time.Millisecond)
		}
	}
	return nil
}

// rowOffset returns the DDRAM address of the first character of a row.
// Rows 2 and 3 continue rows 0 and 1 in display RAM.
func (d *HD44780) rowOffset(row int) byte {
	cols := byte(d.geometry.Columns)
	offsets := [4]byte{0x00, 0x40, cols, 0x40 + cols}
	return offsets[row]
}

func (d *HD44780) command(b byte) error {
	return d.send(b, false)
}

func (d *HD44780) data(b byte) error {
	return d.send(b, true)
}

func (d *HD44780) send(b byte, rs bool) error {
	if err := d.nibble(b>>4, rs); err != nil {
		return err
	}
	return d.nibble(b&0x0F, rs)
}

// nibble clocks four data bits into the controller with an enable pulse.
func (d *HD44780) nibble(n byte, rs bool) error {
	v := d.expander.encode(n, rs, d.backlight)
	if err := d.port(v | d.expander.en); err != nil {
		return err
	}
	return d.port(v)
}

func (d *HD44780) port(v byte) error {
	return d.dev.Tx(d.expander.frame(v), nil)
}
