package lcd

import (
	"errors"
	"fmt"
)

// ErrUnknownExpander is returned for unsupported port expander names.
var ErrUnknownExpander = errors.New("unknown port expander")

// HardwareError reports a failed bus transaction.
type HardwareError struct {
	Op      string
	Address uint16
	Cause   error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("lcd %s at 0x%02x: %v", e.Op, e.Address, e.Cause)
}

func (e *HardwareError) Unwrap() error {
	return e.Cause
}

// BindError reports that the driver could not be bound at startup, e.g. a
// wrong address or an I2C bus that is not enabled.
type BindError struct {
	Bus      string
	Address  uint16
	Expander string
	Cause    error
}

func (e *BindError) Error() string {
	bus := e.Bus
	if bus == "" {
		bus = "default"
	}
	return fmt.Sprintf("binding %s driver to address 0x%02x on bus %s failed: %v", e.Expander, e.Address, bus, e.Cause)
}

func (e *BindError) Unwrap() error {
	return e.Cause
}
