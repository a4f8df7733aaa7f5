package dbus

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/properties"
)

// D-Bus error names returned by the display interface.
const (
	ErrNameUnknownProperty = DBusInterface + ".Error.UnknownProperty"
	ErrNameReadOnly        = DBusInterface + ".Error.ReadOnly"
	ErrNameInvalidValue    = DBusInterface + ".Error.InvalidValue"
	ErrNameUnknownLayer    = DBusInterface + ".Error.UnknownLayer"
	ErrNameWriteFailed     = DBusInterface + ".Error.WriteFailed"
	ErrNameClosed          = DBusInterface + ".Error.Closed"
)

// toDBusError maps registry and compositor errors onto named D-Bus errors.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	var writeErr *compositor.DisplayWriteError
	name := ""
	switch {
	case errors.Is(err, properties.ErrUnknownProperty):
		name = ErrNameUnknownProperty
	case errors.Is(err, properties.ErrReadOnly):
		name = ErrNameReadOnly
	case errors.Is(err, properties.ErrInvalidValue), errors.Is(err, compositor.ErrInvalidTTL):
		name = ErrNameInvalidValue
	case errors.Is(err, compositor.ErrOutOfRange):
		name = ErrNameUnknownLayer
	case errors.As(err, &writeErr):
		name = ErrNameWriteFailed
	case errors.Is(err, compositor.ErrClosed):
		name = ErrNameClosed
	default:
		return dbus.MakeFailedError(err)
	}
	return dbus.NewError(name, []any{err.Error()})
}
