// Package dbus exports the display on D-Bus as io.github.jmylchreest.PiDisplay.
// Every display property is available through org.freedesktop.DBus.Properties
// and emits PropertiesChanged after each recomposition. The Clear, SetLayer
// and GetText methods cover scripts that prefer method calls.
package dbus
