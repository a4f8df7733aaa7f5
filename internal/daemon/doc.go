// Package daemon wires pidisplayd together. It binds the LCD, builds the
// layered display, exposes it over WebThing and D-Bus, reloads settings when
// the config file changes, shows internal notices on the display and keeps
// layer contents across restarts.
package daemon
