// Package properties exposes the layers of a compositor.Display as named,
// typed properties shared by every transport (HTTP, WebSocket, D-Bus).
//
// The Registry forwards reads and writes to the display. The Hub is the
// display's Observer and fans out a full refresh of every property to its
// subscribers after each recomposition.
package properties
