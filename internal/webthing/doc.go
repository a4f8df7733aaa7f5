// Package webthing serves the display as a Mozilla WebThing: a Thing
// Description at the root, REST endpoints for properties, and a WebSocket
// on the root URL that streams propertyStatus messages and accepts
// setProperty requests.
package webthing
