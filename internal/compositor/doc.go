// Package compositor resolves a fixed set of prioritised text layers into the
// single string shown on a character display.
//
// A Display owns three layers (upper, middle, lower). Whenever a layer
// changes, the Display picks the first non-empty layer in priority order,
// clears the physical driver, writes the winning text and then notifies its
// Observer. Layers may carry a time-to-live after which they clear
// themselves.
package compositor
