// Package lcd drives HD44780-compatible character displays attached through
// an I2C port expander, and lays text out on their fixed character grid.
//
// The compositor only sees Clear and Write. Everything that depends on the
// physical grid (line breaks, wrapping, truncation, the ROM character set)
// lives here.
package lcd
