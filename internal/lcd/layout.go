package lcd

import (
	"fmt"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Geometry is the size of the character grid.
type Geometry struct {
	Lines   int `json:"lines" toml:"lines"`
	Columns int `json:"columns" toml:"columns"`
}

// DefaultGeometry is the 4x20 module the daemon assumes when none is given.
var DefaultGeometry = Geometry{Lines: 4, Columns: 20}

// Validate checks the grid is one HD44780 controllers can address.
func (g Geometry) Validate() error {
	if g.Lines < 1 || g.Lines > 4 {
		return fmt.Errorf("lines must be between 1 and 4, got %d", g.Lines)
	}
	if g.Columns < 1 || g.Columns > 40 {
		return fmt.Errorf("columns must be between 1 and 40, got %d", g.Columns)
	}
	if g.Lines*g.Columns > 80 {
		return fmt.Errorf("a %dx%d grid exceeds the 80 character display RAM", g.Lines, g.Columns)
	}
	return nil
}

// String returns the geometry as "LINESxCOLUMNS".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Lines, g.Columns)
}

// romA00 maps runes to their code in the common A00 (Japanese) character
// ROM. Anything not listed here and outside ASCII is folded.
var romA00 = map[rune]byte{
	'ä': 0xE1,
	'ß': 0xE2,
	'µ': 0xE4,
	'ö': 0xEF,
	'Ω': 0xF4,
	'ü': 0xF5,
	'Σ': 0xF6,
	'π': 0xF7,
	'÷': 0xFD,
	'°': 0xDF,
	'→': 0x7E,
	'←': 0x7F,
}

var romA00Reverse = func() map[byte]rune {
	m := make(map[byte]rune, len(romA00))
	for r, b := range romA00 {
		m[b] = r
	}
	return m
}()

// foldRune returns the ROM code for r. Accented latin letters lose their
// accents; everything else unprintable becomes '?', including '~' whose
// code is taken by '→'.
func foldRune(r rune) byte {
	if r >= 0x20 && r < 0x7E {
		return byte(r)
	}
	if b, ok := romA00[r]; ok {
		return b
	}
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	s, _, err := transform.String(stripMarks, string(r))
	if err == nil && len(s) == 1 && s[0] >= 0x20 && s[0] < 0x7E {
		return s[0]
	}
	return '?'
}

// romToRune is the inverse of foldRune for display purposes.
func romToRune(b byte) rune {
	if r, ok := romA00Reverse[b]; ok {
		return r
	}
	if b < 0x20 || b > 0x7E {
		return '?'
	}
	return rune(b)
}

// Layout places text on the grid. '\n' starts a new line, '\r' returns to
// the start of the current line and overwrites, text wraps at the last
// column and anything beyond the last line is dropped. Rows hold ROM codes
// and are not padded.
//
// Characters go through the A00 ROM, which is not ASCII at the top: '~'
// becomes '?' because code 0x7E is drawn as '→', and a backslash shows as '¥'.
func Layout(text string, g Geometry) [][]byte {
	rows := make([][]byte, 0, g.Lines)
	var cur []byte
	col := 0

	newline := func() bool {
		rows = append(rows, cur)
		cur = nil
		col = 0
		return len(rows) < g.Lines
	}

	for _, r := range text {
		switch {
		case r == '\n':
			if !newline() {
				return rows
			}
			continue
		case r == '\r':
			col = 0
			continue
		case r == '\t':
			r = ' '
		case unicode.IsControl(r):
			continue
		}

		if col == g.Columns {
			if !newline() {
				return rows
			}
		}
		b := foldRune(r)
		if col < len(cur) {
			cur[col] = b
		} else {
			cur = append(cur, b)
		}
		col++
	}

	if len(cur) > 0 && len(rows) < g.Lines {
		rows = append(rows, cur)
	}
	return rows
}

// Render returns the grid as it would appear on the display, each line
// padded to the full width.
func Render(text string, g Geometry) []string {
	rows := Layout(text, g)
	lines := make([]string, g.Lines)
	for i := range lines {
		buf := make([]rune, g.Columns)
		for j := range buf {
			buf[j] = ' '
		}
		if i < len(rows) {
			for j, b := range rows[i] {
				buf[j] = romToRune(b)
			}
		}
		lines[i] = string(buf)
	}
	return lines
}
