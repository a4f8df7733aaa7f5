package client

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/properties"
	"github.com/jmylchreest/pidisplay/internal/webthing"
)

// DefaultTTLUnit is assumed when a thing does not advertise its TTL unit.
const DefaultTTLUnit = time.Second

// TTLUnit reads the duration of one TTL step from a Thing Description.
func TTLUnit(td *webthing.Description) time.Duration {
	if td == nil {
		return DefaultTTLUnit
	}
	p, ok := td.Properties[properties.LayerTTLProperty(compositor.RankUpper)]
	if !ok || p.Unit == "" {
		return DefaultTTLUnit
	}
	unit, err := time.ParseDuration(p.Unit)
	if err != nil || unit <= 0 {
		return DefaultTTLUnit
	}
	return unit
}

// FormatTTL renders a remaining TTL for people, e.g. "5 seconds left".
func FormatTTL(ttl int, unit time.Duration) string {
	switch {
	case ttl < 0:
		return "no expiry"
	case ttl == 0:
		return "expiring"
	}
	now := time.Now()
	left := humanize.RelTime(now, now.Add(time.Duration(ttl)*unit), "left", "")
	if left == "now" {
		return "under a second left"
	}
	return left
}

// LayerView is the state of one layer as reported by the daemon.
type LayerView struct {
	Name string
	Text string
	TTL  int
}

// Layers extracts the per-layer state from property values, in priority
// order.
func Layers(values map[string]any) []LayerView {
	out := make([]LayerView, 0, compositor.LayerCount)
	for _, r := range compositor.Ranks() {
		text, _ := values[properties.LayerTextProperty(r)].(string)
		out = append(out, LayerView{
			Name: r.String(),
			Text: text,
			TTL:  intValue(values[properties.LayerTTLProperty(r)]),
		})
	}
	return out
}

// Text returns the rendered text from property values.
func Text(values map[string]any) string {
	text, _ := values[properties.TextProperty].(string)
	return text
}

// FirstLine shortens multi-line text for one-line summaries.
func FirstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i] + " …"
	}
	return text
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return compositor.NoTTL
}
