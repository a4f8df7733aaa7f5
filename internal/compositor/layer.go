package compositor

import (
	"fmt"
	"strings"
	"time"
)

// Rank is the fixed priority of a layer. Lower ranks win.
type Rank int

const (
	// RankUpper is the highest priority layer.
	RankUpper Rank = iota
	// RankMiddle sits between upper and lower.
	RankMiddle
	// RankLower is only shown when both other layers are empty.
	RankLower
)

// LayerCount is the number of layers every Display owns.
const LayerCount = 3

// NoTTL disables expiry for a layer.
const NoTTL = -1

var rankNames = [LayerCount]string{"upper", "middle", "lower"}

// String returns the layer name for the rank.
func (r Rank) String() string {
	if r.Valid() {
		return rankNames[r]
	}
	return fmt.Sprintf("rank(%d)", int(r))
}

// Valid reports whether r names one of the fixed layers.
func (r Rank) Valid() bool {
	return r >= 0 && int(r) < LayerCount
}

// Ranks returns all layer ranks in priority order.
func Ranks() []Rank {
	return []Rank{RankUpper, RankMiddle, RankLower}
}

// ParseRank resolves a layer name ("upper", "middle", "lower") or a numeric
// rank ("0".."2").
func ParseRank(s string) (Rank, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range rankNames {
		if s == name || s == fmt.Sprint(i) {
			return Rank(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
}

// Layer is one prioritised text slot of a Display.
//
// text, ttl and deadline are guarded by Display.state; timer and generation
// by Display.mu.
type Layer struct {
	display *Display
	rank    Rank

	text     string
	ttl      int
	deadline time.Time

	timer      Timer
	generation uint64
}

// Rank returns the fixed priority of the layer.
func (l *Layer) Rank() Rank { return l.rank }

// Name returns the layer name ("upper", "middle" or "lower").
func (l *Layer) Name() string { return l.rank.String() }

// Text returns the current content of the layer.
func (l *Layer) Text() string {
	l.display.state.RLock()
	defer l.display.state.RUnlock()
	return l.text
}

// IsEmpty reports whether the layer has no content.
func (l *Layer) IsEmpty() bool {
	return l.Text() == ""
}

// TTL returns the remaining lifetime in TTL units, rounded up, or NoTTL when
// no expiry is armed.
func (l *Layer) TTL() int {
	l.display.state.RLock()
	defer l.display.state.RUnlock()
	return l.remainingLocked()
}

func (l *Layer) remainingLocked() int {
	if l.ttl == NoTTL {
		return NoTTL
	}
	left := l.deadline.Sub(l.display.clock.Now())
	if left <= 0 {
		return 0
	}
	unit := l.display.unit
	n := left / unit
	if left%unit != 0 {
		n++
	}
	return int(n)
}

// UpdateText replaces the layer content and recomposes the display. The
// text is stored as given; an empty string makes the layer inactive but
// keeps any armed expiry.
func (l *Layer) UpdateText(text string) error {
	d := l.display
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	d.state.Lock()
	l.text = text
	d.state.Unlock()

	return d.recomposeLocked()
}

// Clear empties the layer, cancels any pending expiry and recomposes the
// display.
func (l *Layer) Clear() error {
	d := l.display
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return l.clearLocked()
}

func (l *Layer) clearLocked() error {
	l.disarmLocked()

	d := l.display
	d.state.Lock()
	l.text = ""
	l.ttl = NoTTL
	l.deadline = time.Time{}
	d.state.Unlock()

	return d.recomposeLocked()
}

// UpdateTTL arms, re-arms or (with NoTTL) cancels the expiry of the layer.
// A running countdown is always replaced, never stacked. Content is left
// untouched and the display is not recomposed.
func (l *Layer) UpdateTTL(ttl int) error {
	d := l.display
	if ttl < NoTTL {
		return fmt.Errorf("%w: got %d", ErrInvalidTTL, ttl)
	}
	if max := d.MaxTTL(); int64(ttl) > max {
		return fmt.Errorf("%w: got %d, at most %d", ErrInvalidTTL, ttl, max)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	l.disarmLocked()

	if ttl == NoTTL {
		d.state.Lock()
		l.ttl = NoTTL
		l.deadline = time.Time{}
		d.state.Unlock()
		d.logger.Debug("layer ttl disabled", "layer", l.Name())
		return nil
	}

	delay := time.Duration(ttl) * d.unit
	gen := l.generation

	d.state.Lock()
	l.ttl = ttl
	l.deadline = d.clock.Now().Add(delay)
	d.state.Unlock()

	l.timer = d.clock.AfterFunc(delay, func() { l.expire(gen) })
	d.logger.Debug("layer ttl armed", "layer", l.Name(), "ttl", ttl, "delay", delay)
	return nil
}

// disarmLocked cancels the pending countdown. Bumping the generation makes a
// countdown that already started firing a no-op.
func (l *Layer) disarmLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.generation++
}

// expire runs on the timer goroutine.
func (l *Layer) expire(gen uint64) {
	d := l.display
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || gen != l.generation {
		return
	}
	l.timer = nil

	d.logger.Info("layer expired", "layer", l.Name())
	if err := l.clearLocked(); err != nil {
		d.logger.Error("failed to show expired layer", "layer", l.Name(), "error", err)
	}
}
