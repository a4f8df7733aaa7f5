package compositor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Driver is the physical character display.
type Driver interface {
	// Clear blanks the whole visible buffer.
	Clear() error
	// Write shows text starting at the home position.
	Write(text string) error
}

// Observer is notified after every recomposition, once per layer mutation,
// whether or not the rendered text changed. It is called with the Display's
// mutation lock held, so it must not mutate layers synchronously.
type Observer interface {
	DisplayChanged(s Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s Snapshot)

// DisplayChanged calls f(s).
func (f ObserverFunc) DisplayChanged(s Snapshot) { f(s) }

// LayerState is a point-in-time copy of one layer.
type LayerState struct {
	Rank Rank   `json:"rank"`
	Name string `json:"name"`
	Text string `json:"text"`
	TTL  int    `json:"ttl"`
}

// Snapshot is a consistent view of the rendered text and all layers.
type Snapshot struct {
	Text   string                 `json:"text"`
	Layers [LayerCount]LayerState `json:"layers"`
	// Changed is set on notifications when the rendered text differs from
	// the previous recomposition.
	Changed bool `json:"changed"`
}

// Layer returns the state of the layer with the given rank.
func (s Snapshot) Layer(r Rank) LayerState {
	return s.Layers[r]
}

// Options configures a Display.
type Options struct {
	// TTLUnit is the duration of one TTL step. Defaults to one second.
	TTLUnit  time.Duration
	Observer Observer
	Logger   *slog.Logger
	Clock    Clock
}

// Display owns the layers of one physical display and keeps the driver in
// sync with the highest priority non-empty layer.
type Display struct {
	// mu serializes layer mutations, recomposition, driver I/O and
	// notification.
	mu sync.Mutex
	// state guards layer contents and the rendered text so readers never
	// wait on driver I/O.
	state sync.RWMutex

	driver   Driver
	observer Observer
	logger   *slog.Logger
	clock    Clock
	unit     time.Duration

	layers [LayerCount]*Layer
	text   string
	closed bool
}

// New creates a Display with three empty layers. The driver is not touched
// until the first mutation or Refresh.
func New(driver Driver, opts Options) *Display {
	if opts.TTLUnit <= 0 {
		opts.TTLUnit = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	d := &Display{
		driver:   driver,
		observer: opts.Observer,
		logger:   opts.Logger,
		clock:    opts.Clock,
		unit:     opts.TTLUnit,
	}
	for _, r := range Ranks() {
		d.layers[r] = &Layer{display: d, rank: r, ttl: NoTTL}
	}
	return d
}

// Panel returns the layer at the given rank.
func (d *Display) Panel(r Rank) (*Layer, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, int(r))
	}
	return d.layers[r], nil
}

// PanelByName returns the layer with the given name or numeric rank.
func (d *Display) PanelByName(name string) (*Layer, error) {
	r, err := ParseRank(name)
	if err != nil {
		return nil, err
	}
	return d.layers[r], nil
}

// TTLUnit returns the duration of one TTL step.
func (d *Display) TTLUnit() time.Duration {
	return d.unit
}

// MaxTTL is the largest ttl whose delay fits in a time.Duration.
func (d *Display) MaxTTL() int64 {
	return math.MaxInt64 / int64(d.unit)
}

// Text returns the currently rendered text.
func (d *Display) Text() string {
	d.state.RLock()
	defer d.state.RUnlock()
	return d.text
}

// Snapshot returns the rendered text and all layers read under one lock.
func (d *Display) Snapshot() Snapshot {
	d.state.RLock()
	defer d.state.RUnlock()
	return d.snapshotLocked()
}

func (d *Display) snapshotLocked() Snapshot {
	s := Snapshot{Text: d.text}
	for i, l := range d.layers {
		s.Layers[i] = LayerState{
			Rank: l.rank,
			Name: l.Name(),
			Text: l.text,
			TTL:  l.remainingLocked(),
		}
	}
	return s
}

// Refresh shows the current rendered text again without changing any
// layer. It is the retry path after a DisplayWriteError.
func (d *Display) Refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return d.show(d.Text())
}

// Close cancels every pending expiry. Layers of a closed Display reject
// mutations with ErrClosed.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for _, l := range d.layers {
		l.disarmLocked()
	}
}

// recomposeLocked is the single recomposition pass run after every layer
// mutation. The rendered text is committed before the driver is touched, so
// a driver failure never breaks the priority invariant.
func (d *Display) recomposeLocked() error {
	d.state.Lock()
	text := ""
	for _, l := range d.layers {
		if l.text != "" {
			text = l.text
			break
		}
	}
	changed := text != d.text
	d.text = text
	snap := d.snapshotLocked()
	d.state.Unlock()

	snap.Changed = changed
	err := d.show(text)

	if d.observer != nil {
		d.observer.DisplayChanged(snap)
	}
	return err
}

// show clears the driver and writes text. Caller holds d.mu.
func (d *Display) show(text string) error {
	if err := d.driver.Clear(); err != nil {
		d.logger.Warn("failed to clear display", "error", err)
		return &DisplayWriteError{Op: "clear", Text: text, Cause: err}
	}
	if err := d.driver.Write(text); err != nil {
		d.logger.Warn("failed to write display", "error", err)
		return &DisplayWriteError{Op: "write", Text: text, Cause: err}
	}
	return nil
}
