package compositor

import (
	"errors"
	"sync"
	"time"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every due timer on the caller's
// goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

// recordingDriver records every driver call and can be made to fail.
type recordingDriver struct {
	mu       sync.Mutex
	ops      []string
	shown    string
	clearErr error
	writeErr error
}

func (r *recordingDriver) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "clear")
	if r.clearErr != nil {
		return r.clearErr
	}
	r.shown = ""
	return nil
}

func (r *recordingDriver) Write(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "write:"+text)
	if r.writeErr != nil {
		return r.writeErr
	}
	r.shown = text
	return nil
}

func (r *recordingDriver) failWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

func (r *recordingDriver) Shown() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

func (r *recordingDriver) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// recordingObserver collects every notification.
type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (o *recordingObserver) DisplayChanged(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.snaps)
}

func (o *recordingObserver) Last() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snaps[len(o.snaps)-1]
}

var errBus = errors.New("i2c: remote I/O error")

type fixture struct {
	display  *Display
	driver   *recordingDriver
	observer *recordingObserver
	clock    *fakeClock
}

func newFixture() *fixture {
	f := &fixture{
		driver:   &recordingDriver{},
		observer: &recordingObserver{},
		clock:    newFakeClock(),
	}
	f.display = New(f.driver, Options{
		TTLUnit:  time.Second,
		Observer: f.observer,
		Clock:    f.clock,
	})
	return f
}

func (f *fixture) layer(r Rank) *Layer {
	l, err := f.display.Panel(r)
	if err != nil {
		panic(err)
	}
	return l
}
