package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/config"
)

// Notifier shows short messages about daemon events on one display layer.
// A notice borrows the layer: whatever the layer held before comes back when
// the notice expires, unless a client replaced the notice in the meantime.
// The same kind of notice is not repeated within minInterval.
type Notifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	display *compositor.Display
	clock   compositor.Clock

	rank        compositor.Rank
	ttl         int
	minInterval time.Duration
	enabled     bool

	// Rate limiting
	lastNotifyTime map[string]time.Time

	// The notice currently on display, if it will expire.
	pending *notice
	gen     uint64

	now func() time.Time
}

// notice remembers what a notice covered up.
type notice struct {
	layer    *compositor.Layer
	text     string
	prevText string
	prevTTL  int
	timer    compositor.Timer
}

// showing reports whether the layer still holds the notice text.
func (p *notice) showing() bool {
	return p.layer.Text() == p.text
}

// NewNotifier creates a Notifier configured from cfg.
func NewNotifier(display *compositor.Display, cfg config.NoticeConfig, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		logger:         logger,
		display:        display,
		clock:          compositor.SystemClock(),
		lastNotifyTime: make(map[string]time.Time),
		now:            time.Now,
	}
	if err := n.Configure(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// Configure applies new notice settings. Rate limiting history is kept.
func (n *Notifier) Configure(cfg config.NoticeConfig) error {
	rank, err := compositor.ParseRank(cfg.Layer)
	if err != nil {
		return fmt.Errorf("invalid notice layer: %w", err)
	}
	if cfg.TTL < 0 {
		return fmt.Errorf("notice ttl must be 0 or greater, got %d", cfg.TTL)
	}
	if max := n.display.MaxTTL(); int64(cfg.TTL) > max {
		return fmt.Errorf("notice ttl must be at most %d, got %d", max, cfg.TTL)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = cfg.Enabled
	n.rank = rank
	n.ttl = cfg.TTL
	n.minInterval = cfg.MinInterval.Duration()
	return nil
}

// Notify shows message unless notices are disabled or a notice with the same
// key was shown less than minInterval ago. It reports whether the layer was
// updated.
func (n *Notifier) Notify(key, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.enabled {
		return false
	}

	now := n.now()
	if last, ok := n.lastNotifyTime[key]; ok && now.Sub(last) < n.minInterval {
		n.logger.Debug("notice rate-limited", "key", key)
		return false
	}
	n.lastNotifyTime[key] = now

	layer, err := n.display.Panel(n.rank)
	if err != nil {
		n.logger.Warn("notice layer unavailable", "layer", n.rank, "error", err)
		return false
	}

	next := &notice{layer: layer, text: message, prevText: layer.Text(), prevTTL: layer.TTL()}
	if p := n.pending; p != nil {
		n.cancelLocked()
		switch {
		case p.layer == layer && p.showing():
			// Still covering the same content.
			next.prevText, next.prevTTL = p.prevText, p.prevTTL
		case p.layer != layer:
			n.restoreLocked(p)
		}
	}

	if err := layer.UpdateText(message); err != nil {
		if !isWriteError(err) {
			n.logger.Debug("notice not shown", "key", key, "error", err)
			return false
		}
		n.logger.Warn("notice set but display write failed", "key", key, "error", err)
	}
	// The covered content's countdown is paused until the notice ends.
	if err := layer.UpdateTTL(compositor.NoTTL); err != nil {
		n.logger.Debug("failed to pause layer ttl", "error", err)
	}

	// A TTL of 0 keeps the notice until something replaces it.
	if n.ttl > 0 {
		n.gen++
		gen := n.gen
		delay := time.Duration(n.ttl) * n.display.TTLUnit()
		next.timer = n.clock.AfterFunc(delay, func() { n.expire(gen) })
		n.pending = next
	}

	n.logger.Debug("notice shown", "key", key, "layer", n.rank, "ttl", n.ttl)
	return true
}

// Dismiss ends the current notice early and puts back what it covered.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p := n.pending; p != nil {
		n.cancelLocked()
		n.restoreLocked(p)
	}
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.pending
	if p == nil || gen != n.gen {
		return
	}
	n.pending = nil
	n.restoreLocked(p)
}

func (n *Notifier) cancelLocked() {
	if n.pending.timer != nil {
		n.pending.timer.Stop()
	}
	n.pending = nil
	n.gen++
}

// restoreLocked puts back the covered content if the notice is still shown.
func (n *Notifier) restoreLocked(p *notice) {
	if !p.showing() {
		n.logger.Debug("notice replaced before expiry", "layer", p.layer.Name())
		return
	}

	var err error
	if p.prevText == "" {
		err = p.layer.Clear()
	} else if err = p.layer.UpdateText(p.prevText); err == nil || isWriteError(err) {
		if ttlErr := p.layer.UpdateTTL(p.prevTTL); ttlErr != nil {
			err = ttlErr
		}
	}
	if err != nil {
		n.logger.Warn("failed to restore layer after notice", "layer", p.layer.Name(), "error", err)
		return
	}
	n.logger.Debug("notice expired", "layer", p.layer.Name())
}

func isWriteError(err error) bool {
	var writeErr *compositor.DisplayWriteError
	return errors.As(err, &writeErr)
}

// NotifyConfigReloaded announces a successful reload. Settings that only
// apply after a restart are listed.
func (n *Notifier) NotifyConfigReloaded(restartRequired []string) {
	message := "Config reloaded"
	if len(restartRequired) > 0 {
		message += "\nRestart needed for " + strings.Join(restartRequired, ", ")
	}
	n.Notify("config-reload", message)
}

// NotifyConfigError announces a rejected config file.
func (n *Notifier) NotifyConfigError(err error) {
	n.Notify("config-error", "Config error\n"+err.Error())
}
