package timer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Watchdog is a single-shot timer that calls its handler once the window
// elapses without a Kick. After the handler returns the watchdog arms itself
// again, so an idle input keeps producing expiries one window apart.
type Watchdog struct {
	clk    clock.Clock
	window time.Duration
	fire   func()

	mu      sync.Mutex
	t       *clock.Timer
	armedAt time.Time
	running bool
}

// NewWatchdog creates a stopped watchdog. Call Arm to start it.
func NewWatchdog(clk clock.Clock, window time.Duration, fire func()) *Watchdog {
	return &Watchdog{
		clk:    clk,
		window: window,
		fire:   fire,
	}
}

// Window returns the configured timeout.
func (w *Watchdog) Window() time.Duration {
	return w.window
}

// Arm starts the watchdog, or restarts the full window if it is running.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = true
	w.reset()
}

// Kick restarts the full window of a running watchdog. It does nothing on a
// stopped one.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.reset()
	}
}

// Stop disarms the watchdog. A later Arm starts it again.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = false
	if w.t != nil {
		w.t.Stop()
	}
}

// Running reports whether the watchdog is armed.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// must hold mu
func (w *Watchdog) reset() {
	w.armedAt = w.clk.Now()
	if w.t == nil {
		w.t = w.clk.AfterFunc(w.window, w.expire)
		return
	}
	w.t.Reset(w.window)
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	// Kicked after this expiry was scheduled; the timer already runs for
	// the new window.
	if w.clk.Since(w.armedAt) < w.window {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.fire()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.reset()
	}
}
