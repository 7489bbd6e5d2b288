// Package measure turns edge timestamps from the pulse input into a period
// sample and invalidates it when the input goes quiet.
//
// The edge handler and the watchdog expiry both run outside the control
// tasks and both rewrite the sample. They share one critical section around
// that read-modify-write. Readers never take it: every mutation publishes an
// immutable copy through an atomic pointer.
package measure

import (
	"sync"
	"time"

	"codeberg.org/mutker/speedctl/internal/timer"
	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// PeriodSample is the latest measured input period.
type PeriodSample struct {
	RawTicks   uint64
	CapturedAt time.Time
	Valid      bool
}

// Frequency returns timerFrequency/RawTicks, or 0 for an invalid sample.
func (s PeriodSample) Frequency(timerFrequency uint64) uint64 {
	if !s.Valid || s.RawTicks == 0 {
		return 0
	}

	return timerFrequency / s.RawTicks
}

// Stats counts edge handler and watchdog activity since start.
type Stats struct {
	Accepted uint64
	Rejected uint64
	Expired  uint64
}

// Counter is the tick source read on every edge.
type Counter interface {
	Ticks() uint64
	Elapsed(from, to uint64) uint64
}

type Config struct {
	// NoiseFloorTicks rejects edges closer than this to the reference edge.
	NoiseFloorTicks uint64
	// Window is the staleness timeout.
	Window time.Duration
}

// Estimator measures the time between consecutive qualifying edges.
type Estimator struct {
	clk     clock.Clock
	counter Counter
	cfg     Config

	watchdog *timer.Watchdog

	cs        sync.Mutex
	haveFirst bool
	reference uint64
	sample    PeriodSample

	published atomic.Pointer[PeriodSample]
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	expired   atomic.Uint64
}

// NewEstimator creates an estimator waiting for its first edge. The
// watchdog is not running until Start.
func NewEstimator(clk clock.Clock, counter Counter, cfg Config) *Estimator {
	e := &Estimator{
		clk:     clk,
		counter: counter,
		cfg:     cfg,
	}
	e.watchdog = timer.NewWatchdog(clk, cfg.Window, func() { e.Expire() })
	e.published.Store(&PeriodSample{})

	return e
}

// Start arms the staleness watchdog.
func (e *Estimator) Start() {
	e.watchdog.Arm()
}

// Stop disarms the staleness watchdog.
func (e *Estimator) Stop() {
	e.watchdog.Stop()
}

// EdgeHandler returns the only capability an edge source needs: a function
// that captures the counter at the time of the edge.
func (e *Estimator) EdgeHandler() func() {
	return func() {
		e.OnEdge(e.counter.Ticks())
	}
}

// OnEdge processes an edge observed at the given register value. It reports
// whether a new sample was published.
func (e *Estimator) OnEdge(now uint64) bool {
	e.cs.Lock()
	defer e.cs.Unlock()

	if !e.haveFirst {
		e.reference = now
		e.haveFirst = true
		return false
	}

	elapsed := e.counter.Elapsed(e.reference, now)
	if elapsed == 0 || elapsed < e.cfg.NoiseFloorTicks {
		e.rejected.Inc()
		return false
	}

	e.reference = now
	e.publish(PeriodSample{
		RawTicks:   elapsed,
		CapturedAt: e.clk.Now(),
		Valid:      true,
	})
	e.accepted.Inc()
	e.watchdog.Kick()

	return true
}

// Expire invalidates the sample and restarts edge capture from scratch. An
// expiry that lost the race against a fresh capture is ignored. It reports
// whether the sample was invalidated.
func (e *Estimator) Expire() bool {
	e.cs.Lock()
	defer e.cs.Unlock()

	now := e.clk.Now()
	if e.sample.Valid && now.Sub(e.sample.CapturedAt) < e.cfg.Window {
		return false
	}

	e.haveFirst = false
	e.publish(PeriodSample{CapturedAt: now})
	e.expired.Inc()

	return true
}

// must hold cs
func (e *Estimator) publish(s PeriodSample) {
	e.sample = s
	e.published.Store(&s)
}

// Snapshot returns the most recently published sample without blocking.
func (e *Estimator) Snapshot() PeriodSample {
	return *e.published.Load()
}

// Stats returns the activity counters.
func (e *Estimator) Stats() Stats {
	return Stats{
		Accepted: e.accepted.Load(),
		Rejected: e.rejected.Load(),
		Expired:  e.expired.Load(),
	}
}
