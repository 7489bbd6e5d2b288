// Package telemetry samples the control loop at a fixed rate, keeps the
// latest human readable line and forwards snapshots to the metrics history.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/logger"
	"codeberg.org/mutker/speedctl/internal/measure"
	"codeberg.org/mutker/speedctl/internal/metrics"
	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// Estimator is the measurement side of the loop.
type Estimator interface {
	Snapshot() measure.PeriodSample
	Stats() measure.Stats
}

// Actuator reports the output side of the loop.
type Actuator interface {
	Last() uint32
	Failures() uint64
}

// Reporter collects one sample per interval.
type Reporter struct {
	clk       clock.Clock
	interval  time.Duration
	timerFreq uint64
	period    uint32

	estimator Estimator
	state     *control.State
	actuator  Actuator
	collector metrics.Collector
	logger    logger.Logger

	snippet atomic.String
}

type Options struct {
	Interval       time.Duration
	TimerFrequency uint64
	PWMPeriod      uint32
}

func NewReporter(
	clk clock.Clock,
	opts Options,
	est Estimator,
	state *control.State,
	act Actuator,
	collector metrics.Collector,
	log logger.Logger,
) *Reporter {
	r := &Reporter{
		clk:       clk,
		interval:  opts.Interval,
		timerFreq: opts.TimerFrequency,
		period:    opts.PWMPeriod,
		estimator: est,
		state:     state,
		actuator:  act,
		collector: collector,
		logger:    log,
	}
	r.snippet.Store(FormatSnippet(0, 0, 0, opts.PWMPeriod))

	return r
}

// FormatSnippet renders the status line shown to clients.
func FormatSnippet(freq, period uint64, duty, pwmPeriod uint32) string {
	return fmt.Sprintf("freq=%dHz period=%d ticks duty=%d/%d", freq, period, duty, pwmPeriod)
}

// Snippet returns the latest status line.
func (r *Reporter) Snippet() string {
	return r.snippet.Load()
}

// Step takes one sample. Metrics errors are logged and otherwise ignored.
func (r *Reporter) Step(ctx context.Context) metrics.ControlSnapshot {
	sample := r.estimator.Snapshot()
	duty := r.actuator.Last()

	snap := metrics.ControlSnapshot{
		Timestamp:   r.clk.Now(),
		PeriodTicks: sample.RawTicks,
		Valid:       sample.Valid,
		Mode:        r.state.Mode().String(),
		ActiveSpeed: r.state.ActiveSpeed(),
		DutyCycle:   duty,
		Online:      r.state.Online(),
	}

	freq := sample.Frequency(r.timerFreq)
	r.snippet.Store(FormatSnippet(freq, sample.RawTicks, duty, r.period))

	stats := r.estimator.Stats()
	r.logger.Debug().
		Uint64("freq_hz", freq).
		Uint64("period_ticks", sample.RawTicks).
		Bool("valid", sample.Valid).
		Str("mode", snap.Mode).
		Uint32("speed", snap.ActiveSpeed).
		Uint32("duty", duty).
		Uint64("accepted", stats.Accepted).
		Uint64("rejected", stats.Rejected).
		Uint64("expired", stats.Expired).
		Uint64("pwm_failures", r.actuator.Failures()).
		Msg("Control sample")

	if err := r.collector.Record(ctx, &snap); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to record control sample")
	}

	return snap
}

// Run samples every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clk.Ticker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}
