package telemetry_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/logger"
	"codeberg.org/mutker/speedctl/internal/measure"
	"codeberg.org/mutker/speedctl/internal/metrics"
	"codeberg.org/mutker/speedctl/internal/telemetry"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sysClock = 120000000

type estimator struct {
	sample measure.PeriodSample
}

func (e *estimator) Snapshot() measure.PeriodSample { return e.sample }
func (e *estimator) Stats() measure.Stats           { return measure.Stats{Accepted: 3} }

type actuator struct{ duty uint32 }

func (a *actuator) Last() uint32     { return a.duty }
func (a *actuator) Failures() uint64 { return 0 }

type collector struct {
	mu   sync.Mutex
	got  []metrics.ControlSnapshot
	fail bool
}

func (c *collector) Record(_ context.Context, s *metrics.ControlSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return stderrors.New("disk full")
	}
	c.got = append(c.got, *s)
	return nil
}

func (c *collector) Close() error { return nil }

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func newReporter(clk clock.Clock, est *estimator, act *actuator, col *collector) (*telemetry.Reporter, *control.State) {
	st := control.NewState(est, sysClock)
	opts := telemetry.Options{Interval: 100 * time.Millisecond, TimerFrequency: sysClock, PWMPeriod: 400}
	return telemetry.NewReporter(clk, opts, est, st, act, col, logger.Default()), st
}

func TestFormatSnippet(t *testing.T) {
	assert.Equal(t, "freq=20Hz period=6000000 ticks duty=266/400", telemetry.FormatSnippet(20, 6000000, 266, 400))
}

func TestInitialSnippet(t *testing.T) {
	r, _ := newReporter(clock.NewMock(), &estimator{}, &actuator{}, &collector{})
	assert.Equal(t, "freq=0Hz period=0 ticks duty=0/400", r.Snippet())
}

func TestStep(t *testing.T) {
	clk := clock.NewMock()
	est := &estimator{sample: measure.PeriodSample{RawTicks: 6000000, Valid: true}}
	col := &collector{}
	r, st := newReporter(clk, est, &actuator{duty: 266}, col)
	st.MarkOnline()

	snap := r.Step(context.Background())

	assert.Equal(t, metrics.ControlSnapshot{
		Timestamp:   clk.Now(),
		PeriodTicks: 6000000,
		Valid:       true,
		Mode:        "automatic",
		ActiveSpeed: 20,
		DutyCycle:   266,
		Online:      true,
	}, snap)
	assert.Equal(t, "freq=20Hz period=6000000 ticks duty=266/400", r.Snippet())
	require.Len(t, col.got, 1)
	assert.Equal(t, snap, col.got[0])
}

func TestStepIgnoresCollectorErrors(t *testing.T) {
	est := &estimator{sample: measure.PeriodSample{RawTicks: 6000000, Valid: true}}
	r, _ := newReporter(clock.NewMock(), est, &actuator{duty: 1}, &collector{fail: true})

	r.Step(context.Background())
	assert.Equal(t, "freq=20Hz period=6000000 ticks duty=1/400", r.Snippet())
}

func TestRun(t *testing.T) {
	clk := clock.NewMock()
	col := &collector{}
	r, _ := newReporter(clk, &estimator{}, &actuator{}, col)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Add(100 * time.Millisecond)
		return col.count() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
