// Package timer provides the free-running tick counter used for edge capture
// and the single-shot watchdog used for staleness detection.
package timer

import (
	"math"
	"math/bits"
	"time"

	"github.com/benbjohnson/clock"
)

const nanosPerSecond = uint64(time.Second)

// Timer is a free-running up-counter of a fixed frequency whose register is
// Width bits wide. Reads wrap to zero after 2^Width ticks.
type Timer struct {
	clk    clock.Clock
	freq   uint64
	width  uint
	mask   uint64
	start  time.Time
	offset uint64
}

// Option configures a Timer.
type Option func(*Timer)

// WithStartTicks preloads the counter register. Mostly useful to exercise
// wraparound close to the top of the register.
func WithStartTicks(ticks uint64) Option {
	return func(t *Timer) {
		t.offset = ticks
	}
}

// New creates a Timer counting at frequency Hz with a register of width bits.
// A width of 0 or above 64 is treated as 64.
func New(clk clock.Clock, frequency uint64, width uint, opts ...Option) *Timer {
	if width == 0 || width > 64 {
		width = 64
	}

	t := &Timer{
		clk:   clk,
		freq:  frequency,
		width: width,
		mask:  Mask(width),
		start: clk.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.offset &= t.mask

	return t
}

// Mask returns the register mask for a counter of the given width.
func Mask(width uint) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}

	return (uint64(1) << width) - 1
}

// Ticks returns the current register value.
func (t *Timer) Ticks() uint64 {
	return (t.offset + DurationToTicks(t.clk.Since(t.start), t.freq)) & t.mask
}

// Elapsed returns the number of ticks from one register read to a later one,
// accounting for at most one wrap of the register in between.
func (t *Timer) Elapsed(from, to uint64) uint64 {
	return Elapsed(from, to, t.width)
}

// Frequency returns the tick rate in Hz.
func (t *Timer) Frequency() uint64 {
	return t.freq
}

// Width returns the register width in bits.
func (t *Timer) Width() uint {
	return t.width
}

// Elapsed is the unsigned, wrap-safe difference to-from for a register of the
// given width.
func Elapsed(from, to uint64, width uint) uint64 {
	return (to - from) & Mask(width)
}

// DurationToTicks converts d to ticks at frequency Hz, saturating on overflow.
func DurationToTicks(d time.Duration, frequency uint64) uint64 {
	if d <= 0 {
		return 0
	}

	hi, lo := bits.Mul64(uint64(d), frequency)
	if hi >= nanosPerSecond {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, nanosPerSecond)

	return q
}

// TicksToDuration converts ticks at frequency Hz to a duration, saturating on
// overflow.
func TicksToDuration(ticks, frequency uint64) time.Duration {
	if frequency == 0 {
		return 0
	}

	hi, lo := bits.Mul64(ticks, nanosPerSecond)
	if hi >= frequency {
		return time.Duration(math.MaxInt64)
	}
	q, _ := bits.Div64(hi, lo, frequency)
	if q > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(q)
}
