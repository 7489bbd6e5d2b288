package device

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// Sim is an in-memory backend. Its edge source emits a steady pulse train on
// the supplied clock, standing in for a signal generator on the input pin.
type Sim struct {
	clk    clock.Clock
	period uint32

	frequency atomic.Float64
	width     atomic.Uint32
	led       atomic.Bool
	edges     atomic.Uint64
	closed    atomic.Bool
}

// NewSim creates a simulated device. A frequency <= 0 produces no edges.
func NewSim(clk clock.Clock, period uint32, frequency float64) *Sim {
	s := &Sim{clk: clk, period: period}
	s.frequency.Store(frequency)

	return s
}

// Run emits edges until ctx is done. The frequency is sampled once.
func (s *Sim) Run(ctx context.Context, onEdge func()) error {
	interval := edgeInterval(s.frequency.Load())
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := s.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.edges.Inc()
			onEdge()
		}
	}
}

func edgeInterval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}

	return time.Duration(float64(time.Second) / hz)
}

// Edges returns the number of edges emitted so far.
func (s *Sim) Edges() uint64 {
	return s.edges.Load()
}

func (s *Sim) Period() uint32 {
	return s.period
}

// SetPulseWidth stores w; it must be below the period.
func (s *Sim) SetPulseWidth(w uint32) error {
	if s.closed.Load() {
		return fmt.Errorf("pwm closed")
	}
	if w >= s.period {
		return fmt.Errorf("pulse width %d exceeds period %d", w, s.period)
	}
	s.width.Store(w)

	return nil
}

// PulseWidth returns the last stored pulse width.
func (s *Sim) PulseWidth() uint32 {
	return s.width.Load()
}

func (s *Sim) Set(on bool) error {
	s.led.Store(on)
	return nil
}

func (s *Sim) IsOn() bool {
	return s.led.Load()
}

// Close makes further PWM writes fail.
func (s *Sim) Close() error {
	s.closed.Store(true)
	return nil
}
