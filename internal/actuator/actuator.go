// Package actuator maps the active speed onto a PWM duty cycle.
package actuator

import (
	"context"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// Floor is the minimum pulse width ever written. A zero duty would leave the
// output permanently low, which some drivers treat as a fault.
const Floor = 1

// Output is the PWM channel being driven.
type Output interface {
	Period() uint32
	SetPulseWidth(width uint32) error
}

// SpeedSource supplies the speed to follow and the online gate.
type SpeedSource interface {
	Online() bool
	ActiveSpeed() uint32
}

// DutyCycle scales speed into [Floor, period-1].
func DutyCycle(speed, period, maxSpeed uint32) uint32 {
	if period <= Floor+1 {
		return Floor
	}

	ceiling := uint64(period - 1)

	if maxSpeed == 0 {
		return uint32(ceiling)
	}

	duty := uint64(speed) * uint64(period) / uint64(maxSpeed)
	switch {
	case duty < Floor:
		return Floor
	case duty > ceiling:
		return uint32(ceiling)
	default:
		return uint32(duty)
	}
}

// Mapper writes the duty cycle to the output on every step.
type Mapper struct {
	clk      clock.Clock
	out      Output
	src      SpeedSource
	maxSpeed uint32
	interval time.Duration
	logger   logger.Logger

	last     atomic.Uint32
	failures atomic.Uint64
	failing  atomic.Bool
}

// NewMapper creates a mapper. Nothing is written until Step or Run.
func NewMapper(clk clock.Clock, out Output, src SpeedSource, maxSpeed uint32, interval time.Duration, log logger.Logger) *Mapper {
	return &Mapper{
		clk:      clk,
		out:      out,
		src:      src,
		maxSpeed: maxSpeed,
		interval: interval,
		logger:   log,
	}
}

// Step performs one mapping cycle and returns the duty it attempted.
func (m *Mapper) Step() uint32 {
	duty := uint32(Floor)
	if m.src.Online() {
		duty = DutyCycle(m.src.ActiveSpeed(), m.out.Period(), m.maxSpeed)
	}

	if err := m.out.SetPulseWidth(duty); err != nil {
		m.failures.Inc()
		// Log on the transition only; the loop keeps running.
		if !m.failing.Swap(true) {
			errFactory := errors.New()
			m.logger.ErrorWithContext(errFactory.Wrap(errors.ErrSetPWM, err), "actuator", "set_pulse_width").
				Uint32("duty", duty).
				Send()
		}

		return duty
	}

	if m.failing.Swap(false) {
		m.logger.Info().Uint32("duty", duty).Msg("PWM output recovered")
	}
	m.last.Store(duty)

	return duty
}

// Run steps the mapper every interval until ctx is done.
func (m *Mapper) Run(ctx context.Context) error {
	ticker := m.clk.Ticker(m.interval)
	defer ticker.Stop()

	m.Step()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Step()
		}
	}
}

// Last returns the last duty successfully written.
func (m *Mapper) Last() uint32 {
	return m.last.Load()
}

// Failures returns the number of failed PWM writes.
func (m *Mapper) Failures() uint64 {
	return m.failures.Load()
}

// Park writes the floor duty regardless of the online gate.
func (m *Mapper) Park() error {
	if err := m.out.SetPulseWidth(Floor); err != nil {
		return errors.New().Wrap(errors.ErrSetPWM, err)
	}
	m.last.Store(Floor)

	return nil
}
