// Package device provides the hardware the controller drives: an edge input,
// a PWM output and an indicator LED.
package device

import (
	"context"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
)

// EdgeSource delivers rising edges of the pulse input. onEdge is called from
// the source's goroutine and must not block.
type EdgeSource interface {
	Run(ctx context.Context, onEdge func()) error
}

// PWM is a fixed-period pulse-width output.
type PWM interface {
	Period() uint32
	SetPulseWidth(width uint32) error
}

// LED is a single indicator output that can be read back.
type LED interface {
	Set(on bool) error
	IsOn() bool
}

// Device bundles the peripherals of one backend.
type Device interface {
	EdgeSource
	PWM
	LED
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend      string
	PWMPeriod    uint32
	PWMFrequency int64
	EdgePin      string
	PWMPin       string
	LEDPin       string
	SimFrequency float64
}

// Open constructs the configured backend.
func Open(clk clock.Clock, cfg Config, log logger.Logger) (Device, error) {
	errFactory := errors.New()

	if cfg.PWMPeriod < 2 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "pwm period must be at least 2")
	}

	switch cfg.Backend {
	case BackendSim, "":
		return NewSim(clk, cfg.PWMPeriod, cfg.SimFrequency), nil
	case BackendPeriph:
		p, err := OpenPeriph(cfg, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "unknown backend "+cfg.Backend)
	}
}

// WaitReady calls check up to attempts times, waiting delay on clk between
// tries. It returns nil on the first success and a peripheral_not_ready error
// wrapping the last failure otherwise.
func WaitReady(
	ctx context.Context,
	clk clock.Clock,
	attempts int,
	delay time.Duration,
	check func() error,
	log logger.Logger,
) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		return check()
	}
	notify := func(err error, next time.Duration) {
		log.Debug().Int("attempt", attempt).Dur("retry_in", next).Err(err).Msg("Peripheral not ready")
	}

	if err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clk: clk}); err != nil {
		return errors.New().Wrap(errors.ErrPeripheralNotReady, err)
	}

	return nil
}

// clockTimer runs backoff waits on clk.
type clockTimer struct {
	clk clock.Clock
	t   *clock.Timer
}

func (c *clockTimer) Start(d time.Duration) {
	if c.t == nil {
		c.t = c.clk.Timer(d)
		return
	}
	c.t.Reset(d)
}

func (c *clockTimer) Stop() {
	if c.t != nil {
		c.t.Stop()
	}
}

func (c *clockTimer) C() <-chan time.Time {
	return c.t.C
}
