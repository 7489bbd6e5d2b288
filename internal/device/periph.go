package device

import (
	"context"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// edgePoll bounds each WaitForEdge call so Run notices cancellation.
const edgePoll = 100 * time.Millisecond

// Periph drives real GPIO lines through periph.io.
type Periph struct {
	edge gpio.PinIO
	pwm  gpio.PinIO
	led  gpio.PinIO

	period    uint32
	frequency physic.Frequency
	logger    logger.Logger
}

// OpenPeriph initializes the host drivers and claims the configured pins.
func OpenPeriph(cfg Config, log logger.Logger) (*Periph, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(errors.ErrPeripheralNotReady, err)
	}

	p := &Periph{
		period:    cfg.PWMPeriod,
		frequency: physic.Frequency(cfg.PWMFrequency) * physic.Hertz,
		logger:    log,
	}

	var err error
	if p.edge, err = lookupPin(cfg.EdgePin); err != nil {
		return nil, err
	}
	if p.pwm, err = lookupPin(cfg.PWMPin); err != nil {
		return nil, err
	}
	if p.led, err = lookupPin(cfg.LEDPin); err != nil {
		return nil, err
	}

	if err := p.edge.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, errFactory.Wrap(errors.ErrPeripheralNotReady, err)
	}
	if err := p.led.Out(gpio.Low); err != nil {
		return nil, errFactory.Wrap(errors.ErrPeripheralNotReady, err)
	}

	log.Info().
		Str("edge", p.edge.Name()).
		Str("pwm", p.pwm.Name()).
		Str("led", p.led.Name()).
		Msg("GPIO backend ready")

	return p, nil
}

func lookupPin(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.New().WithData(errors.ErrPeripheralNotReady, "no such pin "+name)
	}

	return pin, nil
}

func (p *Periph) Run(ctx context.Context, onEdge func()) error {
	for ctx.Err() == nil {
		if p.edge.WaitForEdge(edgePoll) {
			onEdge()
		}
	}

	return nil
}

func (p *Periph) Period() uint32 {
	return p.period
}

// pinDuty converts a pulse width in period units into a periph duty value.
func pinDuty(width, period uint32) gpio.Duty {
	if period == 0 {
		return 0
	}

	return gpio.Duty(uint64(gpio.DutyMax) * uint64(width) / uint64(period))
}

func (p *Periph) SetPulseWidth(w uint32) error {
	return p.pwm.PWM(pinDuty(w, p.period), p.frequency)
}

func (p *Periph) Set(on bool) error {
	return p.led.Out(gpio.Level(on))
}

func (p *Periph) IsOn() bool {
	return p.led.Read() == gpio.High
}

// Close halts every claimed pin and leaves the LED off.
func (p *Periph) Close() error {
	return multierr.Combine(
		p.edge.Halt(),
		p.pwm.Halt(),
		p.led.Out(gpio.Low),
	)
}
