// Package surface adapts control requests from the outside world onto the
// controller state. Every method is safe to call from any goroutine and none
// of them blocks on the measurement path.
package surface

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
)

const (
	LedOn  = "ON"
	LedOff = "OFF"
)

// LED is the indicator output. IsOn reads the pin back.
type LED interface {
	Set(on bool) error
	IsOn() bool
}

// SnippetSource provides the latest telemetry line.
type SnippetSource interface {
	Snippet() string
}

// Status is a point-in-time view of the controller.
type Status struct {
	Mode          string `json:"mode"`
	LED           string `json:"led"`
	ManualPercent uint32 `json:"manual_percent"`
	ActiveSpeed   uint32 `json:"active_speed"`
	Online        bool   `json:"online"`
	Telemetry     string `json:"telemetry"`
}

// Adapter is the control surface.
type Adapter struct {
	state     *control.State
	led       LED
	telemetry SnippetSource
	logger    logger.Logger

	// serializes read-modify-write of the LED
	ledMu sync.Mutex
}

// New creates an adapter. telemetry may be nil.
func New(state *control.State, led LED, telemetry SnippetSource, log logger.Logger) *Adapter {
	return &Adapter{
		state:     state,
		led:       led,
		telemetry: telemetry,
		logger:    log,
	}
}

// SetLed drives the indicator.
func (a *Adapter) SetLed(on bool) error {
	a.ledMu.Lock()
	defer a.ledMu.Unlock()

	return a.setLed(on)
}

// must hold ledMu
func (a *Adapter) setLed(on bool) error {
	if err := a.led.Set(on); err != nil {
		return errors.New().Wrap(errors.ErrSetLED, err)
	}

	return nil
}

// QueryLedState returns "ON" or "OFF" as read back from the pin.
func (a *Adapter) QueryLedState() string {
	if a.led.IsOn() {
		return LedOn
	}

	return LedOff
}

// ToggleLed inverts the indicator and returns the new state text.
func (a *Adapter) ToggleLed() (string, error) {
	a.ledMu.Lock()
	defer a.ledMu.Unlock()

	if err := a.setLed(!a.led.IsOn()); err != nil {
		return a.QueryLedState(), err
	}

	return a.QueryLedState(), nil
}

// SetMode switches the operating mode. Manual requires a percent in
// [0, MaxManualPercent]; a rejected request leaves the state untouched.
// Automatic ignores the percent.
func (a *Adapter) SetMode(mode control.Mode, manualPercent *int) error {
	errFactory := errors.New()

	switch mode {
	case control.Automatic:
		a.state.SetAutomatic()
	case control.Manual:
		if manualPercent == nil {
			return errFactory.WithData(errors.ErrInvalidParameter, "manual mode requires a speed percent")
		}
		p := *manualPercent
		if p < 0 || p > control.MaxManualPercent {
			return errFactory.WithData(errors.ErrInvalidParameter, fmt.Sprintf("speed percent %d out of range", p))
		}
		a.state.SetManual(uint32(p))
	default:
		return errFactory.WithData(errors.ErrInvalidParameter, fmt.Sprintf("unknown mode %d", mode))
	}

	a.logger.Debug().Str("mode", mode.String()).Uint32("manual", a.state.ManualValue()).Msg("Mode changed")

	return nil
}

// SetManualSpeedString stores the manual target from text. Only leading
// decimal digits are read. Input with no digits or a value above
// MaxManualPercent is dropped. The mode is not changed.
func (a *Adapter) SetManualSpeedString(s string) bool {
	v, ok := parseLeadingDigits(s, control.MaxManualPercent)
	if !ok {
		a.logger.Debug().Str("input", s).Msg("Ignoring manual speed string")
		return false
	}

	a.state.SetManualValue(v)

	return true
}

// parseLeadingDigits returns the value of the leading digit run of s. It
// fails when there are no digits or the value exceeds limit.
func parseLeadingDigits(s string, limit uint32) (uint32, bool) {
	var v uint32
	n := 0
	for ; n < len(s); n++ {
		c := s[n]
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + uint32(c-'0')
		if v > limit {
			return 0, false
		}
	}

	if n == 0 {
		return 0, false
	}

	return v, true
}

// SetOnline publishes the one-shot ready transition.
func (a *Adapter) SetOnline() {
	if a.state.MarkOnline() {
		a.logger.Info().Msg("Controller online")
	}
}

// QueryStatus returns a snapshot of the controller.
func (a *Adapter) QueryStatus() Status {
	st := Status{
		Mode:          a.state.Mode().String(),
		LED:           a.QueryLedState(),
		ManualPercent: a.state.ManualValue(),
		ActiveSpeed:   a.state.ActiveSpeed(),
		Online:        a.state.Online(),
	}
	if a.telemetry != nil {
		st.Telemetry = a.telemetry.Snippet()
	}

	return st
}

// CurrentSpeedText formats the active speed as a percentage.
func (a *Adapter) CurrentSpeedText() string {
	return fmt.Sprintf("%d%%", a.state.ActiveSpeed())
}
