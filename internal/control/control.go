// Package control owns the operating mode, the manual speed target and the
// online gate, and resolves the speed the actuator should follow.
//
// Access rules: Mode and the manual value are written only by the control
// surface; the online gate is published once after bring-up. All fields are
// atomics, so the actuator and telemetry tasks read them without locking.
package control

import (
	"math"
	"sync"

	"codeberg.org/mutker/speedctl/internal/measure"
	"go.uber.org/atomic"
)

// Mode selects where the active speed comes from.
type Mode uint32

const (
	Automatic Mode = iota
	Manual
)

func (m Mode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// MaxManualPercent is the upper bound of the manual speed target.
const MaxManualPercent = 100

// Sampler provides the latest period sample.
type Sampler interface {
	Snapshot() measure.PeriodSample
}

// State is the shared controller state.
type State struct {
	sampler   Sampler
	timerFreq uint64

	mode   atomic.Uint32
	manual atomic.Uint32

	online    atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewState returns the power-on state: automatic, manual 0, offline.
func NewState(sampler Sampler, timerFrequency uint64) *State {
	return &State{
		sampler:   sampler,
		timerFreq: timerFrequency,
		ready:     make(chan struct{}),
	}
}

// Mode returns the current operating mode.
func (s *State) Mode() Mode {
	return Mode(s.mode.Load())
}

// SetAutomatic switches to the measured speed. The manual value is kept.
func (s *State) SetAutomatic() {
	s.mode.Store(uint32(Automatic))
}

// SetManual stores the manual target and switches to manual mode. The value
// is stored first so a reader that sees Manual also sees the new target.
// Callers validate v against MaxManualPercent.
func (s *State) SetManual(v uint32) {
	s.manual.Store(v)
	s.mode.Store(uint32(Manual))
}

// SetManualValue updates the manual target without touching the mode.
func (s *State) SetManualValue(v uint32) {
	s.manual.Store(v)
}

// ManualValue returns the manual target.
func (s *State) ManualValue() uint32 {
	return s.manual.Load()
}

// AutomaticValue derives the speed from the latest sample; 0 when the input
// is stale.
func (s *State) AutomaticValue() uint32 {
	f := s.sampler.Snapshot().Frequency(s.timerFreq)
	if f > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(f)
}

// ActiveSpeed resolves the speed for the current mode.
func (s *State) ActiveSpeed() uint32 {
	if s.Mode() == Manual {
		return s.ManualValue()
	}

	return s.AutomaticValue()
}

// MarkOnline publishes the one-shot online transition. It reports whether
// this call performed it.
func (s *State) MarkOnline() bool {
	done := false
	s.readyOnce.Do(func() {
		s.online.Store(true)
		close(s.ready)
		done = true
	})

	return done
}

// Online reports whether bring-up has completed.
func (s *State) Online() bool {
	return s.online.Load()
}

// Ready is closed once the controller goes online.
func (s *State) Ready() <-chan struct{} {
	return s.ready
}
