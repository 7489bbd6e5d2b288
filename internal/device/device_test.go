package device

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"periph.io/x/conn/v3/gpio"
)

func TestOpenSim(t *testing.T) {
	d, err := Open(clock.NewMock(), Config{Backend: BackendSim, PWMPeriod: 400}, logger.Default())
	require.NoError(t, err)
	assert.Equal(t, uint32(400), d.Period())
	require.NoError(t, d.Close())
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(clock.NewMock(), Config{Backend: "fpga", PWMPeriod: 400}, logger.Default())
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))

	_, err = Open(clock.NewMock(), Config{Backend: BackendSim, PWMPeriod: 1}, logger.Default())
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestSimPWM(t *testing.T) {
	s := NewSim(clock.NewMock(), 400, 0)

	require.NoError(t, s.SetPulseWidth(399))
	assert.Equal(t, uint32(399), s.PulseWidth())
	assert.Error(t, s.SetPulseWidth(400))
	assert.Equal(t, uint32(399), s.PulseWidth())

	require.NoError(t, s.Close())
	assert.Error(t, s.SetPulseWidth(1))
}

func TestSimLED(t *testing.T) {
	s := NewSim(clock.NewMock(), 400, 0)

	assert.False(t, s.IsOn())
	require.NoError(t, s.Set(true))
	assert.True(t, s.IsOn())
}

func TestSimEmitsEdges(t *testing.T) {
	clk := clock.NewMock()
	s := NewSim(clk, 400, 20)

	var seen atomic.Uint64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func() { seen.Inc() }) }()

	// Give Run time to register its ticker with the mock.
	time.Sleep(10 * time.Millisecond)
	for i := uint64(1); i <= 3; i++ {
		clk.Add(50 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool { return seen.Load() >= want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, seen.Load(), s.Edges())

	cancel()
	require.NoError(t, <-done)
}

func TestSimWithoutFrequencyIsSilent(t *testing.T) {
	s := NewSim(clock.NewMock(), 400, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx, func() { t.Error("unexpected edge") }))
}

func TestEdgeInterval(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, edgeInterval(20))
	assert.Equal(t, time.Duration(0), edgeInterval(0))
	assert.Equal(t, time.Duration(0), edgeInterval(-3))
}

func TestPinDuty(t *testing.T) {
	assert.Equal(t, gpio.Duty(0), pinDuty(0, 400))
	assert.Equal(t, gpio.DutyHalf, pinDuty(200, 400))
	assert.Equal(t, gpio.DutyMax, pinDuty(400, 400))
	assert.Equal(t, gpio.Duty(0), pinDuty(10, 0))
}

func TestWaitReadySucceeds(t *testing.T) {
	clk := clock.NewMock()
	var calls atomic.Int32
	check := func() error {
		if calls.Inc() < 3 {
			return stderrors.New("not yet")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- WaitReady(context.Background(), clk, 5, 100*time.Millisecond, check, logger.Default()) }()

	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			clk.Add(100 * time.Millisecond)
			return false
		}
	}, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReadyGivesUp(t *testing.T) {
	clk := clock.NewMock()
	var calls atomic.Int32
	check := func() error {
		calls.Inc()
		return stderrors.New("bus down")
	}

	done := make(chan error, 1)
	go func() { done <- WaitReady(context.Background(), clk, 4, 100*time.Millisecond, check, logger.Default()) }()

	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			clk.Add(100 * time.Millisecond)
			return false
		}
	}, time.Second, time.Millisecond)

	assert.Equal(t, int32(4), calls.Load())
	assert.True(t, errors.HasCode(err, errors.ErrPeripheralNotReady))
	assert.Contains(t, err.Error(), "bus down")
}

func TestWaitReadyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitReady(ctx, clock.NewMock(), 3, time.Hour, func() error { return stderrors.New("no") }, logger.Default())
	assert.True(t, errors.HasCode(err, errors.ErrPeripheralNotReady))
}

func TestWaitReadyStopsWaitingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	check := func() error {
		calls.Inc()
		return stderrors.New("no")
	}

	done := make(chan error, 1)
	go func() { done <- WaitReady(ctx, clock.NewMock(), 3, time.Hour, check, logger.Default()) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.HasCode(err, errors.ErrPeripheralNotReady))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not return after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}
