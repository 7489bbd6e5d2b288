package timer_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/speedctl/internal/timer"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

const window = time.Second

func TestWatchdogFiresAfterWindow(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	wd := timer.NewWatchdog(mock, window, func() { fired.Inc() })
	wd.Arm()
	defer wd.Stop()

	mock.Add(window - time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}

func TestWatchdogRearmDelaysExpiry(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	wd := timer.NewWatchdog(mock, window, func() { fired.Inc() })
	wd.Arm()
	defer wd.Stop()

	for i := 0; i < 5; i++ {
		mock.Add(window / 2)
		wd.Kick()
	}
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(window)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}

func TestWatchdogSelfRearms(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	wd := timer.NewWatchdog(mock, window, func() { fired.Inc() })
	wd.Arm()
	defer wd.Stop()

	mock.Add(window)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	// The handler re-arms from its own goroutine; give it a moment.
	time.Sleep(10 * time.Millisecond)
	mock.Add(window)
	assert.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
}

func TestWatchdogStop(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	wd := timer.NewWatchdog(mock, window, func() { fired.Inc() })
	wd.Arm()
	assert.True(t, wd.Running())
	wd.Stop()
	assert.False(t, wd.Running())

	mock.Add(3 * window)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, window, wd.Window())
}

func TestWatchdogKickDoesNotStart(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	wd := timer.NewWatchdog(mock, window, func() { fired.Inc() })

	wd.Kick()
	assert.False(t, wd.Running())

	mock.Add(2 * window)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
