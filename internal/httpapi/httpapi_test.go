package httpapi_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/httpapi"
	"codeberg.org/mutker/speedctl/internal/logger"
	"codeberg.org/mutker/speedctl/internal/measure"
	"codeberg.org/mutker/speedctl/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampler struct{}

func (sampler) Snapshot() measure.PeriodSample {
	return measure.PeriodSample{RawTicks: 120000000 / 12, Valid: true}
}

type led struct {
	on   bool
	fail bool
}

func (l *led) Set(on bool) error {
	if l.fail {
		return stderrors.New("pin busy")
	}
	l.on = on
	return nil
}

func (l *led) IsOn() bool { return l.on }

type fixture struct {
	srv   *httptest.Server
	state *control.State
	led   *led
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := control.NewState(sampler{}, 120000000)
	l := &led{}
	adapter := surface.New(st, l, nil, logger.Default())
	srv := httptest.NewServer(httpapi.NewRouter(adapter, logger.Default()))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, state: st, led: l}
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestToggleLed(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/cgi-bin/toggle_led")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ON", body)

	_, body = f.get(t, "/ledstate")
	assert.Equal(t, "ON", body)

	_, body = f.get(t, "/cgi-bin/toggle_led")
	assert.Equal(t, "OFF", body)
}

func TestToggleLedFailure(t *testing.T) {
	f := newFixture(t)
	f.led.fail = true

	resp, body := f.get(t, "/cgi-bin/toggle_led")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, `"code":"set_led_failed"`)
}

func TestSetSpeed(t *testing.T) {
	f := newFixture(t)
	f.state.SetManual(0)

	_, body := f.get(t, "/cgi-bin/set_speed?percent=37&id=512")
	assert.Equal(t, "37%", body)
	assert.Equal(t, uint32(37), f.state.ManualValue())

	_, body = f.get(t, "/cgi-bin/set_speed?percent=500")
	assert.Equal(t, "37%", body)
}

func TestIoControl(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/iocontrol.cgi?LEDOn=on&speed_percent=64")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, httpapi.StatusPath, resp.Header.Get("Location"))
	assert.Equal(t, control.Manual, f.state.Mode())
	assert.Equal(t, uint32(64), f.state.ActiveSpeed())

	resp, _ = f.get(t, "/iocontrol.cgi?speed_percent=10")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, control.Automatic, f.state.Mode())
	assert.Equal(t, uint32(12), f.state.ActiveSpeed())
	assert.Equal(t, uint32(64), f.state.ManualValue())
}

func TestIoControlParameterErrors(t *testing.T) {
	for _, q := range []string{
		"LEDOn=on",
		"LEDOn=on&speed_percent=101",
		"LEDOn=on&speed_percent=-4",
		"LEDOn=on&speed_percent=fast",
	} {
		t.Run(q, func(t *testing.T) {
			f := newFixture(t)

			resp, _ := f.get(t, "/iocontrol.cgi?"+q)
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Equal(t, httpapi.ParamErrorPath, resp.Header.Get("Location"))
			assert.Equal(t, control.Automatic, f.state.Mode())
		})
	}
}

func TestParamErrorPage(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, httpapi.ParamErrorPath)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Parameter error", body)
}

func TestGetSpeedAndStatus(t *testing.T) {
	f := newFixture(t)
	f.state.MarkOnline()

	_, body := f.get(t, "/get_speed")
	assert.Equal(t, "12%", body)

	resp, body := f.get(t, httpapi.StatusPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var st surface.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, surface.Status{
		Mode:        "automatic",
		LED:         "OFF",
		ActiveSpeed: 12,
		Online:      true,
	}, st)
}

func TestServerStopsOnCancel(t *testing.T) {
	srv := httpapi.NewServer("127.0.0.1:0", http.NotFoundHandler(), logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
