package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"pinctl/pkg/app/config"
	"pinctl/pkg/gpio"
	"pinctl/pkg/gpiotest"
	"pinctl/pkg/port"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

// newTestApp returns an initialized app on top of a fake driver.
func newTestApp(t *testing.T, watch ...config.WatchConfig) (*App, *gpiotest.Driver) {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Interval = time.Millisecond
	cfg.Watch = watch

	a, err := New(cfg)
	require.NoError(t, err)

	drv := gpiotest.New()
	a.driver = drv
	require.NoError(t, a.init())

	t.Cleanup(func() {
		_ = a.Close()
	})
	return a, drv
}

func request(t *testing.T, a *App, method, target, body string) (int, string) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.web.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestPinRoundTrip(t *testing.T) {
	a, drv := newTestApp(t)

	status, body := request(t, a, http.MethodPut, "/pins/17", `{"direction":"out"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"pin":17,"direction":"out","level":"0"}`, body)

	status, body = request(t, a, http.MethodPost, "/pins/17/level", `{"level":"high"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"pin":17,"direction":"out","level":"1"}`, body)

	status, body = request(t, a, http.MethodGet, "/pins/17", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"pin":17,"direction":"out","level":"1"}`, body)

	status, body = request(t, a, http.MethodGet, "/pins", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `[{"pin":17,"direction":"out","level":"1"}]`, body)

	status, _ = request(t, a, http.MethodDelete, "/pins/17", "")
	require.Equal(t, http.StatusNoContent, status)
	assert.False(t, drv.Exported(17))

	status, body = request(t, a, http.MethodGet, "/pins/17", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"pin":17,"direction":"none","level":"unknown"}`, body)
}

func TestPinErrors(t *testing.T) {
	a, drv := newTestApp(t)

	status, _ := request(t, a, http.MethodPut, "/pins/abc", `{"direction":"out"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = request(t, a, http.MethodPut, "/pins/2", `{"direction":"out"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = request(t, a, http.MethodPut, "/pins/17", `{"direction":"up"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = request(t, a, http.MethodPost, "/pins/4/level", `{"level":"1"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = request(t, a, http.MethodPut, "/pins/4", `{"direction":"in"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = request(t, a, http.MethodPost, "/pins/4/level", `{"level":"1"}`)
	assert.Equal(t, http.StatusConflict, status)

	drv.Fail(gpiotest.OpExport, true)
	status, _ = request(t, a, http.MethodPut, "/pins/18", `{"direction":"out"}`)
	assert.Equal(t, http.StatusConflict, status)

	drv.Fail(gpiotest.OpExport, false)
	status, _ = request(t, a, http.MethodPut, "/pins/18", `{"direction":"out"}`)
	require.Equal(t, http.StatusOK, status)
	drv.Fail(gpiotest.OpWrite, true)
	status, _ = request(t, a, http.MethodPost, "/pins/18/level", `{"level":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestPWM(t *testing.T) {
	a, drv := newTestApp(t)

	status, _ := request(t, a, http.MethodPut, "/pins/27", `{"direction":"out"}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = request(t, a, http.MethodPost, "/pins/27/pwm", `{"strength":300,"duration":10}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := request(t, a, http.MethodPost, "/pins/27/pwm", `{"strength":10,"duration":-1}`)
	require.Equal(t, http.StatusAccepted, status, body)

	require.Eventually(t, func() bool { return len(drv.Writes()) >= 2 }, time.Second, time.Millisecond)

	// releasing the pin stops the pattern
	status, _ = request(t, a, http.MethodDelete, "/pins/27", "")
	require.Equal(t, http.StatusNoContent, status)

	done := make(chan struct{})
	go func() {
		a.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pwm still running after release")
	}
}

func TestWatchPublishes(t *testing.T) {
	a, drv := newTestApp(t, config.WatchConfig{Pin: 22}, config.WatchConfig{Pin: 23, Topic: "door"})
	require.Len(t, a.watched, 2)
	assert.True(t, a.registry.EngineRunning())

	drv.Set(23, port.High)

	select {
	case msg := <-a.mqtt.C:
		assert.Equal(t, "door", msg.Topic)

		var m changeMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &m))
		assert.Equal(t, 23, m.Pin)
		assert.Equal(t, "0", m.Old)
		assert.Equal(t, "1", m.New)
		assert.Equal(t, "rising", m.Edge)
	case <-time.After(time.Second):
		t.Fatal("no mqtt message")
	}

	drv.Set(22, port.High)
	select {
	case msg := <-a.mqtt.C:
		assert.Equal(t, "pinctl/22", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("no mqtt message")
	}
}

func TestWatchInvalidPin(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Interval = time.Millisecond
	cfg.Watch = []config.WatchConfig{{Pin: 99}}

	a, err := New(cfg)
	require.NoError(t, err)
	a.driver = gpiotest.New()
	defer func() { _ = a.Close() }()

	assert.ErrorIs(t, a.init(), gpio.ErrInvalidPin)
}

func TestClose(t *testing.T) {
	a, drv := newTestApp(t, config.WatchConfig{Pin: 4})

	status, _ := request(t, a, http.MethodPut, "/pins/17", `{"direction":"out"}`)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, a.Close())
	assert.False(t, a.registry.EngineRunning())
	assert.False(t, drv.Exported(4))
	assert.False(t, drv.Exported(17))
	assert.True(t, drv.Closed())

	require.NoError(t, a.Close())
}

func TestVersionAndHealth(t *testing.T) {
	a, _ := newTestApp(t)

	status, body := request(t, a, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, VERSION)

	status, body = request(t, a, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)

	var h struct {
		Driver  string
		Engine  bool
		Workers int
	}
	require.NoError(t, json.Unmarshal([]byte(body), &h))
	assert.Equal(t, "sysfs", h.Driver)
	assert.False(t, h.Engine)
	assert.Equal(t, 0, h.Workers)
}

func TestOpenDriver(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Driver = "teletype"
	_, err := openDriver(cfg)
	assert.Error(t, err)

	cfg.Driver = "sysfs"
	cfg.SysfsRoot = t.TempDir()
	d, err := openDriver(cfg)
	require.NoError(t, err)
	assert.NoError(t, d.Close())
}
