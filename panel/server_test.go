package panel

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/infodisplay/box"
)

type fakeAgent struct {
	mu       sync.Mutex
	status   box.Status
	requests []box.HouseMode
}

func (a *fakeAgent) CurrentStatus() box.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status.Clone()
}

func (a *fakeAgent) RequestModeChange(mode box.HouseMode) {
	a.mu.Lock()
	a.requests = append(a.requests, mode)
	a.mu.Unlock()
}

type fakeDisplay struct {
	forced *bool
}

func (d *fakeDisplay) SetForced(on *bool) { d.forced = on }
func (d *fakeDisplay) Forced() *bool      { return d.forced }
func (d *fakeDisplay) IsOn() (bool, bool) {
	if d.forced != nil {
		return *d.forced, true
	}
	return true, true
}

func newTestServer(t *testing.T, agent Agent, opts ...ServerOption) *httptest.Server {
	t.Helper()
	builder, err := NewBuilder(DefaultRules(), WithLocation(time.UTC))
	require.NoError(t, err)
	srv, err := NewServer(agent, builder, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, WithFrameInterval(750*time.Millisecond))
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `data-mode="away"`)
	require.Contains(t, string(body), "750")

	resp, err = http.Get(ts.URL + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFrameEndpoint(t *testing.T) {
	agent := &fakeAgent{status: box.Status{Valid: true, LightsOn: []string{"a", "b"}, DoorsOpened: []string{}, HouseMode: box.ModeAway}}
	now := time.Date(2024, 6, 1, 21, 30, 0, 0, time.UTC)
	ts := newTestServer(t, agent, WithClock(func() time.Time { return now }))

	resp, err := http.Get(ts.URL + "/api/frame")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var frame Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
	require.Equal(t, "21:30", frame.Time)
	require.Equal(t, LevelError, frame.Lights.Level)
	require.Equal(t, 2, frame.Lights.Count)
	require.Equal(t, "Away", frame.ModeLabel)
	require.False(t, frame.Stale)
}

func TestStatusEndpoint(t *testing.T) {
	agent := &fakeAgent{status: box.Status{Valid: true, LightsOn: []string{"hall"}, DoorsOpened: []string{}, HouseMode: box.ModeCleaning}}
	ts := newTestServer(t, agent)
	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status box.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.Valid)
	require.Equal(t, []string{"hall"}, status.LightsOn)
	require.Equal(t, box.ModeCleaning, status.HouseMode)

	resp2, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestModeEndpoint(t *testing.T) {
	agent := &fakeAgent{}
	ts := newTestServer(t, agent)

	post := func(body string) int {
		resp, err := http.Post(ts.URL+"/api/mode", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusAccepted, post(`{"mode":"away"}`))
	require.Equal(t, http.StatusAccepted, post(`{"mode":"Cleaning"}`))
	require.Equal(t, http.StatusBadRequest, post(`{"mode":"holiday"}`))
	require.Equal(t, http.StatusBadRequest, post(`{"mode":""}`))
	require.Equal(t, http.StatusBadRequest, post(`not json`))
	require.Equal(t, []box.HouseMode{box.ModeAway, box.ModeCleaning}, agent.requests)

	resp, err := http.Get(ts.URL + "/api/mode")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDisplayEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{})
	resp, err := http.Post(ts.URL+"/api/display", "application/json", strings.NewReader(`{"on":false}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	display := &fakeDisplay{}
	ts = newTestServer(t, &fakeAgent{}, WithDisplay(display))
	resp, err = http.Post(ts.URL+"/api/display", "application/json", strings.NewReader(`{"on":false}`))
	require.NoError(t, err)
	var body displayResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.NotNil(t, body.Forced)
	require.False(t, *body.Forced)
	require.NotNil(t, body.On)
	require.False(t, *body.On)

	resp, err = http.Post(ts.URL+"/api/display", "application/json", strings.NewReader(`{"on":null}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Nil(t, display.forced)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "infodisplay_status_valid 1\n")
	})
	ts := newTestServer(t, &fakeAgent{status: box.Status{Valid: true}}, WithMetricsHandler(metrics))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "ok", health["status"])
	require.Equal(t, true, health["valid"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "infodisplay_status_valid")
}

func TestServeStopsOnCancel(t *testing.T) {
	builder, err := NewBuilder(DefaultRules())
	require.NoError(t, err)
	srv, err := NewServer(&fakeAgent{}, builder)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(nil, &Builder{})
	require.Error(t, err)
	_, err = NewServer(&fakeAgent{}, nil)
	require.Error(t, err)
}

func TestOversizedBodiesAreRejected(t *testing.T) {
	agent := &fakeAgent{}
	display := &fakeDisplay{}
	ts := newTestServer(t, agent, WithDisplay(display))
	padding := strings.Repeat("x", 2*maxRequestBody)

	resp, err := http.Post(ts.URL+"/api/mode", "application/json", strings.NewReader(`{"pad":"`+padding+`","mode":"away"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, agent.requests)

	resp, err = http.Post(ts.URL+"/api/display", "application/json", strings.NewReader(`{"pad":"`+padding+`","on":false}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Nil(t, display.forced)
}
