package eedomus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/infodisplay/box"
)

type fakeBox struct {
	mu      sync.Mutex
	body    string
	status  int
	queries []string
}

func (f *fakeBox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f.body))
}

func (f *fakeBox) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func newProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(Settings{URL: srv.URL + "/script/?exec=info_display.php", Timeout: time.Second})
	require.NoError(t, err)
	return p
}

func TestReadStatus(t *testing.T) {
	fb := &fakeBox{body: `{"lights_on":["kitchen","hall"],"doors_opened":["garage"],"house_mode":"present","outside_temperature":18.5}`}
	p := newProvider(t, fb)

	status, err := p.ReadStatus(context.Background())
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, []string{"kitchen", "hall"}, status.LightsOn)
	require.Equal(t, []string{"garage"}, status.DoorsOpened)
	require.Equal(t, box.ModePresent, status.HouseMode)
	require.True(t, status.OutsideTemperature.Valid)
	require.Equal(t, "18.5", status.OutsideTemperature.Decimal.String())
	require.False(t, status.ReadAt.IsZero())
	require.Equal(t, []string{"exec=info_display.php"}, fb.seen())
}

func TestDecodeStatusLenientFields(t *testing.T) {
	cases := map[string]struct {
		body        string
		temperature string
		mode        box.HouseMode
	}{
		"string temperature": {body: `{"outside_temperature":" -3.25 ","house_mode":"away"}`, temperature: "-3.25", mode: box.ModeAway},
		"null temperature":   {body: `{"outside_temperature":null,"house_mode":null}`},
		"empty temperature":  {body: `{"outside_temperature":"","house_mode":"cleaning"}`, mode: box.ModeCleaning},
		"missing fields":     {body: `{}`},
		"unknown mode":       {body: `{"house_mode":"holiday","outside_temperature":7}`, temperature: "7"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			status, err := decodeStatus([]byte(tc.body))
			require.NoError(t, err)
			require.True(t, status.Valid)
			require.NotNil(t, status.LightsOn)
			require.NotNil(t, status.DoorsOpened)
			require.Empty(t, status.LightsOn)
			require.Equal(t, tc.mode, status.HouseMode)
			if tc.temperature == "" {
				require.False(t, status.OutsideTemperature.Valid)
				return
			}
			require.True(t, status.OutsideTemperature.Valid)
			require.Equal(t, tc.temperature, status.OutsideTemperature.Decimal.String())
		})
	}
}

func TestReadStatusFailures(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		p := newProvider(t, &fakeBox{status: http.StatusInternalServerError})
		_, err := p.ReadStatus(context.Background())
		require.ErrorContains(t, err, "500")
	})
	t.Run("malformed json", func(t *testing.T) {
		p := newProvider(t, &fakeBox{body: `{"lights_on":`})
		_, err := p.ReadStatus(context.Background())
		require.ErrorContains(t, err, "decode status")
	})
	t.Run("bad temperature", func(t *testing.T) {
		p := newProvider(t, &fakeBox{body: `{"outside_temperature":"warm"}`})
		_, err := p.ReadStatus(context.Background())
		require.ErrorContains(t, err, "outside_temperature")
	})
	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		p, err := New(Settings{URL: srv.URL, Timeout: 50 * time.Millisecond})
		require.NoError(t, err)
		start := time.Now()
		_, err = p.ReadStatus(context.Background())
		require.Error(t, err)
		require.Less(t, time.Since(start), 2*time.Second)
	})
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		p, err := New(Settings{URL: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = p.ReadStatus(context.Background())
		require.Error(t, err)
	})
}

func TestWriteMode(t *testing.T) {
	fb := &fakeBox{body: `{}`}
	p := newProvider(t, fb)

	require.NoError(t, p.WriteMode(context.Background(), box.ModeAway))
	require.NoError(t, p.WriteMode(context.Background(), box.ModeCleaning))
	require.Equal(t, []string{
		"exec=info_display.php&set_mode=away",
		"exec=info_display.php&set_mode=cleaning",
	}, fb.seen())
}

func TestWriteModeCustomParameter(t *testing.T) {
	fb := &fakeBox{body: `{}`}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	p, err := New(Settings{URL: srv.URL, ModeParameter: "mode"})
	require.NoError(t, err)
	require.NoError(t, p.WriteMode(context.Background(), box.ModePresent))
	require.Equal(t, []string{"mode=present"}, fb.seen())
}

func TestWriteModeRejectsNone(t *testing.T) {
	fb := &fakeBox{body: `{}`}
	p := newProvider(t, fb)
	err := p.WriteMode(context.Background(), box.ModeNone)
	require.True(t, errors.Is(err, box.ErrInvalidMode))
	require.Empty(t, fb.seen())
}

func TestWriteModeHTTPError(t *testing.T) {
	p := newProvider(t, &fakeBox{status: http.StatusBadGateway})
	require.ErrorContains(t, p.WriteMode(context.Background(), box.ModePresent), "write mode present")
}

func TestNewValidatesSettings(t *testing.T) {
	_, err := New(Settings{})
	require.Error(t, err)
	_, err = New(Settings{URL: "ftp://box"})
	require.Error(t, err)

	p, err := New(Settings{URL: "http://box.local/info"})
	require.NoError(t, err)
	require.Equal(t, defaultTimeout, p.client.Timeout)
	require.Equal(t, defaultModeParameter, p.settings.ModeParameter)
}

func TestWithHTTPClientLeavesCallerClientUntouched(t *testing.T) {
	fb := &fakeBox{body: `{"house_mode":"away"}`}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	shared := &http.Client{Timeout: time.Minute}
	p, err := New(Settings{URL: srv.URL + "/script/?exec=info_display.php", Timeout: 2 * time.Second}, WithHTTPClient(shared))
	require.NoError(t, err)
	require.Equal(t, time.Minute, shared.Timeout)
	require.Equal(t, 2*time.Second, p.client.Timeout)

	status, err := p.ReadStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, box.ModeAway, status.HouseMode)
}
