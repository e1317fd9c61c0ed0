package display

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/infodisplay/telemetry"
)

type fakeScreen struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (s *fakeScreen) SetScreen(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, on)
	return s.err
}

func (s *fakeScreen) log() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.calls...)
}

type failingSensor struct{}

func (failingSensor) Motion() (bool, error) { return false, errors.New("bus error") }

func newTestController(t *testing.T, opts ...Option) (*Controller, *MockPins, *fakeScreen) {
	t.Helper()
	pins := NewMockPins()
	screen := &fakeScreen{}
	c, err := New(pins, pins, screen, append([]Option{WithTimeout(30 * time.Second)}, opts...)...)
	require.NoError(t, err)
	return c, pins, screen
}

func boolPtr(v bool) *bool { return &v }

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			require.NotEmpty(t, family.GetMetric())
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestInactivityTurnsScreenOff(t *testing.T) {
	c, pins, screen := newTestController(t)
	var transitions []bool
	c.OnChange(func(on bool) { transitions = append(transitions, on) })

	start := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	_, known := c.IsOn()
	require.False(t, known)

	require.True(t, c.Update(start))
	on, known := c.IsOn()
	require.True(t, known)
	require.True(t, on)

	pins.SetMotion(false)
	require.False(t, c.Update(start.Add(29*time.Second)))
	require.True(t, c.Update(start.Add(30*time.Second)))
	on, _ = c.IsOn()
	require.False(t, on)
	require.False(t, pins.BacklightOn())

	pins.SetMotion(true)
	require.True(t, c.Update(start.Add(45*time.Second)))
	require.True(t, pins.BacklightOn())

	require.Equal(t, []bool{true, false, true}, transitions)
	require.Equal(t, []bool{true, false, true}, screen.log())
}

func TestStartupWithoutMotionStartsTimeout(t *testing.T) {
	c, pins, _ := newTestController(t)
	pins.SetMotion(false)
	start := time.Now()
	require.True(t, c.Update(start))
	on, _ := c.IsOn()
	require.True(t, on)
	require.True(t, c.Update(start.Add(31*time.Second)))
	on, _ = c.IsOn()
	require.False(t, on)
}

func TestForcedModeOverridesMotion(t *testing.T) {
	c, pins, _ := newTestController(t)
	now := time.Now()
	require.True(t, c.Update(now))

	c.SetForced(boolPtr(false))
	require.False(t, *c.Forced())
	require.True(t, c.Update(now.Add(time.Second)))
	on, _ := c.IsOn()
	require.False(t, on)

	pins.SetMotion(false)
	c.SetForced(boolPtr(true))
	require.True(t, c.Update(now.Add(time.Hour)))
	on, _ = c.IsOn()
	require.True(t, on)

	c.SetForced(nil)
	require.Nil(t, c.Forced())
	require.True(t, c.Update(now.Add(2*time.Hour)))
	on, _ = c.IsOn()
	require.False(t, on)
}

func TestSensorErrorKeepsState(t *testing.T) {
	pins := NewMockPins()
	c, err := New(failingSensor{}, pins, nil)
	require.NoError(t, err)
	require.False(t, c.Update(time.Now()))
	_, known := c.IsOn()
	require.False(t, known)
}

func TestScreenErrorIsNotFatal(t *testing.T) {
	c, pins, screen := newTestController(t)
	screen.err = errors.New("xset missing")
	require.True(t, c.Update(time.Now()))
	require.True(t, pins.BacklightOn())
}

func TestRunRestoresScreenOnExit(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := telemetry.NewPrometheusCollector(reg)
	require.NoError(t, err)

	c, pins, screen := newTestController(t, WithPollInterval(5*time.Millisecond), WithTelemetry(collector))
	c.SetForced(boolPtr(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		on, known := c.IsOn()
		return known && !on
	}, time.Second, 5*time.Millisecond)
	require.False(t, pins.BacklightOn())
	require.Equal(t, 0.0, gaugeValue(t, reg, "infodisplay_display_on"))

	cancel()
	require.NoError(t, <-done)
	on, _ := c.IsOn()
	require.True(t, on)
	require.True(t, pins.BacklightOn())
	log := screen.log()
	require.True(t, log[len(log)-1])
	require.Equal(t, 1.0, gaugeValue(t, reg, "infodisplay_display_on"))
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := New(nil, NewMockPins(), nil)
	require.Error(t, err)
	_, err = New(NewMockPins(), nil, nil)
	require.Error(t, err)
}

func TestXScreenCommands(t *testing.T) {
	var got [][]string
	s := NewXScreen(":1")
	s.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append(got, append([]string{name}, args...))
		return nil, nil
	}
	require.NoError(t, s.SetScreen(context.Background(), true))
	require.NoError(t, s.SetScreen(context.Background(), false))
	require.Equal(t, [][]string{
		{"xset", "-display", ":1", "-dpms"},
		{"xset", "-display", ":1", "dpms", "force", "off"},
	}, got)

	s.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("unable to open display"), errors.New("exit status 1")
	}
	require.ErrorContains(t, s.SetScreen(context.Background(), true), "unable to open display")
}
