package communicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCadenceStartsNormal(t *testing.T) {
	pace := newCadence(time.Minute, time.Second, 5)
	require.Equal(t, cadenceNormal, pace.mode())
	require.Equal(t, time.Minute, pace.next())
	pace.woke()
	require.Equal(t, time.Minute, pace.next())
}

func TestCadenceAcceleratedWindow(t *testing.T) {
	pace := newCadence(time.Minute, time.Second, 3)
	pace.accelerate()

	var waits []time.Duration
	for i := 0; i < 5; i++ {
		waits = append(waits, pace.next())
		pace.woke()
	}
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Minute, time.Minute}, waits)
}

func TestCadenceWriteResetsWindow(t *testing.T) {
	pace := newCadence(time.Minute, time.Second, 4)
	pace.accelerate()
	pace.woke()
	pace.woke()
	require.Equal(t, 2, pace.remaining)

	pace.accelerate()
	require.Equal(t, 4, pace.remaining, "a new write restarts the window instead of extending it")
}

func TestCadenceDefaults(t *testing.T) {
	pace := newCadence(0, 0, -1)
	require.Equal(t, DefaultNormalInterval, pace.normal)
	require.Equal(t, DefaultFastInterval, pace.fast)
	pace.accelerate()
	require.Equal(t, cadenceNormal, pace.mode())
}
