package communicator

import "time"

type cadenceMode string

const (
	cadenceNormal      cadenceMode = "normal"
	cadenceAccelerated cadenceMode = "accelerated"
)

// cadence decides how long the loop sleeps between two polls.
//
// It is either normal, sleeping for the configured poll interval, or
// accelerated with a number of fast polls left. Every completed wait consumes
// one accelerated poll; a mode write resets the budget to the full window.
// The value is owned by the loop goroutine and needs no locking.
type cadence struct {
	normal    time.Duration
	fast      time.Duration
	window    int
	remaining int
}

func newCadence(normal, fast time.Duration, window int) cadence {
	if normal <= 0 {
		normal = DefaultNormalInterval
	}
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if window < 0 {
		window = 0
	}
	return cadence{normal: normal, fast: fast, window: window}
}

func (c *cadence) mode() cadenceMode {
	if c.remaining > 0 {
		return cadenceAccelerated
	}
	return cadenceNormal
}

// next returns the wait before the following poll.
func (c *cadence) next() time.Duration {
	if c.mode() == cadenceAccelerated {
		return c.fast
	}
	return c.normal
}

// woke records that a wait ended, whether by timeout or by signal.
func (c *cadence) woke() {
	if c.remaining > 0 {
		c.remaining--
	}
}

// accelerate restarts the fast window after a mode write.
func (c *cadence) accelerate() {
	c.remaining = c.window
}
