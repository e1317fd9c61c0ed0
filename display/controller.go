// Package display switches the panel on while someone is around and off
// after a period without motion.
package display

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/telemetry"
)

const (
	// DefaultTimeout is the inactivity period before the screen turns off.
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval is the motion sensor sampling period.
	DefaultPollInterval = 200 * time.Millisecond
)

// Option customises a Controller.
type Option func(*Controller)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithTelemetry reports the screen state to the collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(c *Controller) {
		if collector != nil {
			c.telemetry = collector
		}
	}
}

// WithTimeout sets the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets how often Run samples the motion sensor.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithClock replaces the time source used by Run.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller decides whether the screen should be on and applies the decision
// to the backlight and the X display.
type Controller struct {
	motion    MotionSensor
	backlight Backlight
	screen    Screen
	logger    zerolog.Logger
	telemetry telemetry.Collector
	timeout   time.Duration
	poll      time.Duration
	now       func() time.Time

	// update serialises Update so listeners observe transitions in order.
	update sync.Mutex

	mu         sync.Mutex
	lastMotion time.Time
	on         *bool
	forced     *bool
	listeners  []func(on bool)
}

// New builds a controller. A nil screen disables X display switching.
func New(motion MotionSensor, backlight Backlight, screen Screen, opts ...Option) (*Controller, error) {
	if motion == nil {
		return nil, errors.New("display: motion sensor is required")
	}
	if backlight == nil {
		return nil, errors.New("display: backlight is required")
	}
	if screen == nil {
		screen = NoopScreen{}
	}
	c := &Controller{
		motion:    motion,
		backlight: backlight,
		screen:    screen,
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
		timeout:   DefaultTimeout,
		poll:      DefaultPollInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// OnChange registers a callback invoked after every on/off transition.
// Callbacks run synchronously and must not call Update.
func (c *Controller) OnChange(fn func(on bool)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// SetForced overrides the motion logic; nil returns to automatic mode.
func (c *Controller) SetForced(on *bool) {
	c.mu.Lock()
	if on == nil {
		c.forced = nil
	} else {
		v := *on
		c.forced = &v
	}
	c.mu.Unlock()
	c.logger.Debug().Interface("forced", on).Msg("forced display mode set")
}

// Forced returns the current override, nil when automatic.
func (c *Controller) Forced() *bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forced == nil {
		return nil
	}
	v := *c.forced
	return &v
}

// IsOn reports the last applied state; known is false before the first Update.
func (c *Controller) IsOn() (on bool, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.on == nil {
		return false, false
	}
	return *c.on, true
}

// Update samples the motion sensor and switches the screen when the desired
// state differs from the applied one. It reports whether the state changed.
func (c *Controller) Update(now time.Time) bool {
	c.update.Lock()
	defer c.update.Unlock()

	motion, err := c.motion.Motion()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to read motion sensor")
		return false
	}

	c.mu.Lock()
	if motion || c.lastMotion.IsZero() {
		c.lastMotion = now
	}
	desired := now.Sub(c.lastMotion) < c.timeout
	if c.forced != nil {
		desired = *c.forced
	}
	changed := c.on == nil || *c.on != desired
	if changed {
		c.on = &desired
	}
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	if !changed {
		return false
	}
	c.logger.Info().Bool("on", desired).Msg("screen state changed")
	c.apply(context.Background(), desired)
	for _, fn := range listeners {
		fn(desired)
	}
	return true
}

func (c *Controller) apply(ctx context.Context, on bool) {
	if err := c.backlight.SetBacklight(on); err != nil {
		c.logger.Error().Err(err).Bool("on", on).Msg("failed to switch backlight")
	}
	if err := c.screen.SetScreen(ctx, on); err != nil {
		c.logger.Error().Err(err).Bool("on", on).Msg("failed to switch screen")
	}
	c.telemetry.SetDisplayOn(on)
}

// Run samples the sensor every poll interval until ctx is done. The screen is
// switched back on when Run returns so the panel is never left dark.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	defer c.restore()

	c.Update(c.now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Update(c.now())
		}
	}
}

func (c *Controller) restore() {
	c.update.Lock()
	defer c.update.Unlock()
	c.mu.Lock()
	on := true
	c.on = &on
	c.mu.Unlock()
	c.apply(context.Background(), true)
	c.logger.Debug().Msg("screen restored on exit")
}
