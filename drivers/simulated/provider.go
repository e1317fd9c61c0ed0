// Package simulated provides an in-memory box used for demos and debug mode.
package simulated

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/timzifer/infodisplay/box"
)

// ErrInjectedFailure is returned by reads selected by the failure rate.
var ErrInjectedFailure = errors.New("simulated box failure")

// Option customises a Provider.
type Option func(*Provider)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithClock replaces the time source used for delayed mode application.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func withSource(src randomSource) Option {
	return func(p *Provider) {
		p.rng = src
	}
}

// Provider implements box.Provider without any I/O. It is safe for concurrent use.
type Provider struct {
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	rng         randomSource
	settings    resolvedSettings
	lights      []string
	doors       []string
	mode        box.HouseMode
	temperature float64
	pending     box.HouseMode
	applyAt     time.Time
}

var _ box.Provider = (*Provider)(nil)

// New validates the settings and builds a simulated box.
func New(settings Settings, opts ...Option) (*Provider, error) {
	resolved, err := settings.resolve()
	if err != nil {
		return nil, err
	}
	p := &Provider{
		logger:      zerolog.Nop(),
		now:         time.Now,
		rng:         newPseudoSource(settings.Seed),
		settings:    resolved,
		lights:      append([]string{}, settings.LightsOn...),
		doors:       append([]string{}, settings.DoorsOpened...),
		mode:        settings.HouseMode,
		temperature: resolved.temperature,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// ReadStatus returns the simulated status and advances the temperature drift.
func (p *Provider) ReadStatus(ctx context.Context) (box.Status, error) {
	if err := ctx.Err(); err != nil {
		return box.Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if roll(p.rng, p.settings.failureRate) {
		p.logger.Debug().Msg("injecting simulated read failure")
		return box.Status{}, ErrInjectedFailure
	}
	now := p.now()
	if p.pending != box.ModeNone && !now.Before(p.applyAt) {
		p.mode = p.pending
		p.pending = box.ModeNone
	}
	p.temperature += step(p.rng, p.settings.drift)
	p.temperature = math.Min(math.Max(p.temperature, p.settings.min), p.settings.max)

	return box.Status{
		Valid:              true,
		LightsOn:           append([]string{}, p.lights...),
		DoorsOpened:        append([]string{}, p.doors...),
		OutsideTemperature: decimal.NewNullDecimal(decimal.NewFromFloat(p.temperature).Round(1)),
		HouseMode:          p.mode,
		ReadAt:             now,
	}, nil
}

// WriteMode records the mode; it becomes visible after the configured apply delay.
func (p *Provider) WriteMode(ctx context.Context, mode box.HouseMode) error {
	if _, err := mode.Wire(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settings.applyDelay <= 0 {
		p.mode = mode
		p.pending = box.ModeNone
		return nil
	}
	p.pending = mode
	p.applyAt = p.now().Add(p.settings.applyDelay)
	p.logger.Debug().Str("house_mode", mode.String()).Time("apply_at", p.applyAt).Msg("simulated mode change scheduled")
	return nil
}

// SetLights replaces the list of lights reported as on.
func (p *Provider) SetLights(ids ...string) {
	p.mu.Lock()
	p.lights = append([]string{}, ids...)
	p.mu.Unlock()
}

// SetDoors replaces the list of doors reported as opened.
func (p *Provider) SetDoors(ids ...string) {
	p.mu.Lock()
	p.doors = append([]string{}, ids...)
	p.mu.Unlock()
}
