// Package service assembles the box provider, the communicator and the
// optional display, panel and MQTT components from configuration and runs
// them under one supervisor.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/communicator"
	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/display"
	"github.com/timzifer/infodisplay/drivers/mqtt"
	"github.com/timzifer/infodisplay/panel"
	"github.com/timzifer/infodisplay/telemetry"
)

// staleFactor is the number of normal intervals after which the panel greys
// out a snapshot that has not been refreshed.
const staleFactor = 4

// Option customises a Service.
type Option func(*options)

type options struct {
	provider  box.Provider
	telemetry telemetry.Collector
	metrics   http.Handler
	motion    display.MotionSensor
	backlight display.Backlight
	screen    display.Screen
}

// WithProvider bypasses the driver registry.
func WithProvider(provider box.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// WithTelemetry installs the collector and the handler exposed on /metrics.
func WithTelemetry(collector telemetry.Collector, metrics http.Handler) Option {
	return func(o *options) {
		o.telemetry = collector
		o.metrics = metrics
	}
}

// WithDisplayHardware replaces the configured pins and screen switch.
func WithDisplayHardware(motion display.MotionSensor, backlight display.Backlight, screen display.Screen) Option {
	return func(o *options) {
		o.motion = motion
		o.backlight = backlight
		o.screen = screen
	}
}

// Service owns every long-running component of the panel.
type Service struct {
	cfg       *config.Config
	logger    zerolog.Logger
	telemetry telemetry.Collector

	provider box.Provider
	agent    *communicator.Communicator
	display  *display.Controller
	panel    *panel.Server
	bridge   *mqtt.Bridge
}

// New builds a service from configuration and dependencies. No goroutine is
// started before Run.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.telemetry == nil {
		o.telemetry = telemetry.Noop()
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	s := &Service{cfg: cfg, logger: logger, telemetry: o.telemetry, provider: provider}
	s.agent = communicator.New(provider,
		communicator.WithLogger(component(logger, "communicator")),
		communicator.WithTelemetry(o.telemetry),
		communicator.WithNormalInterval(cfg.NormalInterval()),
		communicator.WithFastInterval(cfg.FastInterval()),
		communicator.WithFastRefreshCycles(cfg.FastRefreshCycles()),
		communicator.WithStatusListener(s.publish),
	)

	if cfg.MQTT.Enabled {
		bridge, err := mqtt.New(mqtt.SettingsFromConfig(cfg), s.agent, mqtt.WithLogger(component(logger, "mqtt")))
		if err != nil {
			return nil, err
		}
		s.bridge = bridge
	}

	if cfg.Display.Enabled {
		ctrl, err := newDisplay(cfg, logger, o)
		if err != nil {
			return nil, err
		}
		ctrl.OnChange(s.onDisplayChange)
		s.display = ctrl
	}

	if cfg.Panel.Enabled {
		srv, err := newPanel(cfg, logger, s.agent, s.display, o.metrics)
		if err != nil {
			return nil, err
		}
		s.panel = srv
	}
	return s, nil
}

// Validate performs a dry-run validation of the configuration without
// opening hardware or network connections.
func Validate(cfg *config.Config, logger zerolog.Logger) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := NewProvider(cfg, logger); err != nil {
		return err
	}
	if _, err := newBuilder(cfg, logger); err != nil {
		return err
	}
	if cfg.MQTT.Enabled {
		if _, err := mqtt.New(mqtt.SettingsFromConfig(cfg), ignoreModes{}); err != nil {
			return err
		}
	}
	return nil
}

type ignoreModes struct{}

func (ignoreModes) RequestModeChange(box.HouseMode) {}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func newDisplay(cfg *config.Config, logger zerolog.Logger, o options) (*display.Controller, error) {
	motion, backlight, screen := o.motion, o.backlight, o.screen
	if motion == nil || backlight == nil {
		if cfg.Display.MockPins {
			pins := display.NewMockPins()
			motion, backlight = pins, pins
		} else {
			pins, err := display.OpenGPIO(cfg.PIRPin(), cfg.BacklightPin())
			if err != nil {
				return nil, err
			}
			motion, backlight = pins, pins
		}
	}
	if screen == nil && !cfg.Display.MockPins {
		screen = display.NewXScreen(cfg.XDisplay())
	}
	return display.New(motion, backlight, screen,
		display.WithLogger(component(logger, "display")),
		display.WithTelemetry(o.telemetry),
		display.WithTimeout(cfg.ScreenTimeout()),
		display.WithPollInterval(cfg.DisplayPollInterval()),
	)
}

func newBuilder(cfg *config.Config, logger zerolog.Logger) (*panel.Builder, error) {
	rules := panel.Rules{
		Lights: panel.RuleFromConfig(cfg.Panel.Indicators.Lights, panel.DefaultLightsRule),
		Doors:  panel.RuleFromConfig(cfg.Panel.Indicators.Doors, panel.DefaultDoorsRule),
	}
	builder, err := panel.NewBuilder(rules,
		panel.WithStaleAfter(staleFactor*cfg.NormalInterval()),
		panel.WithBuilderLogger(component(logger, "panel")),
	)
	if err != nil {
		return nil, fmt.Errorf("panel indicators: %w", err)
	}
	return builder, nil
}

func newPanel(cfg *config.Config, logger zerolog.Logger, agent panel.Agent, ctrl *display.Controller, metrics http.Handler) (*panel.Server, error) {
	builder, err := newBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []panel.ServerOption{
		panel.WithLogger(component(logger, "panel")),
		panel.WithFrameInterval(cfg.FrameInterval()),
		panel.WithMetricsHandler(metrics),
	}
	if ctrl != nil {
		opts = append(opts, panel.WithDisplay(ctrl))
	}
	return panel.NewServer(agent, builder, opts...)
}

func (s *Service) publish(status box.Status) {
	if s.bridge != nil {
		s.bridge.Publish(status)
	}
}

// onDisplayChange polls the box only while somebody can see the panel.
func (s *Service) onDisplayChange(on bool) {
	if !on {
		s.agent.Stop()
		return
	}
	if err := s.agent.Start(); err != nil && !errors.Is(err, communicator.ErrAlreadyRunning) {
		s.logger.Error().Err(err).Msg("failed to start communicator")
	}
}

// Run executes all components until the context is cancelled or one of them
// fails. The communicator is stopped before Run returns.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.display != nil {
		g.Go(func() error { return s.display.Run(gctx) })
	} else if err := s.agent.Start(); err != nil && !errors.Is(err, communicator.ErrAlreadyRunning) {
		return err
	}
	if s.panel != nil {
		listen := s.cfg.PanelListen()
		g.Go(func() error {
			if err := s.panel.Run(gctx, listen); err != nil {
				return fmt.Errorf("panel: %w", err)
			}
			return nil
		})
	}
	if s.bridge != nil {
		g.Go(func() error {
			if err := s.bridge.Run(gctx); err != nil {
				return fmt.Errorf("mqtt: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.agent.Stop()
		select {
		case <-s.agent.Done():
		case <-time.After(s.cfg.BoxTimeout() + time.Second):
			s.logger.Warn().Msg("communicator still busy with the box at shutdown")
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close releases resources held outside of Run.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.agent.Stop()
	return nil
}

// Agent exposes the communicator.
func (s *Service) Agent() *communicator.Communicator { return s.agent }

// Display returns the display controller, nil when disabled.
func (s *Service) Display() *display.Controller { return s.display }

// Panel returns the web frontend, nil when disabled.
func (s *Service) Panel() *panel.Server { return s.panel }

// Provider returns the box provider in use.
func (s *Service) Provider() box.Provider { return s.provider }
