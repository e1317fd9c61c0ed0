package simulated

import (
	"fmt"
	"math"
	"time"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/config"
)

const (
	defaultTemperature    = 12.0
	defaultDrift          = 0.2
	defaultMinTemperature = -10.0
	defaultMaxTemperature = 35.0
)

// Settings seeds the simulated box.
type Settings struct {
	LightsOn           []string
	DoorsOpened        []string
	HouseMode          box.HouseMode
	OutsideTemperature *float64
	TemperatureDrift   float64
	MinTemperature     *float64
	MaxTemperature     *float64
	FailureRate        float64
	ApplyDelay         time.Duration
	Seed               *int64
}

type resolvedSettings struct {
	temperature float64
	drift       float64
	min         float64
	max         float64
	failureRate float64
	applyDelay  time.Duration
}

// SettingsFromConfig converts the configuration block into driver settings.
func SettingsFromConfig(cfg config.SimulatedConfig) Settings {
	s := Settings{
		LightsOn:           cfg.LightsOn,
		DoorsOpened:        cfg.DoorsOpened,
		HouseMode:          cfg.HouseMode,
		OutsideTemperature: cfg.OutsideTemperature,
		TemperatureDrift:   cfg.TemperatureDrift,
		MinTemperature:     cfg.MinTemperature,
		MaxTemperature:     cfg.MaxTemperature,
		FailureRate:        cfg.FailureRate,
		ApplyDelay:         cfg.ApplyDelay.Duration,
	}
	if cfg.Seed != 0 {
		seed := cfg.Seed
		s.Seed = &seed
	}
	return s
}

func (s Settings) resolve() (resolvedSettings, error) {
	r := resolvedSettings{
		temperature: defaultTemperature,
		drift:       defaultDrift,
		min:         defaultMinTemperature,
		max:         defaultMaxTemperature,
		failureRate: s.FailureRate,
		applyDelay:  s.ApplyDelay,
	}
	if s.OutsideTemperature != nil {
		r.temperature = *s.OutsideTemperature
	}
	if s.TemperatureDrift != 0 {
		r.drift = s.TemperatureDrift
	}
	if s.MinTemperature != nil {
		r.min = *s.MinTemperature
	}
	if s.MaxTemperature != nil {
		r.max = *s.MaxTemperature
	}
	if math.IsNaN(r.temperature) || math.IsNaN(r.min) || math.IsNaN(r.max) {
		return resolvedSettings{}, fmt.Errorf("temperatures must not be NaN")
	}
	if r.max < r.min {
		return resolvedSettings{}, fmt.Errorf("max_temperature must be >= min_temperature")
	}
	if r.drift < 0 {
		return resolvedSettings{}, fmt.Errorf("temperature_drift must not be negative")
	}
	if r.failureRate < 0 || r.failureRate > 1 {
		return resolvedSettings{}, fmt.Errorf("failure_rate must be between 0 and 1")
	}
	if s.HouseMode != box.ModeNone && !s.HouseMode.Valid() {
		return resolvedSettings{}, fmt.Errorf("%w: %q", box.ErrInvalidMode, string(s.HouseMode))
	}
	r.temperature = math.Min(math.Max(r.temperature, r.min), r.max)
	return r, nil
}
