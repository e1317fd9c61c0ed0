// Package panel renders the house status for the kiosk screen and accepts
// the user's mode buttons.
package panel

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
)

// IndicatorState is one counter widget (lights, doors).
type IndicatorState struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
	Level Level    `json:"level"`
}

// Frame is everything the screen shows at one instant.
type Frame struct {
	Time        string         `json:"time"`
	Day         string         `json:"day"`
	Month       string         `json:"month"`
	Year        string         `json:"year"`
	Temperature string         `json:"temperature"`
	Lights      IndicatorState `json:"lights"`
	Doors       IndicatorState `json:"doors"`
	Mode        string         `json:"mode"`
	ModeLabel   string         `json:"mode_label"`
	Valid       bool           `json:"valid"`
	Stale       bool           `json:"stale"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
}

var modeLabels = map[box.HouseMode]string{
	box.ModePresent:  "Present",
	box.ModeAway:     "Away",
	box.ModeCleaning: "Cleaning",
}

// ModeLabel is the button/label caption of a mode.
func ModeLabel(mode box.HouseMode) string {
	if label, ok := modeLabels[mode]; ok {
		return label
	}
	return "--"
}

// Rules bundles the indicator rules.
type Rules struct {
	Lights Rule
	Doors  Rule
}

// DefaultRules reproduces the classic screen colours.
func DefaultRules() Rules {
	return Rules{Lights: DefaultLightsRule, Doors: DefaultDoorsRule}
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithLocation renders clock labels in loc.
func WithLocation(loc *time.Location) BuilderOption {
	return func(b *Builder) {
		if loc != nil {
			b.location = loc
		}
	}
}

// WithStaleAfter marks valid snapshots older than d as stale. Zero disables the age check.
func WithStaleAfter(d time.Duration) BuilderOption {
	return func(b *Builder) { b.staleAfter = d }
}

// WithBuilderLogger attaches a logger for rule evaluation failures.
func WithBuilderLogger(logger zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// Builder turns status snapshots into frames.
type Builder struct {
	lights     *Indicator
	doors      *Indicator
	location   *time.Location
	staleAfter time.Duration
	logger     zerolog.Logger
}

// NewBuilder compiles the indicator rules.
func NewBuilder(rules Rules, opts ...BuilderOption) (*Builder, error) {
	lights, err := CompileIndicator(rules.Lights)
	if err != nil {
		return nil, err
	}
	doors, err := CompileIndicator(rules.Doors)
	if err != nil {
		return nil, err
	}
	b := &Builder{lights: lights, doors: doors, location: time.Local, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Build renders status at now. It never fails: an invalid snapshot yields
// placeholder values and Stale set.
func (b *Builder) Build(status box.Status, now time.Time) Frame {
	local := now.In(b.location)
	frame := Frame{
		Time:        local.Format("15:04"),
		Day:         local.Format("02"),
		Month:       local.Format("Jan"),
		Year:        local.Format("2006"),
		Temperature: "--°C",
		Lights:      IndicatorState{Items: []string{}, Level: LevelOK},
		Doors:       IndicatorState{Items: []string{}, Level: LevelOK},
		ModeLabel:   ModeLabel(box.ModeNone),
		Valid:       status.Valid,
		Stale:       !status.Valid,
	}
	if !status.ReadAt.IsZero() {
		ts := status.ReadAt
		frame.ReadAt = &ts
	}
	if !status.Valid {
		return frame
	}
	if b.staleAfter > 0 && !status.ReadAt.IsZero() && now.Sub(status.ReadAt) > b.staleAfter {
		frame.Stale = true
	}
	if status.OutsideTemperature.Valid {
		frame.Temperature = status.OutsideTemperature.Decimal.String() + "°C"
	}
	frame.Lights = b.indicator("lights", b.lights, status.LightsOn, status.HouseMode)
	frame.Doors = b.indicator("doors", b.doors, status.DoorsOpened, status.HouseMode)
	if wire, err := status.HouseMode.Wire(); err == nil {
		frame.Mode = wire
	}
	frame.ModeLabel = ModeLabel(status.HouseMode)
	return frame
}

func (b *Builder) indicator(name string, ind *Indicator, items []string, mode box.HouseMode) IndicatorState {
	state := IndicatorState{Count: len(items), Items: append([]string{}, items...), Level: LevelOK}
	level, err := ind.Evaluate(items, mode)
	if err != nil {
		b.logger.Warn().Err(err).Str("indicator", name).Msg("indicator rule failed")
		return state
	}
	state.Level = level
	return state
}
