package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/infodisplay/box"
)

const (
	// DriverEedomus talks to an eedomus box over HTTP.
	DriverEedomus = "eedomus"
	// DriverSimulated keeps the box state in memory.
	DriverSimulated = "simulated"
)

var (
	// ErrNoProviderURL is returned when the eedomus driver is selected without an endpoint.
	ErrNoProviderURL = errors.New("box url is required for the eedomus driver")
	// ErrNoBroker is returned when the MQTT bridge is enabled without a broker address.
	ErrNoBroker = errors.New("mqtt broker is required when the bridge is enabled")
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// SimulatedConfig seeds the in-memory box used for demos and debug mode.
type SimulatedConfig struct {
	LightsOn           []string      `yaml:"lights_on,omitempty"`
	DoorsOpened        []string      `yaml:"doors_opened,omitempty"`
	HouseMode          box.HouseMode `yaml:"house_mode,omitempty"`
	OutsideTemperature *float64      `yaml:"outside_temperature,omitempty"`
	TemperatureDrift   float64       `yaml:"temperature_drift,omitempty"`
	MinTemperature     *float64      `yaml:"min_temperature,omitempty"`
	MaxTemperature     *float64      `yaml:"max_temperature,omitempty"`
	FailureRate        float64       `yaml:"failure_rate,omitempty"`
	ApplyDelay         Duration      `yaml:"apply_delay,omitempty"`
	Seed               int64         `yaml:"seed,omitempty"`
}

// BoxConfig selects and configures the status provider.
type BoxConfig struct {
	Driver        string          `yaml:"driver,omitempty"`
	URL           string          `yaml:"url,omitempty"`
	Timeout       Duration        `yaml:"timeout,omitempty"`
	ModeParameter string          `yaml:"mode_parameter,omitempty"`
	Simulated     SimulatedConfig `yaml:"simulated,omitempty"`
}

// RefreshConfig tunes the polling cadence of the communicator.
type RefreshConfig struct {
	NormalInterval    Duration `yaml:"normal_interval,omitempty"`
	FastInterval      Duration `yaml:"fast_interval,omitempty"`
	AfterActionCycles *int     `yaml:"after_action_cycles,omitempty"`
}

// DisplayConfig describes the motion sensor and backlight wiring.
type DisplayConfig struct {
	Enabled       bool     `yaml:"enabled"`
	MockPins      bool     `yaml:"mock_pins,omitempty"`
	PIRPin        string   `yaml:"pir_pin,omitempty"`
	BacklightPin  string   `yaml:"backlight_pin,omitempty"`
	ScreenTimeout Duration `yaml:"screen_timeout,omitempty"`
	XDisplay      string   `yaml:"x_display,omitempty"`
	PollInterval  Duration `yaml:"poll_interval,omitempty"`
}

// IndicatorConfig holds the expressions that escalate an indicator.
type IndicatorConfig struct {
	Warning string `yaml:"warning,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// IndicatorsConfig groups the per-widget rules.
type IndicatorsConfig struct {
	Lights *IndicatorConfig `yaml:"lights,omitempty"`
	Doors  *IndicatorConfig `yaml:"doors,omitempty"`
}

// PanelConfig configures the kiosk web server.
type PanelConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Listen        string           `yaml:"listen,omitempty"`
	FrameInterval Duration         `yaml:"frame_interval,omitempty"`
	Indicators    IndicatorsConfig `yaml:"indicators,omitempty"`
}

// MQTTConfig configures the optional Home Assistant bridge.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker,omitempty"`
	ClientID        string `yaml:"client_id,omitempty"`
	TopicPrefix     string `yaml:"topic_prefix,omitempty"`
	DiscoveryPrefix string `yaml:"discovery_prefix,omitempty"`
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// Config is the root configuration structure for the service.
type Config struct {
	Box       BoxConfig       `yaml:"box"`
	Refresh   RefreshConfig   `yaml:"refresh,omitempty"`
	Display   DisplayConfig   `yaml:"display,omitempty"`
	Panel     PanelConfig     `yaml:"panel,omitempty"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HotReload bool            `yaml:"hot_reload,omitempty"`
	Source    string          `yaml:"-"`
}

// Load reads, schema-checks and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(abs, data)
	if err != nil {
		return nil, err
	}
	cfg.Source = abs
	return cfg, nil
}

// Parse decodes configuration bytes. The name is only used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	if err := validateSchema(name, data); err != nil {
		return nil, err
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs the checks the schema cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.ProviderDriver() {
	case DriverEedomus:
		if strings.TrimSpace(c.Box.URL) == "" {
			return ErrNoProviderURL
		}
		u, err := url.Parse(c.Box.URL)
		if err != nil {
			return fmt.Errorf("parse box url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("box url %q: unsupported scheme %q", c.Box.URL, u.Scheme)
		}
	case DriverSimulated:
		sim := c.Box.Simulated
		if sim.MinTemperature != nil && sim.MaxTemperature != nil && *sim.MinTemperature > *sim.MaxTemperature {
			return fmt.Errorf("simulated min_temperature %.1f exceeds max_temperature %.1f", *sim.MinTemperature, *sim.MaxTemperature)
		}
	default:
		return fmt.Errorf("unknown box driver %q", c.Box.Driver)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return ErrNoBroker
	}
	if c.Telemetry.Enabled {
		if p := strings.ToLower(c.Telemetry.Provider); p != "" && p != "prometheus" {
			return fmt.Errorf("unsupported telemetry provider %q", c.Telemetry.Provider)
		}
	}
	return nil
}

// ProviderDriver returns the configured box driver name.
func (c *Config) ProviderDriver() string {
	if c == nil || c.Box.Driver == "" {
		return DriverEedomus
	}
	return strings.ToLower(c.Box.Driver)
}

// BoxTimeout bounds every request to the box.
func (c *Config) BoxTimeout() time.Duration {
	if c == nil || c.Box.Timeout.Duration <= 0 {
		return 5 * time.Second
	}
	return c.Box.Timeout.Duration
}

// ModeParameter is the query parameter used to push a house mode.
func (c *Config) ModeParameter() string {
	if c == nil || c.Box.ModeParameter == "" {
		return "set_mode"
	}
	return c.Box.ModeParameter
}

// NormalInterval returns the idle polling interval.
func (c *Config) NormalInterval() time.Duration {
	if c == nil || c.Refresh.NormalInterval.Duration <= 0 {
		return 30 * time.Second
	}
	return c.Refresh.NormalInterval.Duration
}

// FastInterval returns the polling interval used after a mode change.
func (c *Config) FastInterval() time.Duration {
	if c == nil || c.Refresh.FastInterval.Duration <= 0 {
		return time.Second
	}
	return c.Refresh.FastInterval.Duration
}

// FastRefreshCycles returns how many fast polls follow a mode change.
func (c *Config) FastRefreshCycles() int {
	if c == nil || c.Refresh.AfterActionCycles == nil {
		return 5
	}
	return *c.Refresh.AfterActionCycles
}

// PIRPin names the motion sensor input.
func (c *Config) PIRPin() string {
	if c == nil || c.Display.PIRPin == "" {
		return "GPIO4"
	}
	return c.Display.PIRPin
}

// BacklightPin names the backlight output.
func (c *Config) BacklightPin() string {
	if c == nil || c.Display.BacklightPin == "" {
		return "GPIO18"
	}
	return c.Display.BacklightPin
}

// ScreenTimeout is the inactivity period after which the screen turns off.
func (c *Config) ScreenTimeout() time.Duration {
	if c == nil || c.Display.ScreenTimeout.Duration <= 0 {
		return 30 * time.Second
	}
	return c.Display.ScreenTimeout.Duration
}

// XDisplay names the X server whose DPMS state is toggled.
func (c *Config) XDisplay() string {
	if c == nil || c.Display.XDisplay == "" {
		return ":0"
	}
	return c.Display.XDisplay
}

// DisplayPollInterval is the motion sensor sampling period.
func (c *Config) DisplayPollInterval() time.Duration {
	if c == nil || c.Display.PollInterval.Duration <= 0 {
		return 200 * time.Millisecond
	}
	return c.Display.PollInterval.Duration
}

// PanelListen returns the kiosk server address.
func (c *Config) PanelListen() string {
	if c == nil || c.Panel.Listen == "" {
		return ":8080"
	}
	return c.Panel.Listen
}

// FrameInterval is how often the kiosk page refreshes its frame.
func (c *Config) FrameInterval() time.Duration {
	if c == nil || c.Panel.FrameInterval.Duration <= 0 {
		return time.Second
	}
	return c.Panel.FrameInterval.Duration
}

// TopicPrefix is the root of the bridge's MQTT topics.
func (c *Config) TopicPrefix() string {
	if c == nil || c.MQTT.TopicPrefix == "" {
		return "infodisplay"
	}
	return strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
}

// DiscoveryPrefix is the Home Assistant discovery root.
func (c *Config) DiscoveryPrefix() string {
	if c == nil || c.MQTT.DiscoveryPrefix == "" {
		return "homeassistant"
	}
	return strings.TrimSuffix(c.MQTT.DiscoveryPrefix, "/")
}

// SourceFiles lists the files the configuration was loaded from.
func SourceFiles(cfg *Config) []string {
	if cfg == nil || cfg.Source == "" {
		return nil
	}
	return []string{cfg.Source}
}
