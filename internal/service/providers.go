package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/drivers/eedomus"
	"github.com/timzifer/infodisplay/drivers/simulated"
)

// ProviderFactory builds a box provider from configuration. Factories must
// not perform I/O so they can be used for dry-run validation.
type ProviderFactory func(cfg *config.Config, logger zerolog.Logger) (box.Provider, error)

var factories = map[string]ProviderFactory{
	config.DriverEedomus:   newEedomusProvider,
	config.DriverSimulated: newSimulatedProvider,
}

// Drivers lists the supported driver names.
func Drivers() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the provider selected by box.driver.
func NewProvider(cfg *config.Config, logger zerolog.Logger) (box.Provider, error) {
	driver := cfg.ProviderDriver()
	factory, ok := factories[driver]
	if !ok {
		return nil, fmt.Errorf("unknown box driver %q (known: %s)", driver, strings.Join(Drivers(), ", "))
	}
	provider, err := factory(cfg, logger.With().Str("driver", driver).Logger())
	if err != nil {
		return nil, fmt.Errorf("box driver %s: %w", driver, err)
	}
	return provider, nil
}

func newEedomusProvider(cfg *config.Config, logger zerolog.Logger) (box.Provider, error) {
	return eedomus.New(eedomus.SettingsFromConfig(cfg), eedomus.WithLogger(logger))
}

func newSimulatedProvider(cfg *config.Config, logger zerolog.Logger) (box.Provider, error) {
	return simulated.New(simulated.SettingsFromConfig(cfg.Box.Simulated), simulated.WithLogger(logger))
}
