package eedomus

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/timzifer/infodisplay/config"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultModeParameter = "set_mode"
)

// Settings describes how to reach the box script.
type Settings struct {
	// URL points at the status script, e.g.
	// http://10.10.10.29/script/?exec=info_display.php
	URL           string
	Timeout       time.Duration
	ModeParameter string
}

// SettingsFromConfig extracts the driver settings from the service configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		URL:           cfg.Box.URL,
		Timeout:       cfg.BoxTimeout(),
		ModeParameter: cfg.ModeParameter(),
	}
}

func (s Settings) resolve() (Settings, *url.URL, error) {
	if strings.TrimSpace(s.URL) == "" {
		return Settings{}, nil, errors.New("eedomus url is required")
	}
	endpoint, err := url.Parse(s.URL)
	if err != nil {
		return Settings{}, nil, fmt.Errorf("parse eedomus url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return Settings{}, nil, fmt.Errorf("eedomus url %q: unsupported scheme", s.URL)
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.ModeParameter == "" {
		s.ModeParameter = defaultModeParameter
	}
	return s, endpoint, nil
}
