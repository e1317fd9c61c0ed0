// Package eedomus reads the house status from an eedomus box script and
// pushes house mode changes back to it.
package eedomus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
)

const maxBodySize = 1 << 20

// Option customises a Provider.
type Option func(*Provider)

// WithHTTPClient uses a copy of client whose timeout is taken from Settings.Timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider implements box.Provider on top of plain HTTP GET requests.
type Provider struct {
	settings Settings
	endpoint *url.URL
	client   *http.Client
	logger   zerolog.Logger
	now      func() time.Time
}

var _ box.Provider = (*Provider)(nil)

// New validates the settings and builds a provider.
func New(settings Settings, opts ...Option) (*Provider, error) {
	resolved, endpoint, err := settings.resolve()
	if err != nil {
		return nil, err
	}
	p := &Provider{
		settings: resolved,
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	client := *p.client
	client.Timeout = resolved.Timeout
	p.client = &client
	return p, nil
}

// ReadStatus fetches and decodes the current status document.
func (p *Provider) ReadStatus(ctx context.Context) (box.Status, error) {
	body, err := p.get(ctx, p.endpoint.String())
	if err != nil {
		return box.Status{}, fmt.Errorf("read status: %w", err)
	}
	status, err := decodeStatus(body)
	if err != nil {
		return box.Status{}, err
	}
	status.ReadAt = p.now()
	p.logger.Debug().
		Int("lights_on", len(status.LightsOn)).
		Int("doors_opened", len(status.DoorsOpened)).
		Str("house_mode", status.HouseMode.String()).
		Msg("box status read")
	return status, nil
}

// WriteMode asks the box to switch to the given house mode.
func (p *Provider) WriteMode(ctx context.Context, mode box.HouseMode) error {
	wire, err := mode.Wire()
	if err != nil {
		return err
	}
	target := p.modeURL(wire)
	if _, err := p.get(ctx, target); err != nil {
		return fmt.Errorf("write mode %s: %w", wire, err)
	}
	p.logger.Debug().Str("house_mode", wire).Msg("box mode written")
	return nil
}

func (p *Provider) modeURL(wire string) string {
	u := *p.endpoint
	query := u.Query()
	query.Set(p.settings.ModeParameter, wire)
	u.RawQuery = query.Encode()
	return u.String()
}

func (p *Provider) get(ctx context.Context, target string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return body, nil
}
