// Package mqtt mirrors the house status to an MQTT broker with Home Assistant
// discovery and relays mode commands received from it.
package mqtt

import (
	"context"
	"errors"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
)

// ModeRequester receives mode changes issued over MQTT.
type ModeRequester interface {
	RequestModeChange(mode box.HouseMode)
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// Bridge publishes status snapshots and accepts mode commands.
type Bridge struct {
	settings  Settings
	requester ModeRequester
	logger    zerolog.Logger
	ha        *homeAssistantPublisher

	wake chan struct{}

	mu        sync.Mutex
	latest    *box.Status
	published []byte
	client    mqtt.Client
}

// New validates the settings. The broker connection is opened by Run.
func New(settings Settings, requester ModeRequester, opts ...Option) (*Bridge, error) {
	if requester == nil {
		return nil, errors.New("mqtt: mode requester is required")
	}
	resolved, err := settings.resolve()
	if err != nil {
		return nil, err
	}
	ha, err := newHomeAssistantPublisher(resolved)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		settings:  resolved,
		requester: requester,
		logger:    zerolog.Nop(),
		ha:        ha,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Publish hands a snapshot to the bridge goroutine. Only the newest snapshot
// is kept, so callers never block on the broker.
func (b *Bridge) Publish(status box.Status) {
	snapshot := status.Clone()
	b.mu.Lock()
	b.latest = &snapshot
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run connects to the broker and publishes snapshots until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	client, err := buildClient(b.settings, b.logger, b.onConnect)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	b.logger.Info().Str("broker", b.settings.Broker).Str("client_id", b.settings.ClientID).Msg("mqtt bridge connected")

	defer func() {
		b.ha.PublishAvailability(client, b.logger, false)
		client.Disconnect(250)
		b.mu.Lock()
		b.client = nil
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
			b.flush(client)
		}
	}
}

func (b *Bridge) flush(client mqtt.Client) {
	b.mu.Lock()
	status := b.latest
	b.latest = nil
	b.mu.Unlock()
	if status == nil {
		return
	}
	body, err := encodeState(*status)
	if err != nil {
		b.logger.Error().Err(err).Msg("mqtt: encode state failed")
		return
	}
	b.ha.PublishState(client, b.logger, body)
	b.mu.Lock()
	b.published = body
	b.mu.Unlock()
}

// onConnect runs on the paho callback goroutine after every (re)connect.
func (b *Bridge) onConnect(client mqtt.Client) {
	b.ha.Announce(client, b.logger)
	b.ha.PublishAvailability(client, b.logger, true)

	topic := b.settings.commandTopic()
	token := client.Subscribe(topic, 1, b.handleCommand)
	if token.Wait() && token.Error() != nil {
		b.logger.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt: subscribe failed")
	}

	b.mu.Lock()
	last := b.published
	b.mu.Unlock()
	if last != nil {
		b.ha.PublishState(client, b.logger, last)
	}
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	mode, err := decodeCommand(msg.Payload())
	if err != nil {
		b.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt: ignoring mode command")
		return
	}
	b.logger.Info().Str("house_mode", mode.String()).Msg("mqtt: mode change requested")
	b.requester.RequestModeChange(mode)
}

// Connected reports whether the broker connection is currently up.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	return client != nil && client.IsConnected()
}
