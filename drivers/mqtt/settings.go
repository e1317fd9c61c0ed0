package mqtt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timzifer/infodisplay/config"
)

const (
	defaultTopicPrefix     = "infodisplay"
	defaultDiscoveryPrefix = "homeassistant"
	defaultConnectTimeout  = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
)

var nodeIDPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Settings describe how the bridge reaches the broker and names its topics.
type Settings struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	KeepAlive       time.Duration
	ConnectTimeout  time.Duration
}

// SettingsFromConfig extracts the bridge settings from the service configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Broker:          cfg.MQTT.Broker,
		ClientID:        cfg.MQTT.ClientID,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		TopicPrefix:     cfg.TopicPrefix(),
		DiscoveryPrefix: cfg.DiscoveryPrefix(),
	}
}

func (s Settings) resolve() (Settings, error) {
	if strings.TrimSpace(s.Broker) == "" {
		return Settings{}, fmt.Errorf("mqtt: broker address is required")
	}
	s.TopicPrefix = strings.Trim(s.TopicPrefix, "/")
	if s.TopicPrefix == "" {
		s.TopicPrefix = defaultTopicPrefix
	}
	s.DiscoveryPrefix = strings.Trim(s.DiscoveryPrefix, "/")
	if s.DiscoveryPrefix == "" {
		s.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if s.ClientID == "" {
		s.ClientID = defaultTopicPrefix + "-" + uuid.NewString()[:8]
	}
	if s.KeepAlive <= 0 {
		s.KeepAlive = defaultKeepAlive
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = defaultConnectTimeout
	}
	return s, nil
}

func (s Settings) stateTopic() string        { return s.TopicPrefix + "/state" }
func (s Settings) availabilityTopic() string { return s.TopicPrefix + "/availability" }
func (s Settings) commandTopic() string      { return s.TopicPrefix + "/mode/set" }

// nodeID is the stable identifier used for discovery topics and unique ids.
func (s Settings) nodeID() string {
	id := nodeIDPattern.ReplaceAllString(s.TopicPrefix, "_")
	if id == "" {
		return defaultTopicPrefix
	}
	return id
}
