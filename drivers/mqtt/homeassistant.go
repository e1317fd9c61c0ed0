package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// discoveryEntity is one Home Assistant entity derived from the state document.
type discoveryEntity struct {
	component string
	objectID  string
	name      string
	icon      string
	template  string
	unit      string
	class     string
	command   bool
}

var discoveryEntities = []discoveryEntity{
	{component: "select", objectID: "house_mode", name: "House mode", icon: "mdi:home-switch", template: "{{ value_json.house_mode }}", command: true},
	{component: "sensor", objectID: "outside_temperature", name: "Outside temperature", template: "{{ value_json.outside_temperature }}", unit: "°C", class: "temperature"},
	{component: "sensor", objectID: "lights_on", name: "Lights on", icon: "mdi:lightbulb-group", template: "{{ value_json.lights_on | count }}"},
	{component: "sensor", objectID: "doors_opened", name: "Doors opened", icon: "mdi:door-open", template: "{{ value_json.doors_opened | count }}"},
}

type discoveryMessage struct {
	topic   string
	payload []byte
}

type homeAssistantPublisher struct {
	availabilityTopic string
	stateTopic        string
	commandTopic      string
	messages          []discoveryMessage
}

func newHomeAssistantPublisher(settings Settings) (*homeAssistantPublisher, error) {
	node := settings.nodeID()
	options := make([]string, 0, len(box.Modes()))
	for _, mode := range box.Modes() {
		wire, _ := mode.Wire()
		options = append(options, wire)
	}
	device := map[string]any{
		"identifiers":  []string{node},
		"name":         "Info display",
		"manufacturer": "infodisplay",
		"model":        "kiosk panel",
	}

	h := &homeAssistantPublisher{
		availabilityTopic: settings.availabilityTopic(),
		stateTopic:        settings.stateTopic(),
		commandTopic:      settings.commandTopic(),
	}
	for _, entity := range discoveryEntities {
		payload := map[string]any{
			"name":                  entity.name,
			"object_id":             fmt.Sprintf("%s_%s", node, entity.objectID),
			"unique_id":             fmt.Sprintf("%s_%s", node, entity.objectID),
			"state_topic":           h.stateTopic,
			"value_template":        entity.template,
			"availability_topic":    h.availabilityTopic,
			"payload_available":     payloadOnline,
			"payload_not_available": payloadOffline,
			"device":                device,
		}
		if entity.icon != "" {
			payload["icon"] = entity.icon
		}
		if entity.unit != "" {
			payload["unit_of_measurement"] = entity.unit
		}
		if entity.class != "" {
			payload["device_class"] = entity.class
		}
		if entity.command {
			payload["command_topic"] = h.commandTopic
			payload["options"] = options
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("mqtt: encode home assistant discovery: %w", err)
		}
		h.messages = append(h.messages, discoveryMessage{
			topic:   fmt.Sprintf("%s/%s/%s/%s/config", settings.DiscoveryPrefix, entity.component, node, entity.objectID),
			payload: body,
		})
	}
	return h, nil
}

// Announce publishes the discovery documents. It runs on every (re)connect so
// that a restarted Home Assistant picks the entities up again.
func (h *homeAssistantPublisher) Announce(client mqtt.Client, logger zerolog.Logger) {
	for _, msg := range h.messages {
		token := client.Publish(msg.topic, 1, true, msg.payload)
		if token.Wait() && token.Error() != nil {
			logger.Error().Err(token.Error()).Str("topic", msg.topic).Msg("mqtt: home assistant discovery publish failed")
			continue
		}
		logger.Debug().Str("topic", msg.topic).Msg("mqtt: home assistant discovery published")
	}
}

func (h *homeAssistantPublisher) PublishAvailability(client mqtt.Client, logger zerolog.Logger, online bool) {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	token := client.Publish(h.availabilityTopic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		logger.Error().Err(token.Error()).Str("topic", h.availabilityTopic).Msg("mqtt: home assistant availability publish failed")
	}
}

func (h *homeAssistantPublisher) PublishState(client mqtt.Client, logger zerolog.Logger, payload []byte) {
	token := client.Publish(h.stateTopic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		logger.Error().Err(token.Error()).Str("topic", h.stateTopic).Msg("mqtt: state publish failed")
	}
}
