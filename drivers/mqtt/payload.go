package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/timzifer/infodisplay/box"
)

// statePayload is the retained JSON document published on <prefix>/state.
type statePayload struct {
	Valid              bool         `json:"valid"`
	LightsOn           []string     `json:"lights_on"`
	DoorsOpened        []string     `json:"doors_opened"`
	HouseMode          *string      `json:"house_mode"`
	OutsideTemperature *json.Number `json:"outside_temperature"`
	ReadAt             *time.Time   `json:"read_at,omitempty"`
}

func encodeState(status box.Status) ([]byte, error) {
	payload := statePayload{
		Valid:       status.Valid,
		LightsOn:    status.LightsOn,
		DoorsOpened: status.DoorsOpened,
	}
	if payload.LightsOn == nil {
		payload.LightsOn = []string{}
	}
	if payload.DoorsOpened == nil {
		payload.DoorsOpened = []string{}
	}
	if wire, err := status.HouseMode.Wire(); err == nil {
		payload.HouseMode = &wire
	}
	if status.OutsideTemperature.Valid {
		n := json.Number(status.OutsideTemperature.Decimal.String())
		payload.OutsideTemperature = &n
	}
	if !status.ReadAt.IsZero() {
		ts := status.ReadAt.UTC()
		payload.ReadAt = &ts
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mqtt: encode state: %w", err)
	}
	return body, nil
}

// decodeCommand accepts a bare mode ("away"), a JSON string ("\"away\"") or
// an object ({"mode":"away"}).
func decodeCommand(payload []byte) (box.HouseMode, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return box.ModeNone, fmt.Errorf("mqtt: decode command: %w", err)
		}
		raw = body.Mode
	} else if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal([]byte(raw), &raw); err != nil {
			return box.ModeNone, fmt.Errorf("mqtt: decode command: %w", err)
		}
	}
	mode, ok := box.ParseHouseMode(raw)
	if !ok || mode == box.ModeNone {
		return box.ModeNone, fmt.Errorf("%w: %q", box.ErrInvalidMode, raw)
	}
	return mode, nil
}
