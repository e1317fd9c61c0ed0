package eedomus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/timzifer/infodisplay/box"
)

// statusPayload mirrors the JSON document served by the box script.
type statusPayload struct {
	LightsOn           []string        `json:"lights_on"`
	DoorsOpened        []string        `json:"doors_opened"`
	HouseMode          *string         `json:"house_mode"`
	OutsideTemperature json.RawMessage `json:"outside_temperature"`
}

func decodeStatus(body []byte) (box.Status, error) {
	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return box.Status{}, fmt.Errorf("decode status: %w", err)
	}
	temperature, err := parseTemperature(payload.OutsideTemperature)
	if err != nil {
		return box.Status{}, err
	}
	status := box.Status{
		Valid:              true,
		LightsOn:           nonNil(payload.LightsOn),
		DoorsOpened:        nonNil(payload.DoorsOpened),
		OutsideTemperature: temperature,
	}
	if payload.HouseMode != nil {
		status.HouseMode, _ = box.ParseHouseMode(*payload.HouseMode)
	}
	return status, nil
}

// parseTemperature accepts a JSON number, a numeric string, null or "".
func parseTemperature(raw json.RawMessage) (decimal.NullDecimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.NullDecimal{}, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("decode outside_temperature: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return decimal.NullDecimal{}, nil
		}
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("outside_temperature %q: %w", text, err)
	}
	return decimal.NewNullDecimal(value), nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
