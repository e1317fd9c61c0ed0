package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/infodisplay/box"
)

func TestEncodeInvalidState(t *testing.T) {
	body, err := encodeState(box.Invalid(time.Time{}))
	require.NoError(t, err)
	require.JSONEq(t, `{"valid":false,"lights_on":[],"doors_opened":[],"house_mode":null,"outside_temperature":null}`, string(body))
}

func TestEncodeStateReadAt(t *testing.T) {
	ts := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)
	body, err := encodeState(box.Status{Valid: true, ReadAt: ts, HouseMode: box.ModeAway})
	require.NoError(t, err)
	require.Contains(t, string(body), `"read_at":"2024-05-01T07:30:00Z"`)
	require.Contains(t, string(body), `"house_mode":"away"`)
}

func TestDecodeCommand(t *testing.T) {
	cases := map[string]box.HouseMode{
		"away":               box.ModeAway,
		" Present \n":        box.ModePresent,
		`"cleaning"`:         box.ModeCleaning,
		`{"mode":"away"}`:    box.ModeAway,
		`{"mode":"PRESENT"}`: box.ModePresent,
	}
	for payload, want := range cases {
		got, err := decodeCommand([]byte(payload))
		require.NoError(t, err, payload)
		require.Equal(t, want, got, payload)
	}
	for _, payload := range []string{"", "none", "holiday", `{"mode":`, `{"state":"away"}`} {
		_, err := decodeCommand([]byte(payload))
		require.Error(t, err, payload)
	}
}

func TestSettingsResolve(t *testing.T) {
	_, err := Settings{}.resolve()
	require.Error(t, err)

	s, err := Settings{Broker: "tcp://localhost:1883", TopicPrefix: "/home/panel/"}.resolve()
	require.NoError(t, err)
	require.Equal(t, "home/panel", s.TopicPrefix)
	require.Equal(t, "home_panel", s.nodeID())
	require.Equal(t, "homeassistant", s.DiscoveryPrefix)
	require.Equal(t, "home/panel/mode/set", s.commandTopic())
	require.Regexp(t, `^infodisplay-[0-9a-f]{8}$`, s.ClientID)
}

func TestNewRequiresRequester(t *testing.T) {
	_, err := New(Settings{Broker: "tcp://localhost:1883"}, nil)
	require.Error(t, err)
}
