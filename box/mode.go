package box

import (
	"errors"
	"fmt"
	"strings"
)

// HouseMode describes the occupancy mode configured on the automation box.
type HouseMode string

const (
	// ModeNone is reported when the box returned no mode or one we do not know.
	ModeNone HouseMode = ""
	// ModeAway means nobody is at home.
	ModeAway HouseMode = "away"
	// ModePresent means the household is at home.
	ModePresent HouseMode = "present"
	// ModeCleaning suspends presence simulation and alarms while cleaning staff is in.
	ModeCleaning HouseMode = "cleaning"
)

// ErrInvalidMode is returned when a mode outside of the known set is written.
var ErrInvalidMode = errors.New("invalid house mode")

// Modes lists the selectable modes in display order.
func Modes() []HouseMode {
	return []HouseMode{ModePresent, ModeAway, ModeCleaning}
}

// ParseHouseMode maps a wire string to a mode. Unknown values map to ModeNone.
func ParseHouseMode(raw string) (HouseMode, bool) {
	switch HouseMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAway:
		return ModeAway, true
	case ModePresent:
		return ModePresent, true
	case ModeCleaning:
		return ModeCleaning, true
	default:
		return ModeNone, false
	}
}

// Valid reports whether the mode can be written to a box.
func (m HouseMode) Valid() bool {
	_, ok := ParseHouseMode(string(m))
	return ok && m != ModeNone
}

// Wire returns the string the box expects for the mode.
func (m HouseMode) Wire() (string, error) {
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}
	return string(m), nil
}

func (m HouseMode) String() string {
	if m == ModeNone {
		return "none"
	}
	return string(m)
}

// MarshalText implements encoding.TextMarshaler.
func (m HouseMode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields ModeNone,
// anything else must be a known mode.
func (m *HouseMode) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*m = ModeNone
		return nil
	}
	mode, ok := ParseHouseMode(string(text))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(text))
	}
	*m = mode
	return nil
}
