package box

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a point-in-time snapshot of the automation box.
//
// A status is produced from exactly one provider read and is never modified
// afterwards; a new read replaces it as a whole. When Valid is false the
// remaining fields are empty and must not be interpreted.
type Status struct {
	Valid              bool                `json:"valid"`
	LightsOn           []string            `json:"lights_on"`
	DoorsOpened        []string            `json:"doors_opened"`
	OutsideTemperature decimal.NullDecimal `json:"outside_temperature"`
	HouseMode          HouseMode           `json:"house_mode"`
	ReadAt             time.Time           `json:"read_at"`
}

// Invalid returns the snapshot used when no read succeeded.
func Invalid(ts time.Time) Status {
	return Status{LightsOn: []string{}, DoorsOpened: []string{}, ReadAt: ts}
}

// Clone returns a deep copy so callers can hand the value out freely.
func (s Status) Clone() Status {
	out := s
	out.LightsOn = cloneStrings(s.LightsOn)
	out.DoorsOpened = cloneStrings(s.DoorsOpened)
	return out
}

// Temperature returns the outside temperature as float64 when present.
func (s Status) Temperature() (float64, bool) {
	if !s.Valid || !s.OutsideTemperature.Valid {
		return 0, false
	}
	return s.OutsideTemperature.Decimal.InexactFloat64(), true
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
