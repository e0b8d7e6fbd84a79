package model

import "strings"

// Tristate is a boolean that may also be unknown.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Bool returns nil when the state is unknown.
func (t Tristate) Bool() *bool {
	switch t {
	case True:
		v := true
		return &v
	case False:
		v := false
		return &v
	default:
		return nil
	}
}

// Int returns 1, 0 or nil, which is how switch states are stored.
func (t Tristate) Int() *int {
	switch t {
	case True:
		v := 1
		return &v
	case False:
		v := 0
		return &v
	default:
		return nil
	}
}

func (t Tristate) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseSwitchState maps "ON"/"OFF" (case-insensitive) to True/False and
// everything else to Unknown.
func ParseSwitchState(raw string) Tristate {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ON":
		return True
	case "OFF":
		return False
	default:
		return Unknown
	}
}

// Kind names a record type. It is used for table routing, mirror topics and
// metric labels.
type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindRouterStatus Kind = "router_status"
	KindSmartPlug    Kind = "smart_plug"
	KindSpeedtest    Kind = "speedtest"
	KindWeather      Kind = "weather"
	KindLive         Kind = "energy_live"
	KindConsumption  Kind = "energy_consumption"
	KindPrice        Kind = "energy_price"
)
