package homeauto

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

// Raw field names returned by the X_AVM-DE_Homeauto actions.
const (
	fieldAIN                = "NewAIN"
	fieldSwitchState        = "NewSwitchState"
	fieldMultimeterPower    = "NewMultimeterPower"
	fieldMultimeterIsValid  = "NewMultimeterIsValid"
	fieldSwitchPower        = "NewSwitchPower"
	fieldPower              = "NewPower"
	fieldTemperatureCelsius = "NewTemperatureCelsius"
	fieldTemperatureIsValid = "NewTemperatureIsValid"
	fieldTemperature        = "NewTemperature"
	fieldPresent            = "NewPresent"
	fieldProductName        = "NewProductName"
	fieldDeviceName         = "NewDeviceName"
	fieldManufacturer       = "NewManufacturer"
	fieldFirmwareVersion    = "NewFirmwareVersion"
	fieldHkrIsValid         = "NewHkrIsValid"
	fieldHkrSetTemperature  = "NewHkrSetTemperature"
	fieldHkrReduceTemp      = "NewHkrReduceTemperature"
	fieldHkrComfortTemp     = "NewHkrComfortTemperature"
	fieldHkrValveStatus     = "NewHkrSetVentilStatus"
)

const invalid = "INVALID"

// Normalize maps one raw record into the canonical reading. ok is false when
// the record has no device identifier.
func Normalize(raw map[string]string) (reading model.SmartPlugReading, ok bool) {
	id := strings.TrimSpace(raw[fieldAIN])
	if id == "" {
		return model.SmartPlugReading{}, false
	}

	r := model.SmartPlugReading{
		DeviceID:        id,
		ProductName:     optString(raw, fieldProductName),
		DeviceName:      optString(raw, fieldDeviceName),
		Manufacturer:    optString(raw, fieldManufacturer),
		FirmwareVersion: optString(raw, fieldFirmwareVersion),
		Present:         parsePresent(raw[fieldPresent]),
	}

	if state, exists := raw[fieldSwitchState]; exists {
		r.RawSwitchState = lo.ToPtr(state)
		r.SwitchState = model.ParseSwitchState(state)
	}

	// Power: multimeter reading (1/100 W) wins over the legacy mW fields.
	if !isInvalid(raw, fieldMultimeterIsValid) {
		r.MultimeterPower = optInt(raw, fieldMultimeterPower)
	}
	r.SwitchPower = optInt(raw, fieldSwitchPower)
	switch {
	case r.MultimeterPower != nil:
		r.PowerMilliwatts = lo.ToPtr(*r.MultimeterPower * 10)
	case r.SwitchPower != nil:
		r.PowerMilliwatts = r.SwitchPower
	default:
		r.PowerMilliwatts = optInt(raw, fieldPower)
	}

	if !isInvalid(raw, fieldTemperatureIsValid) {
		r.TemperatureTenthsCelsius = optInt(raw, fieldTemperatureCelsius)
	}
	if r.TemperatureTenthsCelsius == nil {
		r.TemperatureTenthsCelsius = optInt(raw, fieldTemperature)
	}

	if !isInvalid(raw, fieldHkrIsValid) {
		hkr := &model.ThermostatFields{
			SetTemperature:     optInt(raw, fieldHkrSetTemperature),
			ReduceTemperature:  optInt(raw, fieldHkrReduceTemp),
			ComfortTemperature: optInt(raw, fieldHkrComfortTemp),
			ValveStatus:        optString(raw, fieldHkrValveStatus),
		}
		if *hkr != (model.ThermostatFields{}) {
			r.Thermostat = hkr
		}
	}
	return r, true
}

// NormalizeAll drops unidentifiable records.
func NormalizeAll(raws []map[string]string) []model.SmartPlugReading {
	return lo.FilterMap(raws, func(raw map[string]string, _ int) (model.SmartPlugReading, bool) {
		return Normalize(raw)
	})
}

// FilterAllowList keeps readings whose identifier, with all whitespace
// removed, matches an allow-list entry compared the same way. An empty list
// keeps everything.
func FilterAllowList(readings []model.SmartPlugReading, allowList []string) []model.SmartPlugReading {
	if len(allowList) == 0 {
		return readings
	}
	allowed := lo.SliceToMap(allowList, func(id string) (string, struct{}) {
		return compact(id), struct{}{}
	})
	return lo.Filter(readings, func(r model.SmartPlugReading, _ int) bool {
		_, ok := allowed[compact(r.DeviceID)]
		return ok
	})
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func parsePresent(v string) model.Tristate {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CONNECTED":
		return model.True
	case "DISCONNECTED":
		return model.False
	default:
		return model.Unknown
	}
}

func isInvalid(raw map[string]string, field string) bool {
	return strings.EqualFold(strings.TrimSpace(raw[field]), invalid)
}

// optInt is absent for missing or non-integer values.
func optInt(raw map[string]string, field string) *int64 {
	v, ok := raw[field]
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func optString(raw map[string]string, field string) *string {
	v := strings.TrimSpace(raw[field])
	if v == "" {
		return nil
	}
	return &v
}
