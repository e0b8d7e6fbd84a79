package homeauto

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// readFixed reads each configured AIN with the targeted actions, falling back
// to GetSpecificDeviceInfos. The raw maps use the same field names as
// enumeration so they pass through Normalize unchanged.
func (r *Reader) readFixed(ctx context.Context, s Session, service string, actions []string) []map[string]string {
	out := make([]map[string]string, 0, len(r.allowList))
	for _, ain := range r.allowList {
		ain = strings.TrimSpace(ain)
		raw, err := r.readTargeted(ctx, s, service, actions, ain)
		if err != nil {
			r.logger.Warn("targeted actions failed, trying GetSpecificDeviceInfos", zap.String("ain", ain), zap.Error(err))
			raw, err = s.CallAction(ctx, service, actionSpecificInfos, map[string]string{fieldAIN: ain})
		}
		if err != nil || !hasAnyValue(raw) {
			r.logger.Error("unable to read smart plug", zap.String("ain", ain), zap.Error(err))
			r.notify(fmt.Sprintf("unable to read smart plug %s: %v", ain, err))
			raw = map[string]string{}
		}
		raw[fieldAIN] = ain
		out = append(out, raw)
	}
	return out
}

func (r *Reader) readTargeted(ctx context.Context, s Session, service string, actions []string, ain string) (map[string]string, error) {
	if !lo.Every(actions, []string{"GetSwitchState", "GetTemperature"}) {
		return nil, fmt.Errorf("targeted state/temperature actions not available")
	}
	powerAction, powerField := "", ""
	switch {
	case lo.Contains(actions, "GetSwitchPower"):
		powerAction, powerField = "GetSwitchPower", fieldSwitchPower
	case lo.Contains(actions, "GetPower"):
		powerAction, powerField = "GetPower", fieldPower
	default:
		return nil, fmt.Errorf("neither GetSwitchPower nor GetPower available")
	}

	raw := map[string]string{}
	calls := []struct{ action, field string }{
		{"GetSwitchState", fieldSwitchState},
		{"GetTemperature", fieldTemperature},
		{powerAction, powerField},
	}
	for _, c := range calls {
		res, err := s.CallAction(ctx, service, c.action, map[string]string{fieldAIN: ain})
		if err != nil {
			return nil, err
		}
		if v, ok := res[c.field]; ok {
			raw[c.field] = v
		}
	}
	return raw, nil
}

func hasAnyValue(raw map[string]string) bool {
	for _, f := range []string{fieldSwitchState, fieldPower, fieldSwitchPower, fieldMultimeterPower, fieldTemperature, fieldTemperatureCelsius} {
		if _, ok := raw[f]; ok {
			return true
		}
	}
	return false
}
