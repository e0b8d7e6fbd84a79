// Package homeauto reads the router's smart-plug inventory and normalizes it
// into canonical readings.
package homeauto

import (
	"context"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/fritz"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

const (
	actionGenericInfos  = "GetGenericDeviceInfos"
	actionSpecificInfos = "GetSpecificDeviceInfos"

	// MaxDevices caps enumeration in case the device never answers with
	// the end-of-range code.
	MaxDevices = 128
)

// Session is the part of a device session the reader needs.
type Session interface {
	ListServices() []string
	ListActions(ctx context.Context, service string) ([]string, error)
	CallAction(ctx context.Context, service, action string, params map[string]string) (map[string]string, error)
}

type notifier interface {
	NotifyAll(message string)
}

type Reader struct {
	allowList []string
	notifier  notifier
	logger    *zap.Logger
}

// New returns a Reader. allowList restricts the output to these device
// identifiers and doubles as the fixed list for firmware without
// enumeration support.
func New(allowList []string, n notifier) *Reader {
	return &Reader{
		allowList: allowList,
		notifier:  n,
		logger:    zap.L(),
	}
}

// Read returns the normalized, allow-listed readings for the session. A
// device without a home-automation service yields no readings and no error.
func (r *Reader) Read(ctx context.Context, s Session) []model.SmartPlugReading {
	service, ok := fritz.ResolveHomeauto(s.ListServices())
	if !ok {
		r.logger.Info("no home-automation service advertised, skipping smart plugs")
		return nil
	}

	actions, err := s.ListActions(ctx, service)
	if err != nil {
		// the SCPD is informational; try enumeration anyway
		r.logger.Warn("unable to list home-automation actions", zap.String("service", service), zap.Error(err))
	}

	var raws []map[string]string
	switch {
	case err != nil || lo.Contains(actions, actionGenericInfos):
		raws = r.Enumerate(ctx, s, service)
	case len(r.allowList) > 0:
		r.logger.Warn("device does not support enumeration, reading configured AINs",
			zap.String("service", service), zap.Strings("ains", r.allowList))
		raws = r.readFixed(ctx, s, service, actions)
	default:
		r.logger.Warn("device does not support enumeration and no AINs are configured", zap.String("service", service))
		return nil
	}

	readings := FilterAllowList(NormalizeAll(raws), r.allowList)
	r.logger.Debug("smart plugs read", zap.String("service", service),
		zap.Int("raw", len(raws)), zap.Int("readings", len(readings)))
	return readings
}

// Enumerate walks GetGenericDeviceInfos from index 0 until the end-of-range
// code. Any other failure stops early and keeps what was collected.
func (r *Reader) Enumerate(ctx context.Context, s Session, service string) []map[string]string {
	var out []map[string]string
	for i := 0; i < MaxDevices; i++ {
		raw, err := s.CallAction(ctx, service, actionGenericInfos, map[string]string{"NewIndex": strconv.Itoa(i)})
		if fritz.IsEndOfRange(err) {
			return out
		}
		if err != nil {
			r.logger.Error("device enumeration failed", zap.String("service", service), zap.Int("index", i), zap.Error(err))
			r.notify(fmt.Sprintf("smart-plug enumeration stopped at index %d: %v", i, err))
			return out
		}
		out = append(out, raw)
	}
	r.logger.Warn("device enumeration hit the safety cap", zap.Int("max", MaxDevices))
	return out
}

func (r *Reader) notify(msg string) {
	if r.notifier != nil {
		r.notifier.NotifyAll(msg)
	}
}
