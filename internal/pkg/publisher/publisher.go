package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/pricing"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
)

var errAlreadyRegistered = errors.New("mirror already registered")

// Store is the primary sink. Every call is one independent unit of work.
type Store interface {
	WriteRouterSnapshot(ctx context.Context, snap *model.RouterSnapshot) error
	WriteSpeedtest(ctx context.Context, r *model.SpeedtestResult, at time.Time) error
	WriteWeather(ctx context.Context, w *model.WeatherReading, at time.Time) error
	WriteLive(ctx context.Context, m *model.LiveMeasurement) error
}

// HistoryStore holds the deduplicated energy-provider history.
type HistoryStore interface {
	ConsumptionExists(ctx context.Context, from time.Time) (bool, error)
	InsertConsumption(ctx context.Context, r *model.ConsumptionRecord) error
	ProviderPriceExists(ctx context.Context, startsAt time.Time) (bool, error)
	InsertProviderPrice(ctx context.Context, p *model.ProviderPrice) error
}

type mirror interface {
	Write(ctx context.Context, data []model.Observation) error
}

type pricer interface {
	CurrentPrice(ctx context.Context) float64
}

// Writer persists canonical records into the store, retrying each write, and
// mirrors changed values to the registered mirrors afterwards.
type Writer struct {
	store    Store
	history  HistoryStore
	executor *retry.Executor
	pricer   pricer
	interval time.Duration

	mirrors map[string]mirror
	values  sync.Map

	logger *zap.Logger
	now    func() time.Time
}

// New builds a writer. pricer may be nil, in which case no interval cost is
// attached to smart-plug readings.
func New(store Store, history HistoryStore, executor *retry.Executor, p pricer, interval time.Duration) *Writer {
	return &Writer{
		store:    store,
		history:  history,
		executor: executor,
		pricer:   p,
		interval: interval,
		mirrors:  make(map[string]mirror),
		logger:   zap.L(),
		now:      time.Now,
	}
}

// RegisterMirror adds a best-effort secondary sink. Not safe to call once
// writes have started.
func (w *Writer) RegisterMirror(name string, m mirror) error {
	if _, ok := w.mirrors[name]; ok {
		return errAlreadyRegistered
	}
	w.mirrors[name] = m
	return nil
}

func (w *Writer) WriteRouterSnapshot(ctx context.Context, snap *model.RouterSnapshot) error {
	if snap == nil {
		return nil
	}
	if w.pricer != nil && len(snap.SmartPlugs) > 0 {
		// readings are immutable, cost goes onto a copy
		priced := *snap
		priced.SmartPlugs = slices.Clone(snap.SmartPlugs)
		snap = &priced
		price := w.pricer.CurrentPrice(ctx)
		for i := range snap.SmartPlugs {
			p := &snap.SmartPlugs[i]
			if p.PowerMilliwatts == nil {
				continue
			}
			cost := pricing.IntervalCost(*p.PowerMilliwatts, w.interval, price)
			p.IntervalCost = &cost
		}
	}
	if err := w.executor.Do(ctx, func(ctx context.Context) error {
		return w.store.WriteRouterSnapshot(ctx, snap)
	}); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(model.KindRouterStatus.String()).Inc()
	metrics.RowsWritten.WithLabelValues(model.KindSmartPlug.String()).Add(float64(len(snap.SmartPlugs)))

	data := []model.Observation{{Kind: model.KindRouterStatus, Key: "router", Value: snap.Status, At: snap.CollectedAt}}
	data = append(data, lo.Map(snap.SmartPlugs, func(p model.SmartPlugReading, _ int) model.Observation {
		return model.Observation{Kind: model.KindSmartPlug, Key: p.DeviceID, Value: p, At: snap.CollectedAt}
	})...)
	w.mirror(ctx, data)
	return nil
}

func (w *Writer) WriteSpeedtest(ctx context.Context, r *model.SpeedtestResult) error {
	if r == nil {
		return nil
	}
	at := w.now().UTC()
	if err := w.executor.Do(ctx, func(ctx context.Context) error {
		return w.store.WriteSpeedtest(ctx, r, at)
	}); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(model.KindSpeedtest.String()).Inc()
	w.mirror(ctx, []model.Observation{{Kind: model.KindSpeedtest, Key: "speedtest", Value: r, At: at}})
	return nil
}

func (w *Writer) WriteWeather(ctx context.Context, r *model.WeatherReading) error {
	if r == nil {
		return nil
	}
	at := w.now().UTC()
	if err := w.executor.Do(ctx, func(ctx context.Context) error {
		return w.store.WriteWeather(ctx, r, at)
	}); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(model.KindWeather.String()).Inc()
	w.mirror(ctx, []model.Observation{{Kind: model.KindWeather, Key: r.Location, Value: r, At: at}})
	return nil
}

func (w *Writer) WriteLive(ctx context.Context, m model.LiveMeasurement) error {
	if err := w.executor.Do(ctx, func(ctx context.Context) error {
		return w.store.WriteLive(ctx, &m)
	}); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(model.KindLive.String()).Inc()
	w.mirror(ctx, []model.Observation{{Kind: model.KindLive, Key: "live", Value: m, At: m.Timestamp}})
	return nil
}

// WriteHistory stores every consumption bucket and the current provider
// price whose start timestamp is not stored yet. Existing rows are skipped,
// never overwritten. A record that cannot be written is logged and the batch
// continues; the joined errors are returned with the number of new rows.
func (w *Writer) WriteHistory(ctx context.Context, records []model.ConsumptionRecord, price *model.ProviderPrice) (int, error) {
	var errs []error
	inserted := 0
	var latest *model.ConsumptionRecord

	for i := range records {
		r := &records[i]
		var added bool
		err := w.executor.Do(ctx, func(ctx context.Context) error {
			exists, err := w.history.ConsumptionExists(ctx, r.From)
			if err != nil {
				return err
			}
			if exists {
				added = false
				return nil
			}
			if err := w.history.InsertConsumption(ctx, r); err != nil {
				return err
			}
			added = true
			return nil
		})
		if err != nil {
			w.logger.Error("dropping consumption record", zap.Time("from", r.From), zap.Error(err))
			errs = append(errs, fmt.Errorf("consumption %s: %w", r.From.Format(time.RFC3339), err))
			continue
		}
		if added {
			inserted++
			if latest == nil || r.From.After(latest.From) {
				latest = r
			}
		}
	}
	if inserted > 0 {
		metrics.RowsWritten.WithLabelValues(model.KindConsumption.String()).Add(float64(inserted))
	}

	var data []model.Observation
	if latest != nil {
		data = append(data, model.Observation{Kind: model.KindConsumption, Key: "latest", Value: latest, At: latest.From})
	}

	if price != nil {
		var added bool
		err := w.executor.Do(ctx, func(ctx context.Context) error {
			exists, err := w.history.ProviderPriceExists(ctx, price.StartsAt)
			if err != nil || exists {
				return err
			}
			if err := w.history.InsertProviderPrice(ctx, price); err != nil {
				return err
			}
			added = true
			return nil
		})
		switch {
		case err != nil:
			w.logger.Error("dropping provider price", zap.Time("starts_at", price.StartsAt), zap.Error(err))
			errs = append(errs, fmt.Errorf("price %s: %w", price.StartsAt.Format(time.RFC3339), err))
		case added:
			metrics.RowsWritten.WithLabelValues(model.KindPrice.String()).Inc()
			data = append(data, model.Observation{Kind: model.KindPrice, Key: "current", Value: price, At: price.StartsAt})
		}
	}

	w.mirror(ctx, data)
	w.logger.Debug("energy history written", zap.Int("records", len(records)), zap.Int("inserted", inserted))
	return inserted, errors.Join(errs...)
}

// mirror sends the observations whose value changed since the last write to
// every mirror. Failures are logged and not retried.
func (w *Writer) mirror(ctx context.Context, data []model.Observation) {
	if len(w.mirrors) == 0 || len(data) == 0 {
		return
	}
	changed := lo.Filter(data, func(o model.Observation, _ int) bool {
		return w.shouldUpdate(o)
	})
	if len(changed) == 0 {
		return
	}
	for name, m := range w.mirrors {
		if err := m.Write(ctx, changed); err != nil {
			w.logger.Error("failed to mirror data", zap.Error(err), zap.String("mirror", name))
			continue
		}
		w.logger.Debug("mirrored observations", zap.Int("count", len(changed)), zap.String("mirror", name))
	}
}

func (w *Writer) shouldUpdate(o model.Observation) bool {
	payload, err := json.Marshal(o.Value)
	if err != nil {
		return true
	}
	key := fmt.Sprintf("%s_%s", o.Kind, o.Key)
	newValue := string(payload)
	oldValue, exists := w.values.Load(key)
	if exists && newValue == oldValue.(string) {
		return false
	}
	if !exists {
		w.logger.Info("new source", zap.Stringer("kind", o.Kind), zap.String("key", o.Key))
	}
	w.values.Store(key, newValue)
	return true
}
