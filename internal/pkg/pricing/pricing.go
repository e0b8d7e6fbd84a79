package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

// DefaultInterval is the collect interval assumed by IntervalCost when none
// is given.
const DefaultInterval = 300 * time.Second

// SeedDescription is stored with the price row inserted at startup.
const SeedDescription = "static price (default configuration)"

type store interface {
	ActivePrice(ctx context.Context, at time.Time) (*model.PriceEntry, error)
}

type Service struct {
	store  store
	static float64
	logger *zap.Logger
	now    func() time.Time
}

func New(s store, static float64) *Service {
	return &Service{
		store:  s,
		static: static,
		logger: zap.L(),
		now:    time.Now,
	}
}

// CurrentPrice returns the active configured price per kWh, or the static
// price when the table is empty or cannot be read.
func (s *Service) CurrentPrice(ctx context.Context) float64 {
	if s.store == nil {
		return s.static
	}
	entry, err := s.store.ActivePrice(ctx, s.now())
	if err != nil {
		s.logger.Warn("failed to read active price, using static price", zap.Error(err), zap.Float64("price", s.static))
		return s.static
	}
	if entry == nil {
		return s.static
	}
	return entry.PricePerKwh
}

// CalculateEnergyCost is the cost of drawing powerMilliwatts for seconds at
// price per kWh.
func CalculateEnergyCost(powerMilliwatts, seconds, price float64) float64 {
	kw := powerMilliwatts / 1e6
	hours := seconds / 3600
	return kw * hours * price
}

// IntervalCost is CalculateEnergyCost over one collect interval. A
// non-positive interval means DefaultInterval.
func IntervalCost(powerMilliwatts int64, interval time.Duration, price float64) float64 {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return CalculateEnergyCost(float64(powerMilliwatts), interval.Seconds(), price)
}
