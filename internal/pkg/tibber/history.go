package tibber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
)

// QueryPolicy is applied to the pull query: three attempts, 1s then 2s apart.
var QueryPolicy = retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 2 * time.Second}

type notifier interface {
	NotifyAll(message string)
}

// History polls the last hours of consumption and the current price.
type History struct {
	client   *Client
	retry    *retry.Executor
	hours    int
	notifier notifier
	logger   *zap.Logger
}

func NewHistory(client *Client, executor *retry.Executor, hours int, n notifier) *History {
	return &History{
		client:   client,
		retry:    executor,
		hours:    hours,
		notifier: n,
		logger:   zap.L(),
	}
}

// Collect returns nil without a token and when all attempts failed.
func (h *History) Collect(ctx context.Context) *Home {
	if !h.client.Configured() {
		h.logger.Debug("tibber token not set, skipping")
		metrics.CollectorRuns.WithLabelValues("tibber", "empty").Inc()
		return nil
	}
	home, err := retry.Value(ctx, h.retry, func(ctx context.Context) (*Home, error) {
		return h.client.Home(ctx, h.hours)
	})
	if err != nil {
		if !errors.Is(err, config.ErrNotConfigured) {
			h.logger.Error("unable to query tibber", zap.Error(err))
			if h.notifier != nil {
				h.notifier.NotifyAll(fmt.Sprintf("tibber query failed: %v", err))
			}
		}
		metrics.CollectorRuns.WithLabelValues("tibber", "failed").Inc()
		return nil
	}
	h.logger.Info("tibber data fetched",
		zap.String("home_id", home.ID),
		zap.Int("consumption_records", len(home.Consumption)),
		zap.Bool("realtime_enabled", home.RealTimeEnabled),
	)
	metrics.CollectorRuns.WithLabelValues("tibber", "ok").Inc()
	return home
}
