package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/showwin/speedtest-go/speedtest"
	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
)

const (
	speedtestCollector = "speedtest"
	// closest servers pinged when picking the best one
	speedtestCandidates = 3
)

// SpeedtestRunner performs a single measurement.
type SpeedtestRunner interface {
	Run(ctx context.Context) (*model.SpeedtestResult, error)
}

type Speedtest struct {
	runner SpeedtestRunner
	retry  *retry.Executor
	logger *zap.Logger
}

func NewSpeedtest(runner SpeedtestRunner, executor *retry.Executor) *Speedtest {
	return &Speedtest{
		runner: runner,
		retry:  executor,
		logger: zap.L(),
	}
}

// Collect returns nil when every attempt failed.
func (s *Speedtest) Collect(ctx context.Context) *model.SpeedtestResult {
	res, err := retry.Value(ctx, s.retry, s.runner.Run)
	if err != nil {
		s.logger.Error("speedtest failed", zap.Error(err))
		observe(speedtestCollector, resultFailed)
		return nil
	}
	s.logger.Info("speedtest finished",
		zap.Float64("ping_ms", res.PingMs),
		zap.Float64("download_mbps", res.DownloadMbps),
		zap.Float64("upload_mbps", res.UploadMbps),
		zap.String("server", res.ServerName),
	)
	observe(speedtestCollector, resultOK)
	return res
}

// NetworkRunner measures against speedtest.net servers.
type NetworkRunner struct {
	client *speedtest.Speedtest
}

func NewNetworkRunner() *NetworkRunner {
	return &NetworkRunner{client: speedtest.New()}
}

func (n *NetworkRunner) Run(ctx context.Context) (*model.SpeedtestResult, error) {
	servers, err := n.client.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch server list: %w", err)
	}
	targets, err := servers.FindServer(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to find server: %w", err)
	}

	best, err := pickBest(ctx, targets)
	if err != nil {
		return nil, err
	}
	defer best.Context.Reset()

	if err := best.DownloadTestContext(ctx); err != nil {
		return nil, fmt.Errorf("download test: %w", err)
	}
	if err := best.UploadTestContext(ctx); err != nil {
		return nil, fmt.Errorf("upload test: %w", err)
	}
	return &model.SpeedtestResult{
		PingMs:       float64(best.Latency.Microseconds()) / 1000,
		DownloadMbps: best.DLSpeed.Mbps(),
		UploadMbps:   best.ULSpeed.Mbps(),
		ServerName:   fmt.Sprintf("%s (%s)", best.Sponsor, best.Name),
	}, nil
}

// pickBest pings the closest candidates and keeps the lowest latency.
func pickBest(ctx context.Context, targets speedtest.Servers) (*speedtest.Server, error) {
	if len(targets) == 0 {
		return nil, errors.New("no speedtest server available")
	}
	var best *speedtest.Server
	var errs []error
	for i, srv := range targets {
		if i >= speedtestCandidates {
			break
		}
		if err := srv.PingTestContext(ctx, nil); err != nil {
			errs = append(errs, err)
			continue
		}
		if best == nil || srv.Latency < best.Latency {
			best = srv
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no reachable speedtest server: %w", errors.Join(errs...))
	}
	return best, nil
}
