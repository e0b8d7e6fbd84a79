package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

type routerCollector interface {
	Collect(ctx context.Context) *model.RouterSnapshot
}

type speedtestCollector interface {
	Collect(ctx context.Context) *model.SpeedtestResult
}

type weatherCollector interface {
	Collect(ctx context.Context) *model.WeatherReading
}

type writer interface {
	WriteRouterSnapshot(ctx context.Context, snap *model.RouterSnapshot) error
	WriteSpeedtest(ctx context.Context, r *model.SpeedtestResult) error
	WriteWeather(ctx context.Context, r *model.WeatherReading) error
}

// Scheduler runs the router collector every base interval and the
// speedtest and weather collectors whenever their own interval has elapsed.
// Collectors run one after the other inside a tick.
type Scheduler struct {
	router    routerCollector
	speedtest speedtestCollector
	weather   weatherCollector
	writer    writer

	interval          time.Duration
	speedtestInterval time.Duration
	weatherInterval   time.Duration

	lastSpeedtest time.Time
	lastWeather   time.Time

	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Scheduler)

// WithSpeedtest enables the speedtest collector.
func WithSpeedtest(c speedtestCollector) Option {
	return func(s *Scheduler) {
		s.speedtest = c
	}
}

// WithWeather enables the weather collector.
func WithWeather(c weatherCollector) Option {
	return func(s *Scheduler) {
		s.weather = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.sleep = f
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func New(cfg *config.ScheduleConfig, w writer, router routerCollector, opts ...Option) *Scheduler {
	s := &Scheduler{
		router:            router,
		writer:            w,
		interval:          cfg.CollectInterval,
		speedtestInterval: cfg.SpeedtestInterval,
		weatherInterval:   cfg.WeatherInterval,
		logger:            zap.L(),
		now:               time.Now,
		sleep:             sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks until ctx is done. The next tick starts one interval after the
// previous one started, or immediately when a tick overran.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("speedtest_interval", s.speedtestInterval),
		zap.Duration("weather_interval", s.weatherInterval),
		zap.Bool("speedtest", s.speedtest != nil),
		zap.Bool("weather", s.weather != nil),
	)
	for {
		started := s.now()
		s.Tick(ctx)
		wait := s.interval - s.now().Sub(started)
		if wait < 0 {
			wait = 0
		}
		if err := s.sleep(ctx, wait); err != nil {
			s.logger.Info("scheduler stopped")
			return err
		}
	}
}

// Tick runs one cycle. It never fails; collector and write failures are
// logged and the remaining collectors still run.
func (s *Scheduler) Tick(ctx context.Context) {
	logger := s.logger.With(zap.String("cycle_id", uuid.NewString()))
	started := s.now()

	if snap := s.router.Collect(ctx); snap != nil {
		if err := s.writer.WriteRouterSnapshot(ctx, snap); err != nil {
			logger.Error("failed to persist router snapshot", zap.Error(err))
		} else {
			logger.Info("router snapshot persisted", zap.Int("smart_plugs", len(snap.SmartPlugs)))
		}
	}

	if s.speedtest != nil && due(s.now(), s.lastSpeedtest, s.speedtestInterval) {
		s.lastSpeedtest = s.now()
		if r := s.speedtest.Collect(ctx); r == nil {
			logger.Warn("speedtest produced no result")
		} else if err := s.writer.WriteSpeedtest(ctx, r); err != nil {
			logger.Error("failed to persist speedtest", zap.Error(err))
		} else {
			logger.Info("speedtest persisted", zap.Float64("download_mbps", r.DownloadMbps), zap.Float64("upload_mbps", r.UploadMbps))
		}
	}

	if s.weather != nil && due(s.now(), s.lastWeather, s.weatherInterval) {
		s.lastWeather = s.now()
		if r := s.weather.Collect(ctx); r != nil {
			if err := s.writer.WriteWeather(ctx, r); err != nil {
				logger.Error("failed to persist weather", zap.Error(err))
			} else {
				logger.Info("weather persisted", zap.String("location", r.Location))
			}
		}
	}

	logger.Debug("cycle finished", zap.Duration("took", s.now().Sub(started)))
}

func due(now, last time.Time, every time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= every
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
