package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/fritz-collector/internal/pkg/cache"
	"github.com/anicoll/fritz-collector/internal/pkg/collector"
	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/database"
	"github.com/anicoll/fritz-collector/internal/pkg/database/migration"
	"github.com/anicoll/fritz-collector/internal/pkg/fritz"
	"github.com/anicoll/fritz-collector/internal/pkg/health"
	"github.com/anicoll/fritz-collector/internal/pkg/homeauto"
	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/mqtt"
	"github.com/anicoll/fritz-collector/internal/pkg/notify"
	"github.com/anicoll/fritz-collector/internal/pkg/pricing"
	"github.com/anicoll/fritz-collector/internal/pkg/publisher"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
	"github.com/anicoll/fritz-collector/internal/pkg/scheduler"
	"github.com/anicoll/fritz-collector/internal/pkg/tibber"
)

const clientID = "fritz-collector"

// CollectCommand runs the collector until interrupted.
func CollectCommand(c *cli.Context) error {
	if err := loadEnvFile(c.String("env-file")); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	svcs, cleanup, err := build(c.Context, cfg)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer cleanup()

	if err := run(c.Context, cfg, svcs); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("collector stopped")
	return nil
}

// HealthcheckCommand exits non-zero when the log file is missing or stale.
func HealthcheckCommand(c *cli.Context) error {
	if err := health.CheckLogFile(c.String("log-file"), health.MaxLogAge, time.Now()); err != nil {
		return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, "healthy")
	return nil
}

// loadEnvFile loads path into the environment. A missing file is ignored.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		logCfg.OutputPaths = append(logCfg.OutputPaths, cfg.LogFile)
	}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// build connects the store and the optional mirrors and constructs every
// component. Schema migration failures halt startup.
func build(ctx context.Context, cfg *config.Config) (*services, func(), error) {
	logger := zap.L()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dsn := cfg.DatabaseCfg.DSN()
	if err := migration.Migrate(dsn); err != nil {
		return nil, cleanup, fmt.Errorf("schema migration failed: %w", err)
	}
	db, err := database.Connect(ctx, dsn)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { _ = db.Close() })

	notifier := notify.NewMulti()
	if cfg.NotifyCfg.DiscordWebhook != "" {
		notifier.Add("discord", notify.NewDiscord(cfg.NotifyCfg.DiscordWebhook))
	}
	if cfg.NotifyCfg.TelegramToken != "" && cfg.NotifyCfg.TelegramChatID != "" {
		notifier.Add("telegram", notify.NewTelegram(cfg.NotifyCfg.TelegramToken, cfg.NotifyCfg.TelegramChatID))
	}

	prices := pricing.New(db, cfg.PricePerKwh)
	writer := publisher.New(db, db,
		retry.New("store write", retry.Fixed, retry.WithNotifier(notifier)),
		prices, cfg.ScheduleCfg.CollectInterval)

	if cfg.MqttCfg.Host != "" {
		mqttSvc := mqtt.New(mqtt.NewClient(cfg.MqttCfg.Host, cfg.MqttCfg.Username, cfg.MqttCfg.Password, clientID), cfg.MqttCfg.TopicPrefix)
		if err := connectMQTT(mqttSvc); err != nil {
			logger.Warn("mqtt unavailable, mirror disabled", zap.String("host", cfg.MqttCfg.Host), zap.Error(err))
		} else {
			closers = append(closers, mqttSvc.Disconnect)
			notifier.Add("mqtt", mqttSvc)
			if err := writer.RegisterMirror("mqtt", mqttSvc); err != nil {
				return nil, cleanup, err
			}
		}
	}
	if cfg.RedisCfg.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisCfg.Addr, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
		if err != nil {
			logger.Warn("redis unavailable, mirror disabled", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			if err := writer.RegisterMirror("redis", cache.New(rdb)); err != nil {
				return nil, cleanup, err
			}
		}
	}
	logger.Info("notifications configured", zap.Int("channels", notifier.Len()))

	fritzCfg := cfg.FritzCfg
	router := collector.NewRouter(func(ctx context.Context) (collector.RouterSession, error) {
		client, err := fritz.Connect(ctx, fritzCfg.Host, fritzCfg.Port, fritzCfg.Username, fritzCfg.Password)
		if err != nil {
			return nil, err
		}
		return client, nil
	},
		retry.New("router connect", collector.ConnectPolicy, retry.WithNotifier(notifier)),
		homeauto.New(cfg.DeviceAllowList, notifier), notifier)

	var opts []scheduler.Option
	if cfg.ScheduleCfg.SpeedtestEnabled {
		opts = append(opts, scheduler.WithSpeedtest(collector.NewSpeedtest(
			collector.NewNetworkRunner(),
			retry.New("speedtest", retry.Fixed, retry.WithNotifier(notifier)),
		)))
	}
	if cfg.WeatherCfg.APIKey != "" {
		opts = append(opts, scheduler.WithWeather(collector.NewWeather(cfg.WeatherCfg, notifier)))
	} else {
		logger.Info("weather api key not set, weather collector disabled")
	}

	svcs := &services{
		store:         db,
		scheduler:     scheduler.New(cfg.ScheduleCfg, writer, router, opts...),
		historyWriter: writer,
		historyEvery:  cfg.TibberCfg.Interval,
	}

	if client := tibber.NewClient(cfg.TibberCfg); client.Configured() {
		svcs.history = tibber.NewHistory(client,
			retry.New("tibber query", tibber.QueryPolicy, retry.WithNotifier(notifier)),
			cfg.TibberCfg.HistoryHours, notifier)
		if cfg.TibberCfg.LiveEnabled {
			svcs.live = tibber.NewLiveSubscriber(client,
				retry.New("tibber live", tibber.LivePolicy),
				func(ctx context.Context, m model.LiveMeasurement) {
					if err := writer.WriteLive(ctx, m); err != nil {
						zap.L().Error("failed to persist live measurement", zap.Error(err))
					}
				})
		}
	} else {
		logger.Info("tibber token not set, energy provider collector disabled")
	}

	if cfg.HTTPAddr != "" {
		metrics.MustRegister()
		svcs.server = health.NewServer(cfg.HTTPAddr, cfg.LogFile)
	}
	return svcs, cleanup, nil
}

func run(ctx context.Context, cfg *config.Config, svcs *services) error {
	logger := zap.L()

	if err := svcs.store.EnsureColumns(ctx); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	seeded, err := svcs.store.SeedPrice(ctx, cfg.PricePerKwh, pricing.SeedDescription)
	if err != nil {
		return fmt.Errorf("price seeding failed: %w", err)
	}
	if seeded {
		logger.Info("seeded static electricity price", zap.Float64("price_per_kwh", cfg.PricePerKwh))
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return svcs.scheduler.Run(ctx)
	})

	if svcs.history != nil {
		eg.Go(func() error {
			return cronEnergyHistory(ctx, svcs.historyEvery, svcs.history, svcs.historyWriter)
		})
	}

	if svcs.live != nil {
		eg.Go(func() error {
			return svcs.live.Run(ctx)
		})
	}

	if svcs.server != nil {
		eg.Go(func() error {
			if err := svcs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return svcs.server.Shutdown(shutdownCtx)
		})
	}

	return eg.Wait()
}

// cronEnergyHistory pulls the provider history once and then every
// interval until ctx is done.
func cronEnergyHistory(ctx context.Context, every time.Duration, history HistoryCollector, writer HistoryWriter) error {
	job := func() {
		home := history.Collect(ctx)
		if home == nil {
			return
		}
		inserted, err := writer.WriteHistory(ctx, home.Consumption, home.CurrentPrice)
		if err != nil {
			zap.L().Error("energy history partially written", zap.Int("inserted", inserted), zap.Error(err))
			return
		}
		zap.L().Info("energy history written", zap.Int("records", len(home.Consumption)), zap.Int("inserted", inserted))
	}
	job()

	c := newHistoryCron()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), job); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

type mqttConn interface {
	Connect() error
	Disconnect()
}

// connectMQTT disconnects on failure: the client otherwise keeps retrying in
// the background for the life of the process.
func connectMQTT(c mqttConn) error {
	if err := c.Connect(); err != nil {
		c.Disconnect()
		return err
	}
	return nil
}

// newHistoryCron skips a firing while the previous pull is still writing, so
// the exists-then-insert dedup never races with itself.
func newHistoryCron() *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
}
