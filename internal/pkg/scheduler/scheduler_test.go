package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

type MockRouter struct {
	CollectFunc func(ctx context.Context) *model.RouterSnapshot
}

func (m *MockRouter) Collect(ctx context.Context) *model.RouterSnapshot { return m.CollectFunc(ctx) }

type MockSpeedtest struct {
	CollectFunc func(ctx context.Context) *model.SpeedtestResult
}

func (m *MockSpeedtest) Collect(ctx context.Context) *model.SpeedtestResult {
	return m.CollectFunc(ctx)
}

type MockWeather struct {
	CollectFunc func(ctx context.Context) *model.WeatherReading
}

func (m *MockWeather) Collect(ctx context.Context) *model.WeatherReading { return m.CollectFunc(ctx) }

type recordingWriter struct {
	routers    int
	speedtests int
	weathers   int
	routerErr  error
}

func (w *recordingWriter) WriteRouterSnapshot(context.Context, *model.RouterSnapshot) error {
	w.routers++
	return w.routerErr
}

func (w *recordingWriter) WriteSpeedtest(context.Context, *model.SpeedtestResult) error {
	w.speedtests++
	return nil
}

func (w *recordingWriter) WriteWeather(context.Context, *model.WeatherReading) error {
	w.weathers++
	return nil
}

// fakeClock advances only when the scheduler sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	ticks  int
	cancel context.CancelFunc
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if len(c.sleeps) >= c.ticks {
		c.cancel()
	}
	return ctx.Err()
}

var schedule = &config.ScheduleConfig{
	CollectInterval:   5 * time.Minute,
	SpeedtestInterval: time.Hour,
	WeatherInterval:   30 * time.Minute,
}

func TestRun_Intervals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ticks: 12, cancel: cancel}
	w := &recordingWriter{}

	var speedtests, weathers int
	s := New(schedule, w,
		&MockRouter{CollectFunc: func(context.Context) *model.RouterSnapshot { return &model.RouterSnapshot{} }},
		WithSpeedtest(&MockSpeedtest{CollectFunc: func(context.Context) *model.SpeedtestResult {
			speedtests++
			return &model.SpeedtestResult{}
		}}),
		WithWeather(&MockWeather{CollectFunc: func(context.Context) *model.WeatherReading {
			weathers++
			return &model.WeatherReading{}
		}}),
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithLogger(zap.NewNop()),
	)

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// 12 ticks of 5 minutes cover one hour.
	assert.Equal(t, 12, w.routers)
	assert.Equal(t, 1, speedtests)
	assert.Equal(t, 2, weathers)
	assert.Equal(t, 1, w.speedtests)
	assert.Equal(t, 2, w.weathers)
	for _, d := range clock.sleeps {
		assert.Equal(t, 5*time.Minute, d)
	}
}

func TestTick_FailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := &recordingWriter{routerErr: errors.New("store unreachable")}
	weathers := 0

	s := New(schedule, w,
		&MockRouter{CollectFunc: func(context.Context) *model.RouterSnapshot { return &model.RouterSnapshot{} }},
		WithSpeedtest(&MockSpeedtest{CollectFunc: func(context.Context) *model.SpeedtestResult { return nil }}),
		WithWeather(&MockWeather{CollectFunc: func(context.Context) *model.WeatherReading {
			weathers++
			return &model.WeatherReading{Location: "Berlin,DE"}
		}}),
		WithLogger(zap.New(core)),
	)
	s.Tick(context.Background())

	assert.Equal(t, 1, w.routers)
	assert.Equal(t, 0, w.speedtests, "no result is not persisted")
	assert.Equal(t, 1, weathers)
	assert.Equal(t, 1, w.weathers)

	failed := logs.FilterMessage("failed to persist router snapshot").All()
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].ContextMap()["cycle_id"])
	assert.Equal(t, 1, logs.FilterMessage("speedtest produced no result").Len())
}

func TestTick_DisabledCollectors(t *testing.T) {
	w := &recordingWriter{}
	s := New(schedule, w,
		&MockRouter{CollectFunc: func(context.Context) *model.RouterSnapshot { return nil }},
		WithLogger(zap.NewNop()),
	)
	s.Tick(context.Background())

	assert.Equal(t, 0, w.routers)
	assert.Equal(t, 0, w.speedtests)
	assert.Equal(t, 0, w.weathers)
}

func TestRun_OverrunTickDoesNotSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ticks: 1, cancel: cancel}
	s := New(schedule, &recordingWriter{},
		&MockRouter{CollectFunc: func(context.Context) *model.RouterSnapshot {
			clock.now = clock.now.Add(7 * time.Minute)
			return nil
		}},
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithLogger(zap.NewNop()),
	)

	_ = s.Run(ctx)
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Duration(0), clock.sleeps[0])
}
