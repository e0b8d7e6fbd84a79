package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

const (
	weatherCollector = "weather"
	weatherTimeout   = 10 * time.Second
)

type Weather struct {
	cfg      *config.WeatherConfig
	client   *http.Client
	notifier notifier
	logger   *zap.Logger
}

func NewWeather(cfg *config.WeatherConfig, n notifier) *Weather {
	return &Weather{
		cfg:      cfg,
		client:   &http.Client{Timeout: weatherTimeout},
		notifier: n,
		logger:   zap.L(),
	}
}

type weatherResponse struct {
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
}

// Collect returns nil without an API key, on request failure and when a
// required field is missing from the response.
func (w *Weather) Collect(ctx context.Context) *model.WeatherReading {
	reading, err := w.fetch(ctx)
	switch {
	case errors.Is(err, config.ErrNotConfigured):
		w.logger.Debug("weather api key not set, skipping")
		observe(weatherCollector, resultEmpty)
		return nil
	case err != nil:
		w.logger.Error("unable to fetch weather", zap.String("location", w.cfg.Location), zap.Error(err))
		notify(w.notifier, fmt.Sprintf("unable to fetch weather: %v", err))
		observe(weatherCollector, resultFailed)
		return nil
	}
	w.logger.Info("weather fetched",
		zap.String("location", reading.Location),
		zap.Float64("temperature", reading.TemperatureCelsius),
		zap.Int("humidity", reading.HumidityPercent),
	)
	observe(weatherCollector, resultOK)
	return reading
}

func (w *Weather) fetch(ctx context.Context) (*model.WeatherReading, error) {
	if w.cfg.APIKey == "" {
		return nil, config.ErrNotConfigured
	}
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", w.cfg.Location)
	q.Set("appid", w.cfg.APIKey)
	q.Set("units", w.cfg.Units)
	q.Set("lang", w.cfg.Lang)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid weather response: %w", err)
	}
	return body.reading(w.cfg.Location)
}

func (r *weatherResponse) reading(location string) (*model.WeatherReading, error) {
	required := map[string]*float64{
		"main.temp":       r.Main.Temp,
		"main.feels_like": r.Main.FeelsLike,
		"main.humidity":   r.Main.Humidity,
		"main.pressure":   r.Main.Pressure,
		"wind.speed":      r.Wind.Speed,
		"clouds.all":      r.Clouds.All,
	}
	for name, v := range required {
		if v == nil {
			return nil, fmt.Errorf("missing field %s in weather response", name)
		}
	}

	out := &model.WeatherReading{
		Location:           location,
		TemperatureCelsius: *r.Main.Temp,
		FeelsLikeCelsius:   *r.Main.FeelsLike,
		HumidityPercent:    int(*r.Main.Humidity),
		PressureHpa:        int(*r.Main.Pressure),
		WindSpeed:          *r.Wind.Speed,
		CloudsPercent:      int(*r.Clouds.All),
	}
	if len(r.Weather) > 0 {
		out.Condition = nonEmpty(r.Weather[0].Main)
		out.Description = nonEmpty(r.Weather[0].Description)
	}
	return out, nil
}
