package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrNotConfigured is returned by components whose required configuration
// (an API key, a token) is absent. It short-circuits to "no data".
var ErrNotConfigured = errors.New("not configured")

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile  string `env:"LOG_FILE" envDefault:"/config/fritzbox_collector.log"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`

	// DeviceAllowList restricts smart-plug readings to these AINs. Empty
	// keeps every device.
	DeviceAllowList []string `env:"DECT_AINS" envSeparator:","`
	PricePerKwh     float64  `env:"ELECTRICITY_PRICE_EUR_PER_KWH" envDefault:"0.30"`

	FritzCfg    *FritzConfig    `env:",init" envPrefix:"FRITZBOX_"`
	DatabaseCfg *DatabaseConfig `env:",init"`
	ScheduleCfg *ScheduleConfig `env:",init"`
	WeatherCfg  *WeatherConfig  `env:",init" envPrefix:"WEATHER_"`
	TibberCfg   *TibberConfig   `env:",init" envPrefix:"TIBBER_"`
	NotifyCfg   *NotifyConfig   `env:",init"`
	MqttCfg     *MqttConfig     `env:",init" envPrefix:"MQTT_"`
	RedisCfg    *RedisConfig    `env:",init" envPrefix:"REDIS_"`
}

type FritzConfig struct {
	Host     string `env:"HOST" envDefault:"192.168.178.1"`
	Port     int    `env:"PORT" envDefault:"49000"`
	Username string `env:"USER"`
	Password string `env:"PASSWORD"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"SQL_HOST" envDefault:"localhost"`
	Port     int    `env:"SQL_PORT" envDefault:"5432"`
	User     string `env:"SQL_USER"`
	Password string `env:"SQL_PASSWORD"`
	Name     string `env:"SQL_DB"`
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL built from the
// SQL_* parts.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	u.RawQuery = "sslmode=disable"
	return u.String()
}

type ScheduleConfig struct {
	CollectInterval   time.Duration `env:"COLLECT_INTERVAL" envDefault:"300"`
	SpeedtestInterval time.Duration `env:"SPEEDTEST_INTERVAL" envDefault:"3600"`
	SpeedtestEnabled  bool          `env:"SPEEDTEST_ENABLED" envDefault:"true"`
	WeatherInterval   time.Duration `env:"WEATHER_INTERVAL" envDefault:"1800"`
}

type WeatherConfig struct {
	APIKey   string `env:"API_KEY"`
	Location string `env:"LOCATION" envDefault:"Berlin,DE"`
	URL      string `env:"API_URL" envDefault:"https://api.openweathermap.org/data/2.5/weather"`
	Units    string `env:"UNITS" envDefault:"metric"`
	Lang     string `env:"LANG" envDefault:"de"`
}

type TibberConfig struct {
	Token        string        `env:"API_TOKEN"`
	URL          string        `env:"API_URL" envDefault:"https://api.tibber.com/v1-beta/gql"`
	Interval     time.Duration `env:"INTERVAL" envDefault:"300"`
	HistoryHours int           `env:"HISTORY_HOURS" envDefault:"24"`
	LiveEnabled  bool          `env:"LIVE_ENABLED" envDefault:"false"`
}

type NotifyConfig struct {
	DiscordWebhook string `env:"DISCORD_WEBHOOK"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHATID"`
}

type MqttConfig struct {
	Host        string `env:"HOST"`
	Username    string `env:"USER"`
	Password    string `env:"PASS"`
	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"fritz-collector"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseInterval,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.DeviceAllowList = cleanList(cfg.DeviceAllowList)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ScheduleCfg.CollectInterval <= 0 {
		return errors.New("COLLECT_INTERVAL must be positive")
	}
	if c.TibberCfg.HistoryHours <= 0 {
		return errors.New("TIBBER_HISTORY_HOURS must be positive")
	}
	if c.DatabaseCfg.URL == "" && c.DatabaseCfg.Name == "" {
		return errors.New("either DATABASE_URL or SQL_DB must be set")
	}
	return nil
}

// parseInterval accepts plain seconds ("300") as well as Go durations ("5m").
func parseInterval(v string) (any, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	return d, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
