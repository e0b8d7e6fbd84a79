package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

type setCall struct {
	key   string
	value any
	ttl   time.Duration
}

type fakeRedis struct {
	calls []setCall
	err   error
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.calls = append(f.calls, setCall{key: key, value: value, ttl: expiration})
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("OK", nil)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "collector:last:smart_plug:11657 0240192", Key(model.KindSmartPlug, "11657 0240192"))
}

func TestWrite(t *testing.T) {
	f := &fakeRedis{}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	err := New(f).Write(context.Background(), []model.Observation{
		{Kind: model.KindWeather, Key: "Berlin,DE", Value: map[string]float64{"temperature_celsius": 12.5}, At: at},
		{Kind: model.KindRouterStatus, Key: "router", Value: "ok", At: at},
	})
	require.NoError(t, err)
	require.Len(t, f.calls, 2)

	assert.Equal(t, "collector:last:weather:Berlin,DE", f.calls[0].key)
	assert.Equal(t, TTL, f.calls[0].ttl)

	var got map[string]any
	require.NoError(t, json.Unmarshal(f.calls[0].value.([]byte), &got))
	assert.Equal(t, "weather", got["kind"])
	assert.Equal(t, 12.5, got["value"].(map[string]any)["temperature_celsius"])
}

func TestWrite_StopsOnError(t *testing.T) {
	f := &fakeRedis{err: errors.New("READONLY")}

	err := New(f).Write(context.Background(), []model.Observation{
		{Kind: model.KindSpeedtest, Key: "speedtest"},
		{Kind: model.KindWeather, Key: "Berlin,DE"},
	})
	assert.ErrorContains(t, err, "collector:last:speedtest:speedtest")
	assert.Len(t, f.calls, 1)
}
