package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

// TTL of every last-value key.
const TTL = 24 * time.Hour

type setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Mirror keeps the latest observation of every source under
// collector:last:<kind>:<key>.
type Mirror struct {
	client setter
}

func New(client setter) *Mirror {
	return &Mirror{client: client}
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", addr, err)
	}
	return rdb, nil
}

func Key(kind model.Kind, key string) string {
	return fmt.Sprintf("collector:last:%s:%s", kind, key)
}

func (m *Mirror) Write(ctx context.Context, data []model.Observation) error {
	for _, o := range data {
		payload, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if err := m.client.Set(ctx, Key(o.Kind, o.Key), payload, TTL).Err(); err != nil {
			return fmt.Errorf("failed to update %s: %w", Key(o.Kind, o.Key), err)
		}
	}
	return nil
}
