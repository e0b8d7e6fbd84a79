// Package database is the Postgres store for all collected readings.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrPersistence wraps every failed store operation.
var ErrPersistence = errors.New("persistence error")

type Database struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool. Each write acquires its own connection from it.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Database {
	return &Database{
		pool:   pool,
		logger: zap.L(),
	}
}

func (db *Database) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *Database) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
