package cmd

import (
	"context"
	"time"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/tibber"
)

// Store is the schema setup run() needs before any task starts.
type Store interface {
	EnsureColumns(ctx context.Context) error
	SeedPrice(ctx context.Context, price float64, description string) (bool, error)
}

// Task is a long running loop: the scheduler or the live subscription.
type Task interface {
	Run(ctx context.Context) error
}

// HistoryCollector pulls the energy provider's recent history.
type HistoryCollector interface {
	Collect(ctx context.Context) *tibber.Home
}

type HistoryWriter interface {
	WriteHistory(ctx context.Context, records []model.ConsumptionRecord, price *model.ProviderPrice) (int, error)
}

// Server is the optional health and metrics endpoint.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// services are the components run() drives. Optional ones are nil when
// disabled.
type services struct {
	store         Store
	scheduler     Task
	history       HistoryCollector
	historyWriter HistoryWriter
	historyEvery  time.Duration
	live          Task
	server        Server
}
