package cmd

import (
	"context"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/tibber"
)

// MockStore is a mock implementation of the Store interface.
type MockStore struct {
	EnsureColumnsFunc func(ctx context.Context) error
	SeedPriceFunc     func(ctx context.Context, price float64, description string) (bool, error)
}

func (m *MockStore) EnsureColumns(ctx context.Context) error {
	if m.EnsureColumnsFunc != nil {
		return m.EnsureColumnsFunc(ctx)
	}
	return nil
}

func (m *MockStore) SeedPrice(ctx context.Context, price float64, description string) (bool, error) {
	if m.SeedPriceFunc != nil {
		return m.SeedPriceFunc(ctx, price, description)
	}
	return false, nil
}

// MockTask blocks until ctx is done unless RunFunc says otherwise.
type MockTask struct {
	RunFunc func(ctx context.Context) error
}

func (m *MockTask) Run(ctx context.Context) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

type MockHistory struct {
	CollectFunc func(ctx context.Context) *tibber.Home
}

func (m *MockHistory) Collect(ctx context.Context) *tibber.Home {
	return m.CollectFunc(ctx)
}

type MockHistoryWriter struct {
	WriteHistoryFunc func(ctx context.Context, records []model.ConsumptionRecord, price *model.ProviderPrice) (int, error)
}

func (m *MockHistoryWriter) WriteHistory(ctx context.Context, records []model.ConsumptionRecord, price *model.ProviderPrice) (int, error) {
	return m.WriteHistoryFunc(ctx, records, price)
}

// MockServer serves until Shutdown is called.
type MockServer struct {
	stop     chan struct{}
	shutdown bool
}

func newMockServer() *MockServer {
	return &MockServer{stop: make(chan struct{})}
}

func (m *MockServer) ListenAndServe() error {
	<-m.stop
	return nil
}

func (m *MockServer) Shutdown(context.Context) error {
	m.shutdown = true
	close(m.stop)
	return nil
}

type MockMQTT struct {
	ConnectFunc  func() error
	disconnected int
}

func (m *MockMQTT) Connect() error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return nil
}

func (m *MockMQTT) Disconnect() {
	m.disconnected++
}
