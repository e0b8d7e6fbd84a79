package collector

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/fritz-collector/internal/pkg/homeauto"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

type MockSession struct {
	ListServicesFunc func() []string
	ListActionsFunc  func(ctx context.Context, service string) ([]string, error)
	CallActionFunc   func(ctx context.Context, service, action string, params map[string]string) (map[string]string, error)
}

func (m *MockSession) ListServices() []string {
	if m.ListServicesFunc != nil {
		return m.ListServicesFunc()
	}
	return nil
}

func (m *MockSession) ListActions(ctx context.Context, service string) ([]string, error) {
	if m.ListActionsFunc != nil {
		return m.ListActionsFunc(ctx, service)
	}
	return nil, nil
}

func (m *MockSession) CallAction(ctx context.Context, service, action string, params map[string]string) (map[string]string, error) {
	return m.CallActionFunc(ctx, service, action, params)
}

type MockPlugReader struct {
	ReadFunc func(ctx context.Context, s homeauto.Session) []model.SmartPlugReading
}

func (m *MockPlugReader) Read(ctx context.Context, s homeauto.Session) []model.SmartPlugReading {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, s)
	}
	return nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) NotifyAll(message string) {
	n.messages = append(n.messages, message)
}

func useTestLogger(t *testing.T) {
	t.Helper()
	original := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() { zap.ReplaceGlobals(original) })
}
