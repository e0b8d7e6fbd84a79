package homeauto

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/fritz-collector/internal/pkg/fritz"
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
	return []string{"DeviceInfo1", "X_AVM-DE_Homeauto1"}
}

func (m *MockSession) ListActions(ctx context.Context, service string) ([]string, error) {
	if m.ListActionsFunc != nil {
		return m.ListActionsFunc(ctx, service)
	}
	return []string{actionGenericInfos, actionSpecificInfos}, nil
}

func (m *MockSession) CallAction(ctx context.Context, service, action string, params map[string]string) (map[string]string, error) {
	return m.CallActionFunc(ctx, service, action, params)
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) NotifyAll(message string) {
	n.messages = append(n.messages, message)
}

func newTestReader(t *testing.T, allowList []string, n notifier) *Reader {
	t.Helper()
	original := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() { zap.ReplaceGlobals(original) })
	return New(allowList, n)
}

var endOfRange = &fritz.ActionError{Service: "X_AVM-DE_Homeauto1", Action: actionGenericInfos, Code: fritz.CodeArrayIndexInvalid}

func TestEnumerate_StopsAtEndOfRange(t *testing.T) {
	var indices []int
	s := &MockSession{CallActionFunc: func(_ context.Context, _, action string, params map[string]string) (map[string]string, error) {
		require.Equal(t, actionGenericInfos, action)
		i, err := strconv.Atoi(params["NewIndex"])
		require.NoError(t, err)
		indices = append(indices, i)
		if i >= 5 {
			return nil, endOfRange
		}
		ain := "0876100004" + strconv.Itoa(i)
		if i == 2 {
			ain = "   " // placeholder device
		}
		return map[string]string{fieldAIN: ain, fieldSwitchState: "ON"}, nil
	}}

	r := newTestReader(t, nil, nil)
	readings := r.Read(context.Background(), s)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indices, "index 6 must not be requested")
	assert.Len(t, readings, 4)
	for _, rd := range readings {
		assert.NotEmpty(t, rd.DeviceID)
	}
}

func TestEnumerate_OtherErrorKeepsPartialResult(t *testing.T) {
	n := &recordingNotifier{}
	s := &MockSession{CallActionFunc: func(_ context.Context, _, _ string, params map[string]string) (map[string]string, error) {
		if params["NewIndex"] == "2" {
			return nil, fritz.ErrConnect
		}
		return map[string]string{fieldAIN: "ain" + params["NewIndex"]}, nil
	}}

	r := newTestReader(t, nil, n)
	raws := r.Enumerate(context.Background(), s, "X_AVM-DE_Homeauto1")

	assert.Len(t, raws, 2)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "index 2")
}

func TestEnumerate_SafetyCap(t *testing.T) {
	calls := 0
	s := &MockSession{CallActionFunc: func(context.Context, string, string, map[string]string) (map[string]string, error) {
		calls++
		return map[string]string{fieldAIN: "x"}, nil
	}}

	r := newTestReader(t, nil, nil)
	raws := r.Enumerate(context.Background(), s, "X_AVM-DE_Homeauto1")
	assert.Len(t, raws, MaxDevices)
	assert.Equal(t, MaxDevices, calls)
}

func TestRead_NoHomeautoService(t *testing.T) {
	s := &MockSession{
		ListServicesFunc: func() []string { return []string{"DeviceInfo1", "Hosts1"} },
		CallActionFunc: func(context.Context, string, string, map[string]string) (map[string]string, error) {
			t.Fatal("no action expected")
			return nil, nil
		},
	}
	r := newTestReader(t, []string{"111"}, nil)
	assert.Empty(t, r.Read(context.Background(), s))
}

func TestRead_AllowList(t *testing.T) {
	devices := []string{"111 ", " 222", "333"}
	s := &MockSession{CallActionFunc: func(_ context.Context, _, _ string, params map[string]string) (map[string]string, error) {
		i, _ := strconv.Atoi(params["NewIndex"])
		if i >= len(devices) {
			return nil, endOfRange
		}
		return map[string]string{fieldAIN: devices[i]}, nil
	}}

	r := newTestReader(t, []string{"111", "222"}, nil)
	readings := r.Read(context.Background(), s)

	ids := lo.Map(readings, func(rd model.SmartPlugReading, _ int) string { return rd.DeviceID })
	assert.Equal(t, []string{"111", "222"}, ids)
}

func TestFilterAllowList_InternalWhitespace(t *testing.T) {
	readings := []model.SmartPlugReading{{DeviceID: "11657 0240192"}, {DeviceID: "087610000434"}}

	assert.Len(t, FilterAllowList(readings, nil), 2)

	got := FilterAllowList(readings, []string{"116570240192"})
	require.Len(t, got, 1)
	assert.Equal(t, "11657 0240192", got[0].DeviceID)

	got = FilterAllowList(readings, []string{"0876 1000 0434"})
	require.Len(t, got, 1)
	assert.Equal(t, "087610000434", got[0].DeviceID)
}

func TestRead_FixedFallbackTargetedActions(t *testing.T) {
	s := &MockSession{
		ListActionsFunc: func(context.Context, string) ([]string, error) {
			return []string{"GetSwitchState", "GetTemperature", "GetPower", actionSpecificInfos}, nil
		},
		CallActionFunc: func(_ context.Context, _, action string, params map[string]string) (map[string]string, error) {
			assert.Equal(t, "111", params[fieldAIN])
			switch action {
			case "GetSwitchState":
				return map[string]string{fieldSwitchState: "OFF"}, nil
			case "GetTemperature":
				return map[string]string{fieldTemperature: "215"}, nil
			case "GetPower":
				return map[string]string{fieldPower: "4200"}, nil
			}
			t.Fatalf("unexpected action %s", action)
			return nil, nil
		},
	}

	r := newTestReader(t, []string{" 111"}, nil)
	readings := r.Read(context.Background(), s)

	require.Len(t, readings, 1)
	rd := readings[0]
	assert.Equal(t, "111", rd.DeviceID)
	assert.Equal(t, model.False, rd.SwitchState)
	assert.Equal(t, int64(215), *rd.TemperatureTenthsCelsius)
	assert.Equal(t, int64(4200), *rd.PowerMilliwatts)
}

func TestRead_FixedFallbackSpecificInfos(t *testing.T) {
	n := &recordingNotifier{}
	s := &MockSession{
		ListActionsFunc: func(context.Context, string) ([]string, error) {
			return []string{actionSpecificInfos}, nil
		},
		CallActionFunc: func(_ context.Context, _, action string, params map[string]string) (map[string]string, error) {
			require.Equal(t, actionSpecificInfos, action)
			if params[fieldAIN] == "222" {
				return nil, errors.New("boom")
			}
			return map[string]string{fieldSwitchState: "ON", fieldSwitchPower: "1000"}, nil
		},
	}

	r := newTestReader(t, []string{"111", "222"}, n)
	readings := r.Read(context.Background(), s)

	require.Len(t, readings, 2)
	assert.Equal(t, model.True, readings[0].SwitchState)
	assert.Equal(t, int64(1000), *readings[0].PowerMilliwatts)
	assert.Equal(t, "222", readings[1].DeviceID)
	assert.Equal(t, model.Unknown, readings[1].SwitchState)
	assert.Nil(t, readings[1].PowerMilliwatts)
	assert.Len(t, n.messages, 1)
}

func TestRead_NoEnumerationNoAllowList(t *testing.T) {
	s := &MockSession{
		ListActionsFunc: func(context.Context, string) ([]string, error) { return []string{actionSpecificInfos}, nil },
	}
	r := newTestReader(t, nil, nil)
	assert.Nil(t, r.Read(context.Background(), s))
}
