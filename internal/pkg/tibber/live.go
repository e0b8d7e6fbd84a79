package tibber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
	"github.com/anicoll/fritz-collector/pkg/sockets"
)

const (
	subprotocol = "graphql-transport-ws"
	readTimeout = 90 * time.Second
	ackTimeout  = 10 * time.Second
	subscribeID = "1"
)

// LivePolicy reconnects forever, 1s doubling up to 5m.
var LivePolicy = retry.Policy{MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: 5 * time.Minute}

// errSessionEnded marks a session that streamed data before dropping. The
// reconnect then waits the first backoff delay instead of the grown one.
var errSessionEnded = errors.New("live session ended")

const liveQuery = `subscription($homeId: ID!) {
  liveMeasurement(homeId: $homeId) {
    timestamp power powerProduction minPower averagePower maxPower
    accumulatedConsumption accumulatedCost currency
    voltagePhase1 voltagePhase2 voltagePhase3 currentL1 currentL2 currentL3
  }
}`

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type nextPayload struct {
	Data struct {
		LiveMeasurement *liveNode `json:"liveMeasurement"`
	} `json:"data"`
}

type liveNode struct {
	Timestamp              time.Time `json:"timestamp"`
	Power                  float64   `json:"power"`
	PowerProduction        *float64  `json:"powerProduction"`
	MinPower               *float64  `json:"minPower"`
	AveragePower           *float64  `json:"averagePower"`
	MaxPower               *float64  `json:"maxPower"`
	AccumulatedConsumption *float64  `json:"accumulatedConsumption"`
	AccumulatedCost        *float64  `json:"accumulatedCost"`
	Currency               *string   `json:"currency"`
	VoltagePhase1          *float64  `json:"voltagePhase1"`
	VoltagePhase2          *float64  `json:"voltagePhase2"`
	VoltagePhase3          *float64  `json:"voltagePhase3"`
	CurrentL1              *float64  `json:"currentL1"`
	CurrentL2              *float64  `json:"currentL2"`
	CurrentL3              *float64  `json:"currentL3"`
}

func (n *liveNode) measurement() model.LiveMeasurement {
	return model.LiveMeasurement{
		Timestamp:              n.Timestamp,
		Power:                  n.Power,
		PowerProduction:        n.PowerProduction,
		MinPower:               n.MinPower,
		AveragePower:           n.AveragePower,
		MaxPower:               n.MaxPower,
		AccumulatedConsumption: n.AccumulatedConsumption,
		AccumulatedCost:        n.AccumulatedCost,
		Currency:               n.Currency,
		VoltagePhase1:          n.VoltagePhase1,
		VoltagePhase2:          n.VoltagePhase2,
		VoltagePhase3:          n.VoltagePhase3,
		CurrentL1:              n.CurrentL1,
		CurrentL2:              n.CurrentL2,
		CurrentL3:              n.CurrentL3,
	}
}

// MeasurementHandler receives every live measurement in arrival order.
type MeasurementHandler func(ctx context.Context, m model.LiveMeasurement)

type LiveSubscriber struct {
	client  *Client
	retry   *retry.Executor
	handle  MeasurementHandler
	logger  *zap.Logger
	newConn func(opts ...func(*sockets.Conn)) sockets.Connection
}

func NewLiveSubscriber(client *Client, executor *retry.Executor, handle MeasurementHandler) *LiveSubscriber {
	return &LiveSubscriber{
		client: client,
		retry:  executor,
		handle: handle,
		logger: zap.L(),
		newConn: func(opts ...func(*sockets.Conn)) sockets.Connection {
			return sockets.New(opts...)
		},
	}
}

// Run streams live measurements until ctx is done. It returns nil without
// a token or when the home has no realtime device.
func (l *LiveSubscriber) Run(ctx context.Context) error {
	if !l.client.Configured() {
		l.logger.Info("tibber token not set, live subscription disabled")
		return nil
	}
	home, err := retry.Value(ctx, l.retry, func(ctx context.Context) (*Home, error) {
		return l.client.Home(ctx, 1)
	})
	if err != nil {
		return ignoreCanceled(err)
	}
	if !home.RealTimeEnabled || home.WebsocketURL == "" {
		l.logger.Info("realtime consumption not enabled for home, live subscription disabled", zap.String("home_id", home.ID))
		return nil
	}

	for {
		err := l.retry.Do(ctx, func(ctx context.Context) error {
			err := l.session(ctx, home)
			if errors.Is(err, errSessionEnded) {
				return nil
			}
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.LiveReconnects.Inc()
		l.logger.Info("live session ended, reconnecting", zap.String("home_id", home.ID))
		// backoff restarts at the first delay, it is still waited for
		if err := l.retry.Wait(ctx, 0); err != nil {
			return nil
		}
	}
}

// session runs one websocket connection. It returns errSessionEnded if at
// least one measurement arrived, otherwise the failure.
func (l *LiveSubscriber) session(ctx context.Context, home *Home) error {
	msgs := make(chan []byte, 64)
	errs := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	conn := l.newConn(
		sockets.WithSubprotocols(subprotocol),
		sockets.WithReadTimeout(readTimeout),
		sockets.WithHeader(header),
		sockets.OnMessage(func(b []byte, _ sockets.Connection) {
			select {
			case msgs <- b:
			case <-stop:
			}
		}),
		sockets.OnError(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	if err := conn.Dial(ctx, home.WebsocketURL); err != nil {
		return fmt.Errorf("dial live endpoint: %w", err)
	}
	defer conn.Close()

	if err := l.send(conn, wsMessage{Type: "connection_init", Payload: mustJSON(map[string]string{"token": l.client.cfg.Token})}); err != nil {
		return err
	}
	if err := l.awaitAck(ctx, msgs, errs); err != nil {
		return err
	}
	sub := map[string]any{"query": liveQuery, "variables": map[string]string{"homeId": home.ID}}
	if err := l.send(conn, wsMessage{ID: subscribeID, Type: "subscribe", Payload: mustJSON(sub)}); err != nil {
		return err
	}
	l.logger.Info("live subscription started", zap.String("home_id", home.ID))

	received := 0
	ended := func(err error) error {
		if received > 0 {
			l.logger.Warn("live session dropped", zap.Int("received", received), zap.Error(err))
			return errSessionEnded
		}
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return ended(fmt.Errorf("live connection: %w", err))
		case raw := <-msgs:
			var msg wsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				l.logger.Warn("invalid live message", zap.ByteString("message", raw), zap.Error(err))
				continue
			}
			switch msg.Type {
			case "next":
				var p nextPayload
				if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Data.LiveMeasurement == nil {
					l.logger.Warn("unexpected live payload", zap.ByteString("payload", msg.Payload), zap.Error(err))
					continue
				}
				received++
				l.handle(ctx, p.Data.LiveMeasurement.measurement())
			case "error":
				return ended(fmt.Errorf("subscription error: %s", string(msg.Payload)))
			case "complete":
				return ended(errors.New("subscription completed by server"))
			case "ping":
				if err := l.send(conn, wsMessage{Type: "pong"}); err != nil {
					return ended(err)
				}
			case "pong", "ka":
			default:
				l.logger.Debug("ignoring live message", zap.String("type", msg.Type))
			}
		}
	}
}

func (l *LiveSubscriber) awaitAck(ctx context.Context, msgs <-chan []byte, errs <-chan error) error {
	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("no connection_ack received")
		case err := <-errs:
			return fmt.Errorf("live connection: %w", err)
		case raw := <-msgs:
			var msg wsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "connection_ack":
				return nil
			case "connection_error", "error":
				return fmt.Errorf("connection rejected: %s", string(msg.Payload))
			}
		}
	}
}

func (l *LiveSubscriber) send(conn sockets.Connection, msg wsMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Send(sockets.Msg{Body: b})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
