package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

type service struct {
	client paho_mqtt.Client
	prefix string
}

func New(client paho_mqtt.Client, prefix string) *service {
	return &service{
		client: client,
		prefix: prefix,
	}
}

// NewClient builds a paho client for broker (host or host:port).
func NewClient(broker, username, password, clientID string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}

// StateTopic is <prefix>/<kind>/<key>/state with the key slugged.
func (s *service) StateTopic(kind model.Kind, key string) string {
	return fmt.Sprintf("%s/%s/%s/state", s.prefix, kind, slug.Make(key))
}

func (s *service) NotificationTopic() string {
	return s.prefix + "/notifications"
}

// Write publishes each observation retained on its state topic.
func (s *service) Write(ctx context.Context, data []model.Observation) error {
	for _, o := range data {
		payload, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if err := s.publish(ctx, s.StateTopic(o.Kind, o.Key), true, payload); err != nil {
			return err
		}
	}
	return nil
}

// Notify publishes a free text message to the notification topic.
func (s *service) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]any{
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, s.NotificationTopic(), false, payload)
}

func (s *service) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := s.client.Publish(topic, 0, retained, payload)
	wait := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}
