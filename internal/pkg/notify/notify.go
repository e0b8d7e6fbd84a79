// Package notify delivers free text alerts to the configured channels.
// Delivery is best effort: failures are logged and never returned upstream.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type target struct {
	name     string
	notifier Notifier
}

// Multi fans a message out to every registered notifier.
type Multi struct {
	targets []target
	logger  *zap.Logger
}

func NewMulti() *Multi {
	return &Multi{logger: zap.L()}
}

func (m *Multi) Add(name string, n Notifier) {
	m.targets = append(m.targets, target{name: name, notifier: n})
}

func (m *Multi) Len() int {
	return len(m.targets)
}

// NotifyAll sends message to every target, each bounded by its own timeout.
func (m *Multi) NotifyAll(message string) {
	for _, t := range m.targets {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := t.notifier.Notify(ctx, message); err != nil {
			m.logger.Warn("failed to send notification", zap.String("notifier", t.name), zap.Error(err))
		}
		cancel()
	}
}

type Discord struct {
	webhookURL string
	client     *http.Client
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{webhookURL: webhookURL, client: &http.Client{Timeout: sendTimeout}}
}

func (d *Discord) Notify(ctx context.Context, message string) error {
	return postJSON(ctx, d.client, d.webhookURL, map[string]string{"content": message})
}

type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, url.PathEscape(t.token))
	return postJSON(ctx, t.client, endpoint, map[string]string{"chat_id": t.chatID, "text": message})
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
