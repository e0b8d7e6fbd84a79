package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Dial(ctx context.Context, url string) error
	Send(msg Msg) error
	IsClosed() bool
	io.Closer
}

type Conn struct {
	mu            sync.Mutex
	ws            *websocket.Conn
	sslSkipVerify bool
	closed        bool
	pingInterval  time.Duration
	readTimeout   time.Duration
	subprotocols  []string
	header        http.Header
	onError       func(err error)
	onMessage     func([]byte, Connection)
	onConnected   func(Connection)
	pingMsg       []byte
	done          chan struct{}
}

func New(opts ...func(*Conn)) *Conn {
	c := &Conn{closed: true}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Msg is the message structure.
type Msg struct {
	Body []byte
}

// Closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Send(msg Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Body); err != nil {
		_ = c.closeLocked()
		if c.onError != nil {
			go c.onError(err)
		}
		return err
	}
	return nil
}

// Dial connects and starts the read loop. Messages are delivered to the
// OnMessage callback in arrival order; the first read error closes the
// connection and is passed to OnError.
func (c *Conn) Dial(ctx context.Context, url string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		Subprotocols:     c.subprotocols,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	conn, res, err := dialer.DialContext(ctx, url, c.header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = conn
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	if c.onConnected != nil {
		c.onConnected(c)
	}
	go c.readLoop(conn)
	c.setupPing()
	return nil
}

func (c *Conn) readLoop(conn *websocket.Conn) {
	for {
		if c.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			wasClosed := c.IsClosed()
			_ = c.Close()
			if c.onError != nil && !wasClosed {
				c.onError(err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg, c)
		}
	}
}

func (c *Conn) setupPing() {
	if c.pingInterval <= 0 || len(c.pingMsg) == 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	done := c.done
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if c.Send(Msg{Body: c.pingMsg}) != nil {
					return
				}
			}
		}
	}()
}
