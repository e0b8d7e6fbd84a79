package sockets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T, subprotocol chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-transport-ws"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if subprotocol != nil {
			subprotocol <- conn.Subprotocol()
		}
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConn_DialSendReceive(t *testing.T) {
	proto := make(chan string, 1)
	srv := echoServer(t, proto)

	received := make(chan string, 1)
	c := New(
		WithSubprotocols("graphql-transport-ws"),
		OnMessage(func(b []byte, _ Connection) { received <- string(b) }),
	)
	require.NoError(t, c.Dial(context.Background(), wsURL(srv)))
	defer c.Close()

	assert.Equal(t, "graphql-transport-ws", <-proto)
	require.NoError(t, c.Send(Msg{Body: []byte(`{"type":"ping"}`)}))

	select {
	case got := <-received:
		assert.Equal(t, `{"type":"ping"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestConn_DialError(t *testing.T) {
	c := New()
	err := c.Dial(context.Background(), "ws://127.0.0.1:1/none")
	assert.Error(t, err)
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.Send(Msg{Body: []byte("x")}), ErrClosed)
}

func TestConn_ReadTimeoutReportsError(t *testing.T) {
	// server that never writes
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	errs := make(chan error, 1)
	c := New(WithReadTimeout(100*time.Millisecond), OnError(func(err error) { errs <- err }))
	require.NoError(t, c.Dial(context.Background(), wsURL(srv)))

	select {
	case err := <-errs:
		assert.Error(t, err)
		assert.True(t, c.IsClosed())
	case <-time.After(5 * time.Second):
		t.Fatal("read timeout not reported")
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	srv := echoServer(t, nil)
	errs := make(chan error, 1)
	c := New(OnError(func(err error) { errs <- err }))
	require.NoError(t, c.Dial(context.Background(), wsURL(srv)))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())

	select {
	case err := <-errs:
		t.Fatalf("explicit close reported an error: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
