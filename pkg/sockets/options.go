package sockets

import (
	"net/http"
	"time"
)

func WithPingInterval(d time.Duration) func(*Conn) {
	return func(s *Conn) {
		s.pingInterval = d
	}
}

func WithPingMsg(msg []byte) func(*Conn) {
	return func(s *Conn) {
		s.pingMsg = msg
	}
}

// WithReadTimeout closes the connection when no message arrives within d.
func WithReadTimeout(d time.Duration) func(*Conn) {
	return func(s *Conn) {
		s.readTimeout = d
	}
}

func WithSubprotocols(p ...string) func(*Conn) {
	return func(s *Conn) {
		s.subprotocols = p
	}
}

func WithHeader(h http.Header) func(*Conn) {
	return func(s *Conn) {
		s.header = h
	}
}

func InsecureSkipVerify() func(*Conn) {
	return func(s *Conn) {
		s.sslSkipVerify = true
	}
}

func OnMessage(f func([]byte, Connection)) func(*Conn) {
	return func(s *Conn) {
		s.onMessage = f
	}
}

func OnError(f func(error)) func(*Conn) {
	return func(s *Conn) {
		s.onError = f
	}
}

func OnConnected(f func(Connection)) func(*Conn) {
	return func(s *Conn) {
		s.onConnected = f
	}
}
