package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
)

var ErrNotConnected = errors.New("not connected")

// Conn is a reconnecting client transport. Run dials the endpoint, feeds
// decoded server messages to the handler, and on transport loss retries with
// exponential backoff. Sends are fire-and-forget: while disconnected they
// fail fast and are not replayed.
type Conn struct {
	url       string
	onConnect func()
	bo        backoff.BackOff

	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn prepares a transport for the given ws:// url. onConnect fires after
// every successful (re)connect so the caller can re-issue its JOIN_SESSION;
// it may be nil.
func NewConn(url string, onConnect func()) *Conn {
	return &Conn{url: url, onConnect: onConnect}
}

// Run blocks until the context is cancelled, maintaining the connection.
func (c *Conn) Run(ctx context.Context, handle func(protocol.Message)) error {
	bo := c.bo
	if bo == nil {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = 0
		bo = eb
	}
	for {
		if err := c.connectAndRead(ctx, bo, handle); err != nil {
			slog.Error("connection lost", "err", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := bo.NextBackOff()
		slog.Info("reconnecting", "in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) connectAndRead(ctx context.Context, bo backoff.BackOff, handle func(protocol.Message)) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	// A successful dial ends the outage; the next one starts the backoff
	// schedule from scratch.
	bo.Reset()
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-done:
		}
	}()
	if c.onConnect != nil {
		c.onConnect()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("discarding malformed message", "err", err)
			continue
		}
		handle(msg)
	}
}

// Send encodes and writes an intent. At-most-once: an error means the intent
// is gone and the caller moves on.
func (c *Conn) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
