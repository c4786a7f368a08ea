package registry

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
)

// conn pairs a websocket with its buffered outbound queue. Reads feed the
// registry inbox; writes drain in a dedicated goroutine so a slow client
// never blocks the apply loop.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

const sendBuffer = 64

// ServeWS upgrades the request and runs the connection's read loop until the
// peer goes away.
func (r *Registry) ServeWS(writer http.ResponseWriter, request *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	ws, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	c := &conn{ws: ws, send: make(chan []byte, sendBuffer)}
	go c.writePump()
	r.inbox <- command{kind: cmdAttach, c: c}
	c.readPump(r)
}

func (c *conn) readPump(r *Registry) {
	defer func() {
		r.inbox <- command{kind: cmdDetach, c: c}
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("discarding malformed message", "err", err)
			continue
		}
		if !protocol.IsIntent(msg) {
			slog.Warn("discarding non-intent message", "type", msg.Kind())
			continue
		}
		r.inbox <- command{kind: cmdIntent, c: c, msg: msg}
	}
}

func (c *conn) writePump() {
	for data := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	_ = c.ws.Close()
}

// trySend queues a message without blocking. Delivery is at-most-once: when
// the peer's buffer is full the message is dropped.
func (c *conn) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("outbound buffer full, dropping message")
	}
}
