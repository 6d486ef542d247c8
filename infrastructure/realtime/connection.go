package realtime

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize caps inbound frames, media travels through the upload routes.
	maxFrameSize = 64 << 10
)

var _ contract.EventSink = (*Connection)(nil)

// Connection is the live connection handle of one websocket session.
// Outbound frames go through a bounded buffer drained by a single writer;
// when a client is too slow to drain it the connection is closed, which
// never blocks the other recipients of a fan-out.
type Connection struct {
	id     string
	userID string
	log    *slog.Logger

	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewConnection(log *slog.Logger, userID string, ws *websocket.Conn, bufferSize int) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		log:    log,
		ws:     ws,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Consume enqueues the event as an outbound frame.
func (c *Connection) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(outboundFrame{Event: e.Kind(), Data: e})
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

func (c *Connection) reply(r replyFrame) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

func (c *Connection) enqueue(payload []byte) error {
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("Send buffer full, closing connection", "user_id", c.userID, "connection_id", c.id)
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.ErrSendBufferFull
	}
}

// Close terminates the connection. Later calls do nothing.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// Done is closed once the connection is.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "connection_id", c.id, "error", err)
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
