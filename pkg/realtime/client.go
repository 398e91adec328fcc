package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/platinummonkey/helios/pkg/async"
	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection
type Client struct {
	id   string
	conn *websocket.Conn
	auth *auth.AuthContext

	send      chan []byte
	tasks     chan Envelope
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Hub.mu
	rooms map[string]struct{}
}

// NewClient creates a client with a bounded send queue. conn and authCtx
// may be nil.
func NewClient(conn *websocket.Conn, authCtx *auth.AuthContext, queueSize int) *Client {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Client{
		id:    uuid.NewString(),
		conn:  conn,
		auth:  authCtx,
		send:  make(chan []byte, queueSize),
		tasks: make(chan Envelope, queueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

// ID returns the connection ID
func (c *Client) ID() string {
	return c.id
}

// Auth returns the identity resolved at connect time, or nil
func (c *Client) Auth() *auth.AuthContext {
	return c.auth
}

// Messages exposes queued frames; the write pump is the only other reader
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Done is closed once the client is unregistered
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

// schedule queues env for the task pump, blocking the reader while the
// queue is full
func (c *Client) schedule(env Envelope) {
	select {
	case c.tasks <- env:
	case <-c.done:
	}
}

// taskPump runs queued events one at a time in arrival order
func (c *Client) taskPump(ctx context.Context, logger *observability.Logger, timeout time.Duration, handle func(context.Context, *Client, Envelope) error) {
	for {
		select {
		case env := <-c.tasks:
			err := async.Run(ctx, timeout, func(ctx context.Context) error {
				return handle(ctx, c, env)
			})
			if err != nil {
				logger.WithError(err).WithFields(map[string]any{"client_id": c.id, "event": env.Event}).Debug("event failed")
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes frames and hands them to dispatch until the connection
// fails, then unregisters the client
func (c *Client) readPump(ctx context.Context, hub *Hub, logger *observability.Logger, dispatch func(context.Context, *Client, Envelope)) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()
	defer observability.RecoverPanic(logger, "websocket read pump")

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).WithField("client_id", c.id).Warn("websocket read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
			hub.Emit(c, EventError, ErrorPayload{Message: "Invalid message"})
			continue
		}
		dispatch(ctx, c, env)
	}
}

// writePump drains the send queue to the connection and keeps it alive
// with pings
func (c *Client) writePump(logger *observability.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	defer observability.RecoverPanic(logger, "websocket write pump")

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
