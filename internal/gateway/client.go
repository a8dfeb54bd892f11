package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Youssefbenarbiya/booki-relay/internal/relay"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	flushWaitLimit = 2 * time.Second
)

var (
	errClientClosed = errors.New("client closed")
	errSlowConsumer = errors.New("send buffer full")
)

// Client is one WebSocket connection. Run owns the read side; a write pump
// goroutine owns all socket writes.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	query  url.Values

	send    chan []byte
	flush   chan struct{}
	done    chan struct{}
	stopped chan struct{}

	flushOnce sync.Once
	closeOnce sync.Once
	session   atomic.Pointer[relay.Session]
}

// NewClient wraps an upgraded connection. query carries the connect
// parameters from the upgrade request.
func NewClient(conn *websocket.Conn, server *Server, query url.Values) *Client {
	buf := server.cfg.Gateway.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Client{
		id:      store.GenNewID().String(),
		conn:    conn,
		server:  server,
		query:   query,
		send:    make(chan []byte, buf),
		flush:   make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// SendEvent queues an event for the write pump. It never blocks: a full
// buffer marks the client as a slow consumer and closes it.
func (c *Client) SendEvent(event protocol.EventFrame) error {
	select {
	case <-c.done:
		return errClientClosed
	case <-c.flush:
		return errClientClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("gateway.slow_consumer", "conn", c.id, "event", event.Event)
		c.abort()
		return errSlowConsumer
	}
}

// Run handshakes and then reads frames until the socket fails or closes.
// Frames are handled one at a time, in order.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()

	hs := relay.HandshakeFromQuery(c.query)
	session, err := c.server.engine.Open(ctx, c.id, hs, c)
	if err != nil {
		// The error frame is already queued; let it reach the client.
		c.closeGracefully()
		return
	}
	c.session.Store(session)
	defer session.Close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("gateway.read_error", "conn", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.SendEvent(*protocol.NewError(protocol.ErrCodeUnknownEvent, "only text frames are accepted"))
			continue
		}
		session.HandleFrame(ctx, data)
	}
}

// drain lets the in-flight frame finish, closes the session and then the
// socket after queued frames are written.
func (c *Client) drain() {
	if s := c.session.Load(); s != nil {
		s.Drain()
	}
	c.closeGracefully()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				slog.Debug("gateway.write_failed", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.flush:
			for {
				select {
				case data := <-c.send:
					if err := c.write(websocket.TextMessage, data); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(msgType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

// Close flushes queued frames, sends a close frame and shuts the socket.
// It does not wait for the write pump. Idempotent.
func (c *Client) Close() error {
	c.flushOnce.Do(func() { close(c.flush) })
	return nil
}

// closeGracefully is Close that waits briefly for the flush, aborting the
// socket if the peer does not drain in time.
func (c *Client) closeGracefully() {
	c.Close()
	select {
	case <-c.stopped:
	case <-time.After(flushWaitLimit):
		c.abort()
	}
}

// abort tears the socket down immediately.
func (c *Client) abort() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
