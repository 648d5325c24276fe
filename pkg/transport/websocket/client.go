package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/internal/ratelimit"
	"github.com/ajisai-dev/huesync/pkg/domain"
	"github.com/ajisai-dev/huesync/pkg/errors"
)

// Client wraps one live WebSocket connection: identifier, send queue,
// liveness flag, and the per-connection rate limiter.
type Client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan []byte
	limiter  *ratelimit.Limiter
	alive    atomic.Bool
	closed   atomic.Bool
	options  Options
	logger   *logging.Logger

	onFrame FrameHandler
	onStop  func(*Client)

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClient creates a client over an upgraded connection
func NewClient(id string, conn *websocket.Conn, logger *logging.Logger, options Options) *Client {
	c := &Client{
		id:       id,
		conn:     conn,
		sendChan: make(chan []byte, options.SendBuffer),
		limiter:  ratelimit.New(options.RateLimitMessages, options.RateLimitWindow),
		options:  options,
		logger:   logger.WithFields(map[string]any{"client_id": id}),
		done:     make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ID returns the unique connection identifier
func (c *Client) ID() string {
	return c.id
}

// Send queues a message for delivery. It never blocks; a full send buffer
// or a closed connection is an error.
func (c *Client) Send(message []byte) error {
	if c.closed.Load() {
		return domain.ErrConnectionClosed
	}

	select {
	case c.sendChan <- message:
		return nil
	default:
		return errors.New(errors.ErrorTypeTransport, "SEND_BUFFER_FULL", "send buffer is full")
	}
}

// MarkAlive records a heartbeat acknowledgment
func (c *Client) MarkAlive() {
	c.alive.Store(true)
}

// lowerAlive clears the liveness flag and reports its previous value
func (c *Client) lowerAlive() bool {
	return c.alive.Swap(false)
}

// Terminate drops the connection without a close handshake. Used for abuse
// and liveness failures, where no reply is owed.
func (c *Client) Terminate() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

// CloseWithCode performs a close handshake with the given status code
func (c *Client) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		deadline := time.Now().Add(c.options.WriteTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("close handshake failed", "error", err)
		}
		c.conn.Close()
	})
}

// start launches the read and write pumps
func (c *Client) start() {
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
}

// readPump reads frames, applies the size and rate gates, and hands the
// survivors to the frame handler. It owns connection teardown.
func (c *Client) readPump() {
	defer c.wg.Done()
	defer func() {
		c.Terminate()
		if c.onStop != nil {
			c.onStop(c)
		}
	}()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		// Oversize frames are dropped silently, not answered and not fatal
		if len(message) > c.options.MaxMessageBytes {
			c.logger.Debug("dropping oversize frame", "size", len(message))
			continue
		}

		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, terminating connection")
			return
		}

		if c.onFrame != nil {
			c.onFrame(c, message)
		}
	}
}

// writePump drains the send queue onto the connection
func (c *Client) writePump() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				c.Terminate()
				return
			}
		}
	}
}
