package websocket

import (
	"net/http"
	"time"

	"github.com/ajisai-dev/huesync/internal/logging"
)

// Options represents connection handling options
type Options struct {
	MaxConnections    int
	MaxMessageBytes   int
	RateLimitMessages int
	RateLimitWindow   time.Duration
	WriteTimeout      time.Duration
	ReadBufferSize    int
	WriteBufferSize   int
	SendBuffer        int
	CheckOrigin       func(r *http.Request) bool
}

// DefaultOptions returns default connection options
func DefaultOptions() Options {
	return Options{
		MaxConnections:    200,
		MaxMessageBytes:   1000,
		RateLimitMessages: 200,
		RateLimitWindow:   time.Minute,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBuffer:        256,
	}
}

// FrameHandler consumes one inbound frame from a client
type FrameHandler func(client *Client, frame []byte)

// ConnectHandler observes a client joining the registry
type ConnectHandler func(client *Client)

// CloseHandler observes a client leaving the registry
type CloseHandler func(client *Client)

// ServerOption is a function that configures the server
type ServerOption func(*serverConfig)

type serverConfig struct {
	registry  *Registry
	logger    *logging.Logger
	options   Options
	onFrame   FrameHandler
	onConnect ConnectHandler
	onClose   CloseHandler
}

// WithRegistry sets the connection registry for the server
func WithRegistry(registry *Registry) ServerOption {
	return func(c *serverConfig) {
		c.registry = registry
	}
}

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// WithOptions sets the connection options
func WithOptions(options Options) ServerOption {
	return func(c *serverConfig) {
		c.options = options
	}
}

// WithFrameHandler sets the inbound frame handler
func WithFrameHandler(handler FrameHandler) ServerOption {
	return func(c *serverConfig) {
		c.onFrame = handler
	}
}

// WithConnectHandler sets the connect observer
func WithConnectHandler(handler ConnectHandler) ServerOption {
	return func(c *serverConfig) {
		c.onConnect = handler
	}
}

// WithCloseHandler sets the disconnect observer
func WithCloseHandler(handler CloseHandler) ServerOption {
	return func(c *serverConfig) {
		c.onClose = handler
	}
}
