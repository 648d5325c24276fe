package websocket

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/pkg/domain"
)

// Server upgrades HTTP requests into registered client connections
type Server struct {
	upgrader websocket.Upgrader
	config   serverConfig
}

// NewServer creates a new WebSocket server
func NewServer(opts ...ServerOption) *Server {
	config := serverConfig{
		options: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	if config.logger == nil {
		config.logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	checkOrigin := config.options.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.options.ReadBufferSize,
			WriteBufferSize: config.options.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		config: config,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.logger.Error("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	clientID := xid.New().String()
	client := NewClient(clientID, conn, s.config.logger, s.config.options)
	client.onFrame = s.config.onFrame
	client.onStop = s.handleStop

	if err := s.config.registry.Add(client); err != nil {
		if errors.Is(err, domain.ErrRegistryFull) {
			s.config.logger.Warn("rejecting connection at capacity",
				"remote_addr", r.RemoteAddr,
				"limit", s.config.options.MaxConnections,
			)
			client.CloseWithCode(websocket.CloseTryAgainLater, "server at capacity")
			return
		}
		s.config.logger.Error("failed to register client",
			"client_id", clientID,
			"error", err,
		)
		client.Terminate()
		return
	}

	if s.config.onConnect != nil {
		s.config.onConnect(client)
	}

	client.start()

	s.config.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
	)
}

// handleStop runs once per client when its read pump exits
func (s *Server) handleStop(client *Client) {
	s.config.registry.Remove(client.ID())

	if s.config.onClose != nil {
		s.config.onClose(client)
	}

	s.config.logger.Info("client disconnected", "client_id", client.ID())
}
