package websocket

import (
	"sync"
	"time"

	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/internal/scheduler"
	"github.com/ajisai-dev/huesync/pkg/domain"
)

// Registry owns every live connection. It enforces the concurrent
// connection ceiling and runs the liveness sweep.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	max     int
	logger  *logging.Logger
}

// NewRegistry creates a registry with the given connection ceiling
func NewRegistry(maxConnections int, logger *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		max:     maxConnections,
		logger:  logger,
	}
}

// Add registers a client, failing once the ceiling is reached
func (r *Registry) Add(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.max {
		return domain.ErrRegistryFull
	}

	r.clients[client.ID()] = client
	r.logger.Info("client registered",
		"client_id", client.ID(),
		"total_clients", len(r.clients),
	)
	return nil
}

// Remove drops a client from the registry
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; ok {
		delete(r.clients, clientID)
		r.logger.Info("client unregistered",
			"client_id", clientID,
			"total_clients", len(r.clients),
		)
	}
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Each calls fn for every live client
func (r *Registry) Each(fn func(*Client)) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		fn(client)
	}
}

// StartHeartbeat begins the liveness sweep: every interval, clients that
// never acknowledged the previous ping are terminated, everyone else has
// their flag lowered and receives a fresh ping. Returns a stop function.
func (r *Registry) StartHeartbeat(sched *scheduler.Scheduler, interval time.Duration) func() {
	return sched.Every(interval, r.sweep)
}

func (r *Registry) sweep() {
	ping, err := domain.EncodePing()
	if err != nil {
		r.logger.Error("failed to encode ping", "error", err)
		return
	}

	r.Each(func(client *Client) {
		if !client.lowerAlive() {
			r.logger.Info("terminating unresponsive client", "client_id", client.ID())
			client.Terminate()
			return
		}

		if err := client.Send(ping); err != nil {
			r.logger.Debug("failed to ping client",
				"client_id", client.ID(),
				"error", err,
			)
		}
	})
}
