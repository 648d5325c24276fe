package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ajisai-dev/huesync/internal/config"
	"github.com/ajisai-dev/huesync/internal/eventbus"
	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/internal/scheduler"
	apperrors "github.com/ajisai-dev/huesync/pkg/errors"
	"github.com/ajisai-dev/huesync/pkg/preference"
	"github.com/ajisai-dev/huesync/pkg/presence"
	"github.com/ajisai-dev/huesync/pkg/transport/websocket"
)

var configPath = flag.String("config", "", "path to config file (yaml or json)")

func main() {
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	errHandler := apperrors.NewDefaultHandler(logger.Logger)

	store, err := openStore(cfg.Preferences)
	if err != nil {
		errHandler.Handle(context.Background(), err)
		os.Exit(1)
	}
	defer store.Close()
	cache := preference.NewCache(store, logger)

	bus := eventbus.NewInMemoryBus(256)
	bus.Start()
	defer bus.Stop()
	bus.SubscribeAll(func(event *eventbus.Event) {
		logger.Debug("event", "type", event.Type, "source", event.Source, "data", event.Data)
	})

	sched := scheduler.New()
	defer sched.Stop()

	manager := presence.NewManager(cache, bus, sched, logger, presence.Options{
		DebounceDelay:        cfg.Presence.DebounceDelay,
		MinBroadcastInterval: cfg.Presence.MinBroadcastInterval,
		SweepInterval:        cfg.Presence.SweepInterval,
		RepushDelay:          cfg.Presence.RepushDelay,
	})
	manager.Start()
	defer manager.Stop()

	registry := websocket.NewRegistry(cfg.Limits.MaxConnections, logger)
	stopHeartbeat := registry.StartHeartbeat(sched, cfg.Presence.HeartbeatInterval)
	defer stopHeartbeat()

	wsOptions := websocket.DefaultOptions()
	wsOptions.MaxConnections = cfg.Limits.MaxConnections
	wsOptions.MaxMessageBytes = cfg.Limits.MaxMessageBytes
	wsOptions.RateLimitMessages = cfg.Limits.RateLimitMessages
	wsOptions.RateLimitWindow = cfg.Limits.RateLimitWindow

	wsServer := websocket.NewServer(
		websocket.WithRegistry(registry),
		websocket.WithLogger(logger),
		websocket.WithOptions(wsOptions),
		websocket.WithFrameHandler(func(client *websocket.Client, frame []byte) {
			manager.HandleFrame(client, frame)
		}),
		websocket.WithConnectHandler(func(client *websocket.Client) {
			manager.HandleConnect(client)
		}),
		websocket.WithCloseHandler(func(client *websocket.Client) {
			manager.HandleClose(client)
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logging.WithLogger(req.Context(), logger)))
		})
	})
	r.Handle("/ws", wsServer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(struct {
			presence.Stats
			Connections int `json:"connections"`
		}{
			Stats:       manager.Stats(),
			Connections: registry.Count(),
		})
		if err != nil {
			logging.FromContext(req.Context()).Error("failed to encode stats", "error", err)
		}
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server listening",
		"addr", addr,
		"max_connections", cfg.Limits.MaxConnections,
		"preferences_backend", cfg.Preferences.Backend,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

// openStore builds the preference store named by the configuration
func openStore(cfg config.PreferencesConfig) (preference.Store, error) {
	switch cfg.Backend {
	case "badger":
		return preference.OpenBadgerStore(cfg.Path)
	case "file":
		return preference.OpenFileStore(cfg.Path)
	case "memory":
		return preference.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend: %q", cfg.Backend)
	}
}
