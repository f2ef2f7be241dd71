package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quadchat/quadchat/internal/auth"
	"github.com/quadchat/quadchat/internal/config"
	"github.com/quadchat/quadchat/internal/httpapi"
	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/ratelimit"
	"github.com/quadchat/quadchat/internal/reaction"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/securelog"
	"github.com/quadchat/quadchat/internal/storage"
	"github.com/quadchat/quadchat/internal/typing"
	"github.com/quadchat/quadchat/internal/user"
	"github.com/quadchat/quadchat/internal/validation"
	"github.com/quadchat/quadchat/internal/ws"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			securelog.Error("store.close", err)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	validate := validation.New(cfg.MaxMessageLength)
	users := user.NewService(store.Users(), validate)
	rooms := room.NewService(store.Rooms(), validate)
	messages := message.NewService(store.Messages(), users, validate)
	identities := auth.NewService(users, cfg.JWTSecret, cfg.TokenTTL)

	registry := ws.NewRegistry()
	reactions := reaction.NewCoordinator(store.Messages(), registry)
	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	typingTracker := typing.NewTracker()
	hub := ws.NewHub(registry, identities, messages, reactions, limiter, typingTracker, validate)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ws/{room_id}", hub.HandleWS)
	httpapi.NewHandler(users, rooms, messages, identities, reactions, registry).Register(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		securelog.Eventf("listening on %s", cfg.ListenAddr)
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	securelog.Eventf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
