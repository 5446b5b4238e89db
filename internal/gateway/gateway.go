// ABOUTME: The WebSocket gateway server: HTTP setup, lifecycle, and graceful shutdown.
// ABOUTME: Connection handling and event dispatch live in conn.go and handlers.go.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/chowline/internal/config"
	"github.com/2389/chowline/internal/session"
	"github.com/2389/chowline/internal/store"
)

// TurnRunner processes one user message for a chat and returns the reply.
type TurnRunner interface {
	RunTurn(ctx context.Context, chatID, userText string) string
}

// Gateway terminates client WebSocket connections and routes their events.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *session.Registry
	broadcaster *session.Broadcaster
	runner      TurnRunner
	logger      *slog.Logger
	httpServer  *http.Server
}

// New creates a Gateway wired to the given collaborators.
func New(cfg *config.Config, st store.Store, registry *session.Registry, broadcaster *session.Broadcaster, runner TurnRunner, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:      cfg,
		store:       st,
		registry:    registry,
		broadcaster: broadcaster,
		runner:      runner,
		logger:      logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/ws", g.handleWS)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// Run serves until the context is canceled or the server fails, then shuts
// down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	return g.httpServer.Shutdown(ctx)
}
