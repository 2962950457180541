// ABOUTME: Gateway wiring for the boxdrop HTTP API
// ABOUTME: Server construction, route registration, and graceful lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/boxdrop/boxdrop/internal/auth"
	"github.com/boxdrop/boxdrop/internal/blob"
	"github.com/boxdrop/boxdrop/internal/config"
	"github.com/boxdrop/boxdrop/internal/store"
)

// Gateway is the access gateway: every content read and write passes
// through its verify-then-delegate guard before reaching the stores.
// It owns no mutable state of its own; all mutation is delegated to the
// content and blob stores.
type Gateway struct {
	cfg        *config.Config
	store      store.Store
	blobs      blob.Store
	tokens     *auth.Tokens
	logger     *slog.Logger
	httpServer *http.Server
}

// New builds a gateway from its collaborators and registers the API routes.
func New(cfg *config.Config, s store.Store, blobs blob.Store, tokens *auth.Tokens, logger *slog.Logger) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		store:  s,
		blobs:  blobs,
		tokens: tokens,
		logger: logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", g.handleHealth)

	// Box lifecycle and search - plain CRUD, outside the token boundary
	mux.HandleFunc("/api/boxes", g.handleCreateBox)
	mux.HandleFunc("/api/search", g.handleSearch)

	// Authentication: password (or none, for public boxes) in, token cookie out
	mux.HandleFunc("/api/box-auth", g.handleBoxAuth)

	// Content entry points - all pass through the token guard
	mux.HandleFunc("/api/boxes/", g.handleBoxSubtree)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Handler exposes the route table for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves HTTP until the context is canceled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := g.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
