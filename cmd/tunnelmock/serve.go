package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/btouchard/tunnelmock/internal/auth"
	"github.com/btouchard/tunnelmock/internal/config"
	tmmcp "github.com/btouchard/tunnelmock/internal/mcp"
	authmw "github.com/btouchard/tunnelmock/internal/mcp/middleware"
	"github.com/btouchard/tunnelmock/internal/mockserver"
	"github.com/btouchard/tunnelmock/internal/notify"
	"github.com/btouchard/tunnelmock/internal/store"
)

const historyRetention = 30 * 24 * time.Hour

func newServeCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server and keep the tunnel open until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if mode != "" {
				cfg.Mock.Mode = mode
			}

			setupLogging(cfg)

			slog.Info("starting tunnelmock",
				"version", version,
				"mode", cfg.Mock.Mode,
				"providers", cfg.Tunnel.Providers)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return runServe(ctx, cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "override mock.mode (local or container)")
	return cmd
}

func logEvent(event notify.Event) {
	attrs := []any{"provider", event.Provider, "port", event.Port}
	if event.Attempt > 0 {
		attrs = append(attrs, "attempt", event.Attempt)
	}
	if event.PublicURL != "" {
		attrs = append(attrs, "public_url", event.PublicURL)
	}

	switch event.Type {
	case notify.TunnelFailed:
		slog.Warn("tunnel attempt failed", append(attrs, "error", event.Message)...)
	case notify.TunnelUnavailable:
		slog.Error("tunnel unavailable", append(attrs, "error", event.Message)...)
	default:
		slog.Debug(event.Type, attrs...)
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	hub := notify.NewHub(notify.NotifierFunc(logEvent))
	if db != nil {
		defer func() { _ = db.Close() }()
		if err := db.Cleanup(time.Now().Add(-historyRetention)); err != nil {
			slog.Warn("pruning tunnel history failed", "error", err)
		}
		hub.Add(store.NewJournal(db))
		slog.Info("database opened", "path", cfg.Database.Path)
	}

	// --- Mock server + tunnel ---
	opts, err := mockserver.OptionsFromConfig(cfg, nil, hub, slog.Default())
	if err != nil {
		return err
	}
	ms, err := mockserver.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("opening mock server: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Tunnel.ExitTimeout+time.Minute)
		defer cancel()
		if err := ms.CloseContext(closeCtx); err != nil {
			slog.Warn("closing mock server", "error", err)
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), ms.PublicURL())
	slog.Info("mock server is ready",
		"public_url", ms.PublicURL(),
		"provider", ms.Provider(),
		"local_url", ms.LocalURL())

	if !cfg.MCP.Enabled {
		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	}

	return serveMCP(ctx, cfg, ms, db, hub)
}

func serveMCP(ctx context.Context, cfg *config.Config, ms *mockserver.Server, db *store.SQLiteStore, hub *notify.Hub) error {
	token, err := auth.ResolveToken(cfg.MCP.Token, cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("resolving MCP token: %w", err)
	}

	deps := &tmmcp.Deps{Mock: ms, Version: version}
	if db != nil {
		deps.History = db
	}
	mcpServer := tmmcp.NewServer(deps)
	hub.Add(notify.NewMCPNotifier(mcpServer, time.Second))

	mcpHTTP := server.NewStreamableHTTPServer(mcpServer)

	// --- HTTP Router ---
	r := chi.NewRouter()
	r.Use(authmw.SecurityHeaders)

	r.Group(func(r chi.Router) {
		r.Use(authmw.BearerAuth(token))
		r.Handle("/mcp", mcpHTTP)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// --- HTTP Server ---
	addr := cfg.MCP.Host + ":" + strconv.Itoa(cfg.MCP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MCP endpoint is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
