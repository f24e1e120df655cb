package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/evidence/capture"
	"github.com/hazyhaar/evidence/shield"
)

const version = "0.1.0"

func newMCPServer(svc *capture.Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "evidence", Version: version}, nil)
	svc.RegisterMCP(srv)
	return srv
}

// newRouter serves the health check and the streamable MCP endpoint. MCP
// calls are rate limited per client IP.
func newRouter(mcpSrv *mcp.Server, limiter *shield.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(limiter.Middleware).Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpSrv
	}, nil))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newServeCmd() *cobra.Command {
	var (
		f    runFlags
		addr    string
		rate    int
		proxies []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capture tools over streamable HTTP MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(logLevel(cmd))
			svc, err := newService(cmd, &f, logger)
			if err != nil {
				return err
			}
			defer svc.Stop()
			trusted, err := shield.ParseTrustedProxies(proxies)
			if err != nil {
				return err
			}
			limiter := shield.NewRateLimiter(rate, time.Minute, logger, shield.WithTrustedProxies(trusted...))
			return serve(cmd.Context(), addr, newRouter(newMCPServer(svc), limiter, logger), logger)
		},
	}
	bindRunFlags(cmd, &f)
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	cmd.Flags().IntVar(&rate, "rate", 60, "MCP requests per client IP per minute")
	cmd.Flags().StringSliceVar(&proxies, "trusted-proxy", nil, "proxy address or CIDR whose X-Forwarded-For is honoured (repeatable)")
	return cmd
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("evidence: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("evidence: shutdown", "error", err)
	}
	logger.Info("evidence: server stopped")
	return nil
}

func newMCPCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the capture tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(logLevel(cmd))
			// stdout carries the protocol; stdout sinks go to stderr.
			cmd.SetOut(os.Stderr)
			svc, err := newService(cmd, &f, logger)
			if err != nil {
				return err
			}
			defer svc.Stop()
			return newMCPServer(svc).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
	bindRunFlags(cmd, &f)
	return cmd
}
