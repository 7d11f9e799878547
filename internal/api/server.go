// Package api exposes backtests, heatmaps and credential checks over HTTP
// (JSON, server-sent events and WebSocket) and gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"quantdesk/internal/backtest"
	"quantdesk/internal/config"
	"quantdesk/internal/heatmap"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
)

// Deps are the collaborators a Server dispatches to.
type Deps struct {
	Backtester *backtest.Backtester
	Aggregator *heatmap.Aggregator
	Provider   marketdata.Provider
	Strategies *strategy.Registry
	Runs       store.RunLog // optional
	Log        *slog.Logger
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	cfg  config.Server
	deps Deps
	log  *slog.Logger

	http *http.Server
	grpc *grpc.Server
}

// NewServer creates a new Server configured from the given Config.
func NewServer(cfg config.Server, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "api"),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpc = grpc.NewServer()
	RegisterBacktestServer(s.grpc, &grpcService{deps: deps, log: s.log})
	return s
}

// Handler returns the HTTP routes wrapped in CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.cfg.AllowedOrigins, mux)
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/heatmap", s.handleHeatmap)
	mux.HandleFunc("POST /api/heatmap/stream", s.handleHeatmapStream)
	mux.HandleFunc("GET /api/heatmap/ws", s.handleHeatmapWS)
	mux.HandleFunc("POST /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/modules", s.handleModules)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
}

// GRPC returns the gRPC server so callers can serve it on their own
// listener.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. On cancellation both
// servers drain within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	grpcLn, err := net.Listen("tcp", s.cfg.GRPCAddr())
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening on %s: %w", s.cfg.GRPCAddr(), err)
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve is ListenAndServe on existing listeners.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc listening", "addr", grpcLn.Addr().String())
		if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. If
// ctx expires first, remaining gRPC calls are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	err := s.http.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	return err
}
