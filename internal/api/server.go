// Package api hosts the HTTP API and the gRPC health service of the
// taxitrend server.
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

	"taxitrend/internal/config"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string
	handler  http.Handler
	health   *Health
	log      *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a Server listening on the addresses in cfg. handler
// serves HTTP; health is registered on the gRPC server.
func NewServer(cfg config.Server, handler http.Handler, health *Health, log *slog.Logger) *Server {
	return &Server{
		httpAddr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		grpcAddr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.GRPCPort)),
		handler:  handler,
		health:   health,
		log:      log,
	}
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a listener fails. Both servers are shut down
// before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	grpcLis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is ListenAndServe on existing listeners.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcServer = grpc.NewServer()
	s.health.RegisterGRPC(s.grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
