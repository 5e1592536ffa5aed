// Package daemon runs the hotreload diagnostics server: gRPC health checks
// over a Unix socket, and Prometheus metrics plus a JSON state dump over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

const shutdownTimeout = 5 * time.Second

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	// MetricsAddr is the HTTP listen address. Empty disables HTTP.
	MetricsAddr string
}

// Engine is the part of engine.Engine the server reports on.
type Engine interface {
	States() []watcher.StateInfo
	State(path string) (watcher.StateInfo, bool)
	Metrics() cache.MetricsSnapshot
	EventStats() events.Stats
	Registry() *prometheus.Registry
}

// Server is the hotreload diagnostics server.
type Server struct {
	cfg     Config
	engine  Engine
	health  *HealthTracker
	started time.Time

	grpc     *grpc.Server
	listener net.Listener

	http   *http.Server
	httpLn net.Listener

	stopOnce sync.Once
}

// NewServer binds the Unix socket and, if configured, the HTTP address.
// Nothing is served until Serve is called.
func NewServer(cfg Config, e Engine, h *HealthTracker) (*Server, error) {
	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.SocketPath, err)
	}

	srv := &Server{
		cfg:      cfg,
		engine:   e,
		health:   h,
		started:  time.Now(),
		grpc:     grpc.NewServer(),
		listener: listener,
	}
	healthpb.RegisterHealthServer(srv.grpc, h.Server())

	if cfg.MetricsAddr != "" {
		httpLn, err := lc.Listen(context.Background(), "tcp", cfg.MetricsAddr)
		if err != nil {
			_ = listener.Close()
			_ = os.RemoveAll(cfg.SocketPath)
			return nil, fmt.Errorf("listening on %s: %w", cfg.MetricsAddr, err)
		}
		srv.httpLn = httpLn
		srv.http = &http.Server{
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

// SocketPath returns the Unix socket the health service listens on.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// Serve blocks until ctx is cancelled or a listener fails, then stops both
// servers.
func (s *Server) Serve(ctx context.Context) error {
	log := logging.Get("daemon")
	log.Info("serving", "socket", s.cfg.SocketPath, "http", s.HTTPAddr())

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})

	if s.http != nil {
		g.Go(func() error {
			if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		s.stop()
		return nil
	})

	return g.Wait()
}

// Close stops the server and cleans up.
func (s *Server) Close() error {
	s.stop()
	return nil
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.grpc.GracefulStop()
		_ = s.listener.Close()

		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.http.Shutdown(ctx); err != nil {
				logging.Get("daemon").Warn("http shutdown", "error", err)
			}
			_ = s.httpLn.Close()
		}

		_ = os.RemoveAll(s.cfg.SocketPath)
	})
}
