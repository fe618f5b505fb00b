package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// Server answers uptime checks from the hosting platform and exposes
// Prometheus metrics. It never touches tracker state.
type Server struct {
	server *http.Server
}

func NewServer(port int) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           Routes(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

func Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", ok)
	r.Head("/", ok)
	r.Get("/healthz", ok)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Start binds the listener and serves in the background. Bind failures are
// returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	slog.Info("liveness server started", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("liveness server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("stopping liveness server")
	return s.server.Shutdown(ctx)
}
