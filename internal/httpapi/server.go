// Package httpapi is the read-only HTTP query surface: live playback
// (HLS-style playlists and segment bytes straight from the hot buffer),
// motion/detection history, and warm-storage event playback.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nsg/camon/internal/daemon"
	"github.com/nsg/camon/internal/httpapi/middleware"
)

// Config configures the HTTP server.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the camera query API.
type Server struct {
	cfg        Config
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server with every route registered against the given
// supervisor, whose stores and hot buffers back every handler.
func New(logger *slog.Logger, cfg Config, version string, sup *daemon.Supervisor) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))

	humaConfig := huma.DefaultConfig("camon API", version)
	humaConfig.Info.Description = "Multi-camera surveillance query and playback API"
	api := humachi.New(router, humaConfig)

	registerCameraRoutes(api, sup)
	registerLiveRoutes(router, sup)
	registerEventRoutes(api, router, sup)
	registerHealthRoute(api, version)

	return &Server{cfg: cfg, router: router, logger: logger}
}

// Router exposes the underlying chi router for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// ListenAndServe starts the server and blocks until ctx is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
