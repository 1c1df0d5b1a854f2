// Package diagapi implements the read-only diagnostics HTTP API
// (SPEC_FULL.md §B): session list (with each session's stream state) and
// process health,
// served alongside the binary TCP protocol the same way the teacher
// exposes a REST control surface alongside its core pipeline. Adapted
// from the teacher's internal/http package, trimmed to read-only
// diagnostics endpoints.
package diagapi

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

	"github.com/pipelka/robotv-go/internal/server"
)

// Server is the diagnostics HTTP server.
type Server struct {
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	log        *slog.Logger
	startTime  time.Time
}

// New builds the diagnostics API's router, wiring health and session
// handlers against src.
func New(addr string, src *server.Server, version string, log *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	humaCfg := huma.DefaultConfig("robotvd diagnostics API", version)
	humaCfg.Info.Description = "Read-only session and health diagnostics for the live-streaming server"
	api := humachi.New(router, humaCfg)

	s := &Server{router: router, api: api, log: log, startTime: time.Now()}

	newHealthHandler(s.startTime, version, src).Register(api)
	newSessionsHandler(src).Register(api)

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// ListenAndServe blocks serving the diagnostics API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("diagnostics API listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics API: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the diagnostics API.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
