// Package server exposes the replication engine over HTTP: connection
// testing, starting and tracking jobs, cancellation, and a websocket stream
// of job events.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/connstr"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/replicator"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// Service is the slice of the orchestrator the HTTP layer needs.
type Service interface {
	Start(req *replicator.Request) (string, error)
	StartFromSavedConfig(ctx context.Context, configID string) (string, error)
	Status(id string) (state.Snapshot, error)
	List() []state.Snapshot
	Cancel(id string) error
	Subscribe(id string, l state.Listener) error
	TestConnection(ctx context.Context, rawConnStr string) (*connstr.ServerInfo, error)
}

// Server hosts the HTTP API.
type Server struct {
	service Service
	logger  utils.Logger
	srv     *http.Server
}

// New creates a server bound to addr.
func New(addr string, service Service, logger utils.Logger) *Server {
	s := &Server{service: service, logger: logger}
	s.srv = &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Router builds the route tree. Exposed separately so tests can drive it with
// httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/connections/test", s.handleTestConnection)
		r.Route("/replications", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Get("/", s.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Post("/cancel", s.handleCancel)
				r.Get("/stream", s.handleStream)
			})
		})
	})
	return r
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API listening on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrJobNotFound), errors.Is(err, utils.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrValidation), errors.Is(err, utils.ErrBadConnectionString):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrConnectionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
