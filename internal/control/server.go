package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vietddude/resilience/internal/engine"
	"github.com/vietddude/resilience/internal/infra/storage"
)

// Server provides HTTP endpoints for statistics and health.
type Server struct {
	handler *engine.Handler
	repo    storage.ErrorLogRepository
	server  *http.Server
}

// NewServer creates a new stats server.
func NewServer(handler *engine.Handler, repo storage.ErrorLogRepository, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		handler: handler,
		repo:    repo,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/errors/recent", s.handleRecent)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.handler.Stats())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.repo.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
