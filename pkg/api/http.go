package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
)

// InstanceStatus is the wire shape of one instance in the status endpoint
type InstanceStatus struct {
	Name  string              `json:"name"`
	State types.InstanceState `json:"state"`
	Since time.Time           `json:"since"`
	Block uint64              `json:"block"`
	Error string              `json:"error,omitempty"`
}

// FleetStatus is the wire shape of the status endpoint
type FleetStatus struct {
	RunID     string           `json:"run_id"`
	RunCount  int              `json:"run_count"`
	Instances []InstanceStatus `json:"instances"`
}

// SnapshotFunc produces a point-in-time fleet status
type SnapshotFunc func() FleetStatus

// Server exposes the read-only operator endpoints: the fleet status under
// /healthz and Prometheus metrics under /metrics
type Server struct {
	addr     string
	snapshot SnapshotFunc
	mux      *http.ServeMux
	server   *http.Server
	logger   zerolog.Logger
}

// NewServer creates the HTTP API server
func NewServer(addr string, snapshot SnapshotFunc) *Server {
	s := &Server{
		addr:     addr,
		snapshot: snapshot,
		mux:      http.NewServeMux(),
		logger:   log.WithComponent("api"),
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start begins serving in the background
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("HTTP API listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP API server failed")
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode fleet status")
	}
}
