// Package relayops provides the operational HTTP surface (liveness and
// metrics) that every relay process carries alongside its JSON-lines TCP
// listener. The one check it exposes is whether the owning process's
// accept loop is running.
package relayops

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cuemby/relay/pkg/relaymetrics"
)

// Server serves /healthz and /metrics on a port separate from the mesh's
// TCP protocol listener.
type Server struct {
	mux   *http.ServeMux
	ready atomic.Bool
}

// NewServer builds an ops server. Call MarkReady once the owning process's
// accept loop is live.
func NewServer() *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", s.healthzHandler)
	s.mux.Handle("/metrics", relaymetrics.Handler())
	return s
}

// MarkReady flips the liveness check to healthy.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Start blocks serving on addr until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type healthzResponse struct {
	Status string `json:"status"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "starting"
	code := http.StatusServiceUnavailable
	if s.ready.Load() {
		status = "ok"
		code = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(healthzResponse{Status: status})
}
