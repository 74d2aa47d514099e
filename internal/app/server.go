package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"wapi-nlq/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusServer serves /health, /ready and /metrics.
type StatusServer struct {
	server *http.Server
	ready  atomic.Bool
	logger logger.Logger
}

// NewStatusServer exposes gatherer on /metrics. /ready reports 503 until
// SetReady(true).
func NewStatusServer(addr string, gatherer prometheus.Gatherer, log logger.Logger) *StatusServer {
	s := &StatusServer{logger: log.With(map[string]interface{}{"component": "status"})}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "starting")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *StatusServer) Handler() http.Handler { return s.server.Handler }

func (s *StatusServer) SetReady(ready bool) { s.ready.Store(ready) }

// Start listens in the background until Shutdown.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info("Health/Metrics server listening", map[string]interface{}{"addr": s.server.Addr})
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health/Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.server.Shutdown(ctx)
}
