// Package server exposes the engine's control operations over an
// HTTP JSON API, plus Prometheus metrics and a health check.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/logger"
)

// Server represents a somaflow server. It handles HTTP traffic for
// the workflow API and serves engine metrics.
type Server struct {
	HTTPPort string
	Engine   *engine.Engine
	Log      *logger.Logger
}

// DefaultServer returns a new server instance for the given engine.
func DefaultServer(eng *engine.Engine, conf config.Config, log *logger.Logger) *Server {
	return &Server{
		HTTPPort: conf.Server.HTTPPort,
		Engine:   eng,
		Log:      log,
	}
}

// Handler returns the HTTP handler serving the workflow API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/workflows", s.handleSubmit)
	mux.HandleFunc("GET /v1/workflows", s.handleList)
	mux.HandleFunc("GET /v1/workflows/{id}", s.handleStatus)
	mux.HandleFunc("GET /v1/workflows/{id}/definition", s.handleDefinition)
	mux.HandleFunc("GET /v1/workflows/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /v1/workflows/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /v1/workflows/{id}/kill", s.handleKill)
	mux.HandleFunc("POST /v1/workflows/{id}/restart", s.handleRestart)
	mux.HandleFunc("DELETE /v1/workflows/{id}", s.handleDelete)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Serve opens the HTTP port and blocks until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.HTTPPort,
		Handler: s.Handler(),
	}

	errch := make(chan error, 1)
	go func() {
		s.Log.Info("Server listening", "httpPort", s.HTTPPort)
		errch <- srv.ListenAndServe()
	}()

	select {
	case err := <-errch:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
