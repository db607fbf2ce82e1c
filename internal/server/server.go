// Package server wires the HTTP surface: content ingestion, search, and
// job observability.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"corpusd/internal/ingest"
	"corpusd/internal/locks"
	"corpusd/internal/search"
)

// Config holds server configuration.
type Config struct {
	Addr     string
	AllowAll bool // allow all CORS origins (dev mode)
}

// Server is the corpusd HTTP server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New assembles the router around the ingestion service, search engine and
// lock manager.
func New(cfg Config, ingestSvc *ingest.Service, engine *search.Engine, lockMgr *locks.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}
	if cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	ingest.RegisterRoutes(r, ingestSvc)
	search.RegisterRoutes(r, engine)
	r.Get("/status/jobs", handleJobStatus(lockMgr))

	s.router = r
	return s
}

// Router returns the chi router, used by tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("corpusd server listening", "addr", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

type jobStatus struct {
	Job       string    `json:"job"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
	Held      bool      `json:"held"`
}

// handleJobStatus exposes each job's lock row: name, holder identity and
// lease expiry.
func handleJobStatus(lockMgr *locks.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := lockMgr.List(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		now := time.Now()
		out := make([]jobStatus, len(statuses))
		for i, st := range statuses {
			out[i] = jobStatus{Job: st.Job, Holder: st.Holder, ExpiresAt: st.ExpiresAt, Held: st.Held(now)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
