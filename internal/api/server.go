// Package api exposes the monitoring HTTP surface: the MPCB v2.3 analyzer
// upload endpoints, pipeline status and health, webhook administration, the
// websocket livefeed, and Prometheus exposition.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cetp/sentinel/internal/config"
	"github.com/cetp/sentinel/internal/livefeed"
	"github.com/cetp/sentinel/internal/metrics"
	"github.com/cetp/sentinel/internal/middleware"
	"github.com/cetp/sentinel/internal/webhooks"
)

// Server wires the HTTP surface to the live pipeline state.
type Server struct {
	cfg      config.APIConfig
	kpis     *metrics.Aggregator
	feed     *livefeed.Hub
	registry *webhooks.Registry
	limiter  *middleware.RateLimiter
	srv      *http.Server
	logger   *log.Logger
}

func NewServer(cfg config.APIConfig, kpis *metrics.Aggregator, feed *livefeed.Hub, registry *webhooks.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		kpis:     kpis,
		feed:     feed,
		registry: registry,
		limiter:  middleware.NewRateLimiter(middleware.RateLimitConfig{MaxCallsPerMinute: cfg.RateLimitPerMinute}),
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Router(),
	}
	return s
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS middleware, dashboard runs on a different port.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Site-Id")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// MPCB v2.3 analyzer endpoints, rate-limited per site.
	mpcb := r.PathPrefix("/").Subrouter()
	mpcb.Use(s.limiter.Middleware)
	for _, route := range mpcbRoutes {
		mpcb.HandleFunc("/"+route, s.handleMPCBUpload(route)).Methods(http.MethodPost)
	}

	// Operational surface.
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/pipeline/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/alerts", s.feed.HandleWebSocket)

	// Webhook administration.
	r.HandleFunc("/api/webhooks", s.handleWebhookRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/webhooks", s.handleWebhookList).Methods(http.MethodGet)
	r.HandleFunc("/api/webhooks/{id}", s.handleWebhookUnregister).Methods(http.MethodDelete)

	return r
}

// Start blocks serving HTTP on the configured port. A Shutdown-initiated
// stop is a clean return, not an error.
func (s *Server) Start() error {
	s.logger.Printf("🚀 monitoring API listening on %s (site %s)", s.srv.Addr, s.cfg.SiteLabel)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "site": s.cfg.SiteLabel})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.kpis.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"site_name":            s.cfg.SiteName,
		"site_label":           s.cfg.SiteLabel,
		"kpis":                 snap,
		"livefeed_subscribers": s.feed.ClientCount(),
	})
}

func (s *Server) handleWebhookRegister(w http.ResponseWriter, r *http.Request) {
	var sub webhooks.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := s.registry.Register(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleWebhookList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListAll())
}

func (s *Server) handleWebhookUnregister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Unregister(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered", "id": id})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
