// Package api provides the configuration and metrics HTTP surface:
// strategy schema/defaults/config/audit CRUD backed by internal/config,
// and depth-metrics queries backed by internal/depthanalyzer. No
// liveness/readiness probes live here; this is the domain REST surface
// only.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/config"
	"github.com/atlas-desktop/signal-engine/internal/depthanalyzer"
	"github.com/atlas-desktop/signal-engine/pkg/types"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP server exposing the ConfigManager and DepthAnalyzer
// over REST.
type Server struct {
	logger    *zap.Logger
	router    *mux.Router
	http      *http.Server
	configMgr *config.Manager
	analyzer  *depthanalyzer.Analyzer
}

// Config bootstraps the server's bind address.
type Config struct {
	Addr string
}

// NewServer wires the config and depth-metrics routes.
func NewServer(logger *zap.Logger, cfg Config, configMgr *config.Manager, analyzer *depthanalyzer.Analyzer) *Server {
	s := &Server{
		logger:    logger.Named("api"),
		router:    mux.NewRouter(),
		configMgr: configMgr,
		analyzer:  analyzer,
	}

	s.router.HandleFunc("/strategies", s.handleListStrategies).Methods("GET")
	s.router.HandleFunc("/strategies/{id}/schema", s.handleSchema).Methods("GET")
	s.router.HandleFunc("/strategies/{id}/defaults", s.handleDefaults).Methods("GET")
	s.router.HandleFunc("/strategies/{id}/config", s.handleGlobalConfig).Methods("GET", "POST", "DELETE")
	s.router.HandleFunc("/strategies/{id}/config/{symbol}", s.handleSymbolConfig).Methods("GET", "POST", "DELETE")
	s.router.HandleFunc("/strategies/{id}/audit", s.handleAudit).Methods("GET")
	s.router.HandleFunc("/strategies/cache/refresh", s.handleCacheRefresh).Methods("POST")

	s.router.HandleFunc("/metrics/depth/{symbol}", s.handleMetricsDepth).Methods("GET")
	s.router.HandleFunc("/metrics/pressure/{symbol}", s.handleMetricsPressure).Methods("GET")
	s.router.HandleFunc("/metrics/summary", s.handleMetricsSummary).Methods("GET")
	s.router.HandleFunc("/metrics/all", s.handleMetricsAll).Methods("GET")

	s.http = &http.Server{
		Addr: cfg.Addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"*"},
		}).Handler(s.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// MountMetrics mounts a Prometheus scrape endpoint at /prometheus served by
// the given handler, separate from the JSON depth/config REST routes above.
func (s *Server) MountMetrics(handler http.Handler) {
	s.router.Handle("/prometheus", handler).Methods("GET")
}

// ServeHTTP lets Server stand in directly as an http.Handler (e.g. in
// tests via httptest), delegating to the same CORS-wrapped router Start
// listens with.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.Handler.ServeHTTP(w, r)
}

// Start serves until the listener errors or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// envelope is the uniform {success, data?, error?} shape every REST
// response uses.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, err string) {
	writeJSON(w, status, envelope{Success: false, Error: err})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	overview, err := s.configMgr.ListStrategies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, overview)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	schema, ok := config.Registry[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown strategy")
		return
	}
	writeOK(w, schema)
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	defaults := config.Defaults(id)
	if defaults == nil {
		writeError(w, http.StatusNotFound, "unknown strategy")
		return
	}
	writeOK(w, defaults)
}

func (s *Server) handleGlobalConfig(w http.ResponseWriter, r *http.Request) {
	s.handleConfig(w, r, mux.Vars(r)["id"], "")
}

func (s *Server) handleSymbolConfig(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.handleConfig(w, r, vars["id"], vars["symbol"])
}

type configWriteRequest struct {
	Parameters   map[string]interface{} `json:"parameters"`
	ChangedBy    string                  `json:"changed_by"`
	Reason       string                  `json:"reason"`
	ValidateOnly bool                    `json:"validate_only"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request, strategyID, symbol string) {
	switch r.Method {
	case http.MethodGet:
		resolved := s.configMgr.Get(r.Context(), strategyID, symbol)
		writeOK(w, resolved)

	case http.MethodPost:
		var req configWriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ChangedBy == "" {
			writeError(w, http.StatusBadRequest, "changed_by is required")
			return
		}
		if err := s.configMgr.Set(r.Context(), strategyID, symbol, req.Parameters, req.ChangedBy, req.Reason, req.ValidateOnly); err != nil {
			if verr, ok := err.(*config.ValidationError); ok {
				writeJSON(w, http.StatusUnprocessableEntity, envelope{Success: false, Error: verr.Error(), Data: verr.Messages})
				return
			}
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeOK(w, nil)

	case http.MethodDelete:
		changedBy := r.URL.Query().Get("changed_by")
		if changedBy == "" {
			writeError(w, http.StatusBadRequest, "changed_by is required")
			return
		}
		reason := r.URL.Query().Get("reason")
		if err := s.configMgr.Delete(r.Context(), strategyID, symbol, changedBy, reason); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeOK(w, nil)
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	symbol := r.URL.Query().Get("symbol")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			before = &parsed
		}
	}

	records, err := s.configMgr.Audit(r.Context(), id, symbol, limit, before)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeOK(w, records)
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	s.configMgr.Refresh()
	writeOK(w, nil)
}

func (s *Server) handleMetricsDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	current, ok := s.analyzer.Current(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no metrics for symbol")
		return
	}
	writeOK(w, current)
}

func (s *Server) handleMetricsPressure(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	window := types.PressureWindow(r.URL.Query().Get("timeframe"))
	if window == "" {
		window = types.PressureWindow5m
	}
	history, ok := s.analyzer.PressureHistory(symbol, window)
	if !ok {
		writeError(w, http.StatusNotFound, "no pressure history for symbol")
		return
	}
	trend, _ := s.analyzer.Trend(symbol)
	writeOK(w, map[string]interface{}{
		"history": history,
		"trend":   trend,
	})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.analyzer.Summary())
}

func (s *Server) handleMetricsAll(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.analyzer.All())
}
