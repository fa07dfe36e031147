package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/internal/engine"
	"github.com/atlas-desktop/watchtower/internal/scheduler"
	"github.com/atlas-desktop/watchtower/pkg/links"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

// WatchlistStore is the subset of the state store the API reads and mutates.
type WatchlistStore interface {
	ListInstruments(ctx context.Context) ([]types.Instrument, error)
	UpsertInstrument(ctx context.Context, inst types.Instrument) error
	RemoveInstrument(ctx context.Context, symbol string) error
	SetSwitch(ctx context.Context, symbol string, rule types.Rule, token string) error
}

// TriggerFunc starts an on-demand evaluation run.
type TriggerFunc func(ctx context.Context, reason string) (*engine.Result, error)

// JobStatusFunc reports the scheduler's job table.
type JobStatusFunc func() []scheduler.JobStatus

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub

	store     WatchlistStore
	trigger   TriggerFunc
	jobStatus JobStatusFunc
	startedAt time.Time
}

// NewServer creates an API server. trigger and jobStatus may be nil, which
// disables the corresponding endpoints.
func NewServer(logger *zap.Logger, config *types.ServerConfig, store WatchlistStore, hub *Hub, trigger TriggerFunc, jobStatus JobStatusFunc) *Server {
	server := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		hub:       hub,
		store:     store,
		trigger:   trigger,
		jobStatus: jobStatus,
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // desktop clients connect from file:// origins
			},
		},
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/run", s.handleRun).Methods("POST")

	s.router.HandleFunc("/api/v1/instruments", s.handleListInstruments).Methods("GET")
	s.router.HandleFunc("/api/v1/instruments", s.handleUpsertInstrument).Methods("POST")
	s.router.HandleFunc("/api/v1/instruments/{symbol}", s.handleRemoveInstrument).Methods("DELETE")
	s.router.HandleFunc("/api/v1/instruments/{symbol}/rules/{rule}/switch", s.handleSetSwitch).Methods("PUT")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Start runs the HTTP server until Stop or a listen error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "running",
		"uptime":    time.Since(s.startedAt).String(),
		"wsClients": s.hub.ClientCount(),
	}
	if s.jobStatus != nil {
		status["jobs"] = s.jobStatus()
	}
	if instruments, err := s.store.ListInstruments(r.Context()); err == nil {
		status["instruments"] = len(instruments)
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		http.Error(w, "manual runs disabled", http.StatusServiceUnavailable)
		return
	}

	result, err := s.trigger(r.Context(), "api")
	if err != nil {
		s.logger.Error("manual run failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":     result.RunID,
		"alerts":    len(result.Alerts),
		"evaluated": result.Evaluated,
		"skipped":   result.Skipped,
		"duration":  result.Duration.String(),
	})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.ListInstruments(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

func (s *Server) handleUpsertInstrument(w http.ResponseWriter, r *http.Request) {
	var inst types.Instrument
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if inst.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if inst.Link == "" {
		inst.Link = links.ForInstrument(inst.Symbol, inst.Market)
	}

	if err := s.store.UpsertInstrument(r.Context(), inst); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleRemoveInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := s.store.RemoveInstrument(r.Context(), symbol); err != nil {
		if errors.Is(err, types.ErrInstrumentUnknown) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": symbol})
}

func (s *Server) handleSetSwitch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	rule := types.Rule(vars["rule"])

	known := false
	for _, r2 := range types.AllRules() {
		if rule == r2 {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, fmt.Sprintf("unknown rule %q", rule), http.StatusBadRequest)
		return
	}

	var body struct {
		Switch string `json:"switch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.SetSwitch(r.Context(), symbol, rule, body.Switch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"symbol": symbol,
		"rule":   string(rule),
		"switch": body.Switch,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}
