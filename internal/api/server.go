// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/advisordesk/portfolio-backend/internal/backtest"
	"github.com/advisordesk/portfolio-backend/internal/marketdata"
	"github.com/advisordesk/portfolio-backend/internal/portfolio"
	"github.com/advisordesk/portfolio-backend/internal/report"
	"github.com/advisordesk/portfolio-backend/internal/riskprofile"
	"github.com/advisordesk/portfolio-backend/internal/trading"
	"github.com/advisordesk/portfolio-backend/internal/workers"
	"github.com/advisordesk/portfolio-backend/pkg/types"
)

const dateLayout = "2006-01-02"

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	defaults   types.BacktestDefaults
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	metrics    *Metrics
	engine     *backtest.Engine
	store      *marketdata.Store
	pool       *workers.Pool
	runs       map[string]*types.BacktestRun
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, config *types.ServerConfig, defaults types.BacktestDefaults, store *marketdata.Store, pool *workers.Pool) *Server {
	hub := NewHub(logger)
	server := &Server{
		logger:   logger,
		config:   config,
		defaults: defaults,
		router:   mux.NewRouter(),
		hub:      hub,
		metrics:  NewMetrics(hub),
		engine:   backtest.NewEngine(logger),
		store:    store,
		pool:     pool,
		runs:     make(map[string]*types.BacktestRun),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// Router exposes the mux router for additional route registration
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub exposes the WebSocket hub so callers can publish events
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	// Data endpoints
	s.router.HandleFunc("/api/v1/symbols", s.handleGetSymbols).Methods("GET")
	s.router.HandleFunc("/api/v1/prices/{symbol}", s.handleGetPrices).Methods("GET")

	// Risk profile endpoints
	s.router.HandleFunc("/api/v1/profile/score", s.handleScoreProfile).Methods("POST")
	s.router.HandleFunc("/api/v1/allocations/{level}", s.handleGetAllocation).Methods("GET")

	// Portfolio endpoints
	s.router.HandleFunc("/api/v1/portfolio/buyin", s.handleBuyIn).Methods("POST")

	// Backtest endpoints
	s.router.HandleFunc("/api/v1/backtest/run", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/{id}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtest/{id}/report", s.handleGetBacktestReport).Methods("GET")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// WebSocket
	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Start starts the HTTP server
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

	go s.hub.Run()

	s.logger.Info("Starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, payload interface{}) {
	s.metrics.HTTPRequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.String("route", route), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, route string, status int, message string) {
	s.writeJSON(w, route, status, map[string]string{"error": message})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "health", http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleGetSymbols returns symbols with stored price history
func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.store.Symbols()

	// Fall back to the default ETF universe when the store is empty
	if len(symbols) == 0 {
		symbols = []string{"VTI", "VXUS", "BND", "BNDX", "VNQ"}
	}

	s.writeJSON(w, "symbols", http.StatusOK, map[string]interface{}{
		"symbols": symbols,
	})
}

// handleGetPrices returns daily close prices for a symbol
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	start, end, err := s.parseWindow(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		s.writeError(w, "prices", http.StatusBadRequest, err.Error())
		return
	}

	prices, err := s.store.DailyPrices(symbol, start, end)
	if err != nil {
		s.writeError(w, "prices", http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, "prices", http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"prices": prices,
		"count":  len(prices),
	})
}

// handleScoreProfile scores questionnaire answers and returns the
// matching risk level with its model allocation
func (s *Server) handleScoreProfile(w http.ResponseWriter, r *http.Request) {
	var answers types.Answers
	if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
		s.writeError(w, "profile_score", http.StatusBadRequest, "Invalid request body")
		return
	}

	profile := riskprofile.Profile(answers)
	allocation, err := riskprofile.AllocationFor(profile.Level)
	if err != nil {
		s.writeError(w, "profile_score", http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, "profile_score", http.StatusOK, map[string]interface{}{
		"score":      profile.Score,
		"level":      profile.Level,
		"allocation": allocation,
	})
}

// handleGetAllocation returns the model allocation for a risk level
func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	level := types.RiskLevel(vars["level"])

	allocation, err := riskprofile.AllocationFor(level)
	if err != nil {
		s.writeError(w, "allocations", http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, "allocations", http.StatusOK, map[string]interface{}{
		"level":      level,
		"allocation": allocation,
	})
}

// handleBuyIn simulates buying into an allocation at the latest stored
// prices and returns the resulting holdings
func (s *Server) handleBuyIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Allocation     types.Allocation `json:"allocation,omitempty"`
		RiskLevel      types.RiskLevel  `json:"riskLevel,omitempty"`
		InitialCapital float64          `json:"initialCapital"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "buyin", http.StatusBadRequest, "Invalid request body")
		return
	}

	allocation := req.Allocation
	if len(allocation) == 0 {
		if req.RiskLevel == "" {
			s.writeError(w, "buyin", http.StatusBadRequest, "either allocation or riskLevel must be set")
			return
		}
		resolved, err := riskprofile.AllocationFor(req.RiskLevel)
		if err != nil {
			s.writeError(w, "buyin", http.StatusBadRequest, err.Error())
			return
		}
		allocation = resolved
	}
	if req.InitialCapital <= 0 {
		s.writeError(w, "buyin", http.StatusBadRequest, "initialCapital must be positive")
		return
	}

	p, err := portfolio.New(decimal.NewFromFloat(req.InitialCapital))
	if err != nil {
		s.writeError(w, "buyin", http.StatusBadRequest, err.Error())
		return
	}

	executor := trading.NewExecutor(s.logger, s.store)
	if err := executor.ExecuteBuyIn(p, allocation); err != nil {
		s.writeError(w, "buyin", http.StatusUnprocessableEntity, err.Error())
		return
	}

	prices := make(map[string]decimal.Decimal, len(allocation))
	for symbol := range allocation {
		price, err := s.store.LatestPrice(symbol)
		if err != nil {
			s.writeError(w, "buyin", http.StatusInternalServerError, err.Error())
			return
		}
		prices[symbol] = price
	}
	value, err := p.Value(prices)
	if err != nil {
		s.writeError(w, "buyin", http.StatusInternalServerError, err.Error())
		return
	}
	current, err := p.CurrentAllocation(prices)
	if err != nil {
		s.writeError(w, "buyin", http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, "buyin", http.StatusOK, map[string]interface{}{
		"holdings":   p.Holdings(),
		"cash":       p.Cash(),
		"value":      value,
		"allocation": current,
	})
}

// handleRunBacktest accepts a backtest request and queues it on the
// worker pool. The response carries the run ID for polling.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req types.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "backtest_run", http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.resolveRequest(&req); err != nil {
		s.writeError(w, "backtest_run", http.StatusBadRequest, err.Error())
		return
	}

	run := &types.BacktestRun{
		ID:          uuid.New().String(),
		Status:      "queued",
		Request:     &req,
		SubmittedAt: time.Now(),
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	// Publish and respond with a snapshot taken before the worker can
	// start mutating the run.
	queued := *run
	s.hub.BroadcastRunUpdate(MsgTypeRunQueued, &queued)

	task := workers.TaskFunc{
		TaskID: run.ID,
		Fn: func(ctx context.Context) error {
			return s.executeRun(ctx, run)
		},
	}
	if err := s.pool.Submit(task); err != nil {
		s.mu.Lock()
		delete(s.runs, run.ID)
		s.mu.Unlock()
		s.writeError(w, "backtest_run", http.StatusServiceUnavailable, err.Error())
		return
	}

	s.metrics.RunsSubmitted.Inc()

	s.writeJSON(w, "backtest_run", http.StatusAccepted, map[string]interface{}{
		"id":        queued.ID,
		"status":    queued.Status,
		"submitted": queued.SubmittedAt.Unix(),
	})
}

// resolveRequest fills derived request fields before the run is queued.
// A request names either an explicit allocation or a risk level.
func (s *Server) resolveRequest(req *types.BacktestRequest) error {
	if len(req.Allocation) == 0 {
		if req.RiskLevel == "" {
			return errors.New("either allocation or riskLevel must be set")
		}
		allocation, err := riskprofile.AllocationFor(req.RiskLevel)
		if err != nil {
			return err
		}
		req.Allocation = allocation
	}
	if err := req.Allocation.Validate(); err != nil {
		return err
	}
	if req.InitialCapital <= 0 {
		return errors.New("initialCapital must be positive")
	}
	if req.RebalanceFrequency < 0 {
		return errors.New("rebalanceFrequency must not be negative")
	}
	if req.StartDate == "" {
		req.StartDate = s.defaults.StartDate
	}
	if req.EndDate == "" {
		req.EndDate = s.defaults.EndDate
	}
	if _, _, err := s.parseWindow(req.StartDate, req.EndDate); err != nil {
		return err
	}
	return nil
}

// executeRun is the worker pool task body for one backtest
func (s *Server) executeRun(ctx context.Context, run *types.BacktestRun) error {
	s.setRunStatus(run, "running")
	s.hub.BroadcastRunUpdate(MsgTypeRunStarted, run)

	started := time.Now()
	result, rendered, err := s.runBacktest(run.Request)
	s.metrics.RunDuration.Observe(time.Since(started).Seconds())

	s.mu.Lock()
	run.CompletedAt = time.Now()
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	} else {
		run.Status = "completed"
		run.Result = result
		run.Report = rendered
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.RunsFailed.Inc()
		s.hub.BroadcastRunUpdate(MsgTypeRunFailed, run)
		return err
	}

	s.metrics.RunsCompleted.Inc()
	s.hub.BroadcastRunUpdate(MsgTypeRunCompleted, run)
	return nil
}

// runBacktest loads market data and executes the simulation
func (s *Server) runBacktest(req *types.BacktestRequest) (*types.BacktestResult, string, error) {
	start, end, err := s.parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, "", err
	}

	returns, err := marketdata.MonthlyReturnsFor(s.store, req.Allocation.Symbols(), start, end)
	if err != nil {
		return nil, "", err
	}

	capital := decimal.NewFromFloat(req.InitialCapital)
	result, err := s.engine.Run(returns, req.Allocation, capital, req.RebalanceFrequency)
	if err != nil {
		return nil, "", err
	}

	name := req.RebalanceFrequency.Label()
	if req.RiskLevel != "" {
		name = fmt.Sprintf("%s / %s", req.RiskLevel, name)
	}
	rendered := report.Render(name, result, req.InitialCapital)
	return result, rendered, nil
}

func (s *Server) setRunStatus(run *types.BacktestRun, status string) {
	s.mu.Lock()
	run.Status = status
	s.mu.Unlock()
}

// handleGetBacktest returns the state of one run
func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "backtest_get", http.StatusNotFound, "Backtest not found")
		return
	}
	s.writeJSON(w, "backtest_get", http.StatusOK, run)
}

// handleGetBacktestReport returns the rendered text report of a
// completed run
func (s *Server) handleGetBacktestReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "backtest_report", http.StatusNotFound, "Backtest not found")
		return
	}
	if run.Status != "completed" {
		s.writeError(w, "backtest_report", http.StatusConflict, "Backtest not complete")
		return
	}

	s.metrics.HTTPRequestsTotal.WithLabelValues("backtest_report", "200").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, run.Report)
}

// lookupRun returns a snapshot of one run so handlers never hold the
// lock while encoding
func (s *Server) lookupRun(id string) (types.BacktestRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return types.BacktestRun{}, false
	}
	return *run, true
}

func (s *Server) parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startStr, err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endStr, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s must be after start date %s", endStr, startStr)
	}
	return start, end, nil
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	s.logger.Info("WebSocket client connected", zap.String("id", client.id))

	go client.ReadPump()
	go client.WritePump()
}
