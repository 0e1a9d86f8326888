// Package api exposes the trading engine over HTTP: strategy lifecycle,
// backtests, order history and data collection control.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/backtest"
	"github.com/quantbit/upbit-engine/internal/execution"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/strategy"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" validate:"required"`
	// DataDir is reported through the config endpoint.
	DataDir string `yaml:"dataDir"`
	// EnableTrading is the initial live trading toggle.
	EnableTrading bool `yaml:"enableTrading"`
}

// Server wires the engine components into an HTTP API.
type Server struct {
	config   Config
	engine   *strategy.Engine
	backtest *backtest.Engine
	gateway  *execution.Gateway
	store    *market.Store
	log      *logger.Logger

	mu            sync.Mutex
	enableTrading bool

	httpServer *http.Server
}

// NewServer creates the API server and its routes.
func NewServer(config Config, engine *strategy.Engine, bt *backtest.Engine, gateway *execution.Gateway, store *market.Store, log *logger.Logger) *Server {
	s := &Server{
		config:        config,
		engine:        engine,
		backtest:      bt,
		gateway:       gateway,
		store:         store,
		log:           log,
		enableTrading: config.EnableTrading,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/trading").Subrouter()

	api.HandleFunc("/strategies", s.handleListStrategies).Methods(http.MethodGet)
	api.HandleFunc("/strategies/active", s.handleActiveStrategies).Methods(http.MethodGet)
	api.HandleFunc("/strategies/{name}/activate", s.handleActivateStrategy).Methods(http.MethodPost)
	api.HandleFunc("/strategies/{name}/deactivate", s.handleDeactivateStrategy).Methods(http.MethodPost)
	api.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost)
	api.HandleFunc("/orders/history", s.handleOrderHistory).Methods(http.MethodGet)
	api.HandleFunc("/orders/active", s.handleActiveOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	api.HandleFunc("/data/start", s.handleStartCollection).Methods(http.MethodPost)
	api.HandleFunc("/data/stop", s.handleStopCollection).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("api server listening", zap.String("addr", s.config.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": s.engine.Available()})
}

func (s *Server) handleActiveStrategies(w http.ResponseWriter, _ *http.Request) {
	active := s.engine.Active()
	detail := make([]map[string]any, 0, len(active))
	for _, name := range active {
		detail = append(detail, map[string]any{
			"name":    name,
			"markets": s.engine.ActiveMarkets(name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"activeStrategies": detail})
}

type activateRequest struct {
	Markets []string `json:"markets"`
}

func (s *Server) handleActivateStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	if len(req.Markets) == 0 {
		writeError(w, errors.New(errors.ErrCodeInvalidParameter, "markets is required and must be a non-empty array"))

		return
	}

	// The strategy outlives this request; its dispatch context must not be
	// tied to the request's lifetime.
	if err := s.engine.Activate(context.Background(), name, req.Markets); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "strategy": name, "markets": req.Markets})
}

func (s *Server) handleDeactivateStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.engine.Deactivate(name); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "strategy": name})
}

type backtestRequest struct {
	StrategyName string `json:"strategyName"`
	Market       string `json:"market"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	CandleUnit   int    `json:"candleUnit"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	if req.StrategyName == "" || req.Market == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidParameter, "strategyName, market, startDate and endDate are required"))

		return
	}

	if req.CandleUnit <= 0 {
		req.CandleUnit = 1
	}

	strat, err := s.engine.Build(req.StrategyName)
	if err != nil {
		writeError(w, err)

		return
	}

	result, err := s.backtest.Run(r.Context(), strat, backtest.RunParams{
		Market:     req.Market,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		CandleUnit: req.CandleUnit,
	})
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": result})
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, errors.Newf(errors.ErrCodeInvalidParameter, "invalid limit %q", raw))

			return
		}
		limit = parsed
	}

	history, err := s.gateway.GetOrderHistory(limit)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orderHistory": history})
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"activeOrders": s.gateway.GetActiveOrders()})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.gateway.CancelOrder(r.Context(), id); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	enabled := s.enableTrading
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"enableTrading": enabled,
		"dataDir":       s.config.DataDir,
	})
}

type configRequest struct {
	EnableTrading bool `json:"enableTrading"`
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	s.mu.Lock()
	s.enableTrading = req.EnableTrading
	s.mu.Unlock()

	s.log.Info("trading toggle updated", zap.Bool("enableTrading", req.EnableTrading))

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "enableTrading": req.EnableTrading})
}

type collectionRequest struct {
	Markets []string `json:"markets"`
}

func (s *Server) handleStartCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	if len(req.Markets) == 0 {
		writeError(w, errors.New(errors.ErrCodeInvalidParameter, "markets is required and must be a non-empty array"))

		return
	}

	s.store.StartCollection(context.Background(), req.Markets)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "markets": len(req.Markets)})
}

func (s *Server) handleStopCollection(w http.ResponseWriter, _ *http.Request) {
	s.store.StopCollection()

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidParameter, errors.ErrCodeInvalidDateRange, errors.ErrCodeInvalidOrder, errors.ErrCodeInvalidStrategy:
		status = http.StatusBadRequest
	case errors.ErrCodeOrderNotFound, errors.ErrCodeNoData, errors.ErrCodeNoResult:
		status = http.StatusNotFound
	case errors.ErrCodeBacktestRunning:
		status = http.StatusConflict
	case errors.ErrCodeFetchFailed:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]any{"error": err.Error()})
}
