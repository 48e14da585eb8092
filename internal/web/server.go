// Package web serves the account state, risk calculators and live order/balance streams over HTTP.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/marginbook/internal/account"
	"github.com/vadiminshakov/marginbook/internal/domain"
	"github.com/vadiminshakov/marginbook/internal/events"
	"github.com/vadiminshakov/marginbook/internal/risk"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccountReader read side of the account store.
type AccountReader interface {
	Balances(scope domain.AccountScope, symbol domain.Symbol) ([]domain.Balance, error)
	Orders(sel account.OrderSelector) []domain.Order
	MarginAccount() domain.MarginAccount
	IsolatedPairs() []domain.IsolatedMarginPair
	TotalFreeValue(ctx context.Context, denomination string, filter account.ValueFilter, chain account.ConversionChain) (decimal.Decimal, error)
}

// Subscriptions manages isolated margin symbol subscriptions.
type Subscriptions interface {
	Subscribe(ctx context.Context, symbol domain.Symbol, createIfMissing bool) error
	Unsubscribe(symbol domain.Symbol) error
}

// OrderHistory persisted orders.
type OrderHistory interface {
	Orders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error)
}

// Instruments resolves user supplied symbols.
type Instruments interface {
	Lookup(raw string) (domain.Instrument, error)
}

// Calculator sizes positions and margin deposits.
type Calculator interface {
	CalculatePositionSize(ctx context.Context, req risk.PositionRequest) (decimal.Decimal, error)
	MarginForTrade(scope domain.AccountScope, instrument domain.Instrument, side domain.Side, entry, stop, positionSize decimal.Decimal) (risk.MarginRequirement, error)
}

// Deps collaborators of the server. History, Chain and Metrics are optional.
type Deps struct {
	Account       AccountReader
	Subscriptions Subscriptions
	History       OrderHistory
	Instruments   Instruments
	Calculator    Calculator
	Chain         account.ConversionChain
	Orders        *events.Broadcaster[domain.Order]
	Balances      *events.Broadcaster[domain.BalanceChange]
	Metrics       http.Handler
}

// Server exposes the HTTP API.
type Server struct {
	addr   string
	deps   Deps
	logger *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	return &Server{addr: addr, deps: deps, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/balances/{scope}", s.handleBalances).Methods(http.MethodGet)
	api.HandleFunc("/value/{denomination}", s.handleValue).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/history", s.handleOrderHistory).Methods(http.MethodGet)
	api.HandleFunc("/margin", s.handleMargin).Methods(http.MethodGet)
	api.HandleFunc("/isolated/{symbol}", s.handleSubscribe).Methods(http.MethodPost)
	api.HandleFunc("/isolated/{symbol}", s.handleUnsubscribe).Methods(http.MethodDelete)
	api.HandleFunc("/risk/position", s.handlePositionSize).Methods(http.MethodPost)
	api.HandleFunc("/risk/margin", s.handleMarginForTrade).Methods(http.MethodPost)

	router.HandleFunc("/orders/stream", s.handleOrderStream).Methods(http.MethodGet)
	router.HandleFunc("/balances/stream", s.handleBalanceStream).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		router.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}

	return router
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError maps domain errors onto status codes.
func (s *Server) respondWithError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var (
		accErr    *domain.AccountError
		riskErr   *domain.RiskError
		clientErr *domain.ClientError
	)
	switch {
	case errors.As(err, &riskErr):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &accErr):
		code = http.StatusBadRequest
		if errors.Is(err, domain.ErrUnknownSymbol) || errors.Is(err, domain.ErrUnknownAsset) || errors.Is(err, domain.ErrIsolatedAccountMissing) {
			code = http.StatusNotFound
		}
	case errors.Is(err, domain.ErrEngineStopped):
		code = http.StatusServiceUnavailable
	case errors.As(err, &clientErr):
		code = http.StatusBadGateway
	}

	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondWithJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	s.respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	scope, err := domain.ParseAccountScope(mux.Vars(r)["scope"])
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	balances, err := s.deps.Account.Balances(scope, domain.NormalizeSymbol(r.URL.Query().Get("symbol")))
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, balances)
}

type valueResponse struct {
	Denomination string          `json:"denomination"`
	Value        decimal.Decimal `json:"value"`
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chain == nil {
		s.respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "price conversion not available"})
		return
	}

	query := r.URL.Query()
	var filter account.ValueFilter
	for _, raw := range query["scope"] {
		scope, err := domain.ParseAccountScope(raw)
		if err != nil {
			s.badRequest(w, "%v", err)
			return
		}
		filter.Scopes = append(filter.Scopes, scope)
	}
	filter.Assets = query["asset"]
	for _, raw := range query["symbol"] {
		filter.Symbols = append(filter.Symbols, domain.NormalizeSymbol(raw))
	}

	denomination := mux.Vars(r)["denomination"]
	value, err := s.deps.Account.TotalFreeValue(r.Context(), denomination, filter, s.deps.Chain)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, valueResponse{Denomination: denomination, Value: value})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sel := account.OrderSelector{
		Symbol:   domain.NormalizeSymbol(query.Get("symbol")),
		Status:   domain.OrderStatus(query.Get("status")),
		OpenOnly: query.Get("open") == "true",
	}
	if raw := query.Get("scope"); raw != "" {
		scope, err := domain.ParseAccountScope(raw)
		if err != nil {
			s.badRequest(w, "%v", err)
			return
		}
		sel.Scope = scope
	}

	s.respondWithJSON(w, http.StatusOK, s.deps.Account.Orders(sel))
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "order store not configured"})
		return
	}

	list, err := s.deps.History.Orders(r.Context(), domain.NormalizeSymbol(r.URL.Query().Get("symbol")))
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, list)
}

type marginResponse struct {
	Cross    domain.MarginAccount        `json:"cross"`
	Isolated []domain.IsolatedMarginPair `json:"isolated"`
}

func (s *Server) handleMargin(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, marginResponse{
		Cross:    s.deps.Account.MarginAccount(),
		Isolated: s.deps.Account.IsolatedPairs(),
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(mux.Vars(r)["symbol"])
	if err := s.deps.Subscriptions.Subscribe(r.Context(), symbol, r.URL.Query().Get("create") == "true"); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Subscriptions.Unsubscribe(domain.NormalizeSymbol(mux.Vars(r)["symbol"])); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionRequest struct {
	Symbol       string          `json:"symbol"`
	Side         domain.Side     `json:"side"`
	Entry        decimal.Decimal `json:"entry"`
	Stop         decimal.Decimal `json:"stop"`
	AccountSize  decimal.Decimal `json:"account_size"`
	Denomination string          `json:"denomination"`
	RiskPct      decimal.Decimal `json:"risk_pct"`
	Margin       bool            `json:"margin"`
}

type positionResponse struct {
	Symbol domain.Symbol   `json:"symbol"`
	Size   decimal.Decimal `json:"size"`
	Asset  string          `json:"asset"`
}

func (s *Server) handlePositionSize(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "decode request: %v", err)
		return
	}

	inst, err := s.deps.Instruments.Lookup(req.Symbol)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	size, err := s.deps.Calculator.CalculatePositionSize(r.Context(), risk.PositionRequest{
		Instrument:   inst,
		Side:         req.Side,
		Entry:        req.Entry,
		Stop:         req.Stop,
		AccountSize:  req.AccountSize,
		Denomination: req.Denomination,
		RiskPct:      req.RiskPct,
		Margin:       req.Margin,
	})
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, positionResponse{Symbol: inst.Symbol, Size: size, Asset: inst.BaseAsset})
}

type marginRequest struct {
	Scope        string          `json:"scope"`
	Symbol       string          `json:"symbol"`
	Side         domain.Side     `json:"side"`
	Entry        decimal.Decimal `json:"entry"`
	Stop         decimal.Decimal `json:"stop"`
	PositionSize decimal.Decimal `json:"position_size"`
}

func (s *Server) handleMarginForTrade(w http.ResponseWriter, r *http.Request) {
	var req marginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "decode request: %v", err)
		return
	}

	scope, err := domain.ParseAccountScope(req.Scope)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	inst, err := s.deps.Instruments.Lookup(req.Symbol)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	res, err := s.deps.Calculator.MarginForTrade(scope, inst, req.Side, req.Entry, req.Stop, req.PositionSize)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleOrderStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orders == nil {
		s.respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "order stream not available"})
		return
	}
	ch := s.deps.Orders.Subscribe()
	defer s.deps.Orders.Unsubscribe(ch)

	streamEvents(w, r, "order", ch, s.logger)
}

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Balances == nil {
		s.respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "balance stream not available"})
		return
	}
	ch := s.deps.Balances.Subscribe()
	defer s.deps.Balances.Unsubscribe(ch)

	streamEvents(w, r, "balance", ch, s.logger)
}

// streamEvents writes values from ch as server-sent events until the client leaves or ch closes.
func streamEvents[T any](w http.ResponseWriter, r *http.Request, event string, ch <-chan T, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// send a comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case v, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(v)
			if err != nil {
				logger.Warn("encode stream event", zap.String("event", event), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
