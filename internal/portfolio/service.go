package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/identity"
	"github.com/pranavpartapsingh/velasa/internal/model"
	"github.com/pranavpartapsingh/velasa/internal/notify"
	"github.com/pranavpartapsingh/velasa/internal/oracle"
	"github.com/pranavpartapsingh/velasa/internal/store"
)

// Service exposes the portfolio engine and market data over HTTP. All
// routes require an authenticated username in the request context (see
// identity.Middleware).
type Service struct {
	engine *Engine
	oracle oracle.Oracle
	center *notify.Center // optional notification inbox
}

// NewService creates the HTTP service. center may be nil when the
// notification inbox is not mounted.
func NewService(engine *Engine, orc oracle.Oracle, center *notify.Center) *Service {
	return &Service{engine: engine, oracle: orc, center: center}
}

// Routes mounts all portfolio and market data endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/trade", s.ExecuteTrade)
	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/portfolio/metrics", s.GetMetrics)
	r.Get("/positions", s.GetPositions)
	r.Get("/cash", s.GetCash)
	r.Get("/transactions", s.GetTransactions)
	r.Get("/orders", s.GetPendingOrders)
	r.Delete("/orders/{orderID}", s.CancelOrder)
	r.Delete("/account", s.DeleteAccount)

	r.Get("/quotes/{symbol}", s.GetQuote)
	r.Get("/quotes/{symbol}/history", s.GetQuoteHistory)
	r.Get("/quotes/{symbol}/info", s.GetInstrumentInfo)

	if s.center != nil {
		r.Get("/notifications", s.GetNotifications)
		r.Post("/notifications/{id}/read", s.MarkNotificationRead)
		r.Post("/notifications/read-all", s.MarkAllNotificationsRead)
	}
}

// PortfolioResponse is the dashboard payload: cash, valuation, and
// per-position detail.
type PortfolioResponse struct {
	Username   string           `json:"username"`
	Cash       decimal.Decimal  `json:"cash"`
	TotalValue decimal.Decimal  `json:"total_value"`
	Positions  []model.Position `json:"positions"`
}

// ExecuteTrade handles POST /api/v1/trade.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.ExecuteTrade(r.Context(), username, req)
	if err != nil {
		writeError(w, "trade execution failed", http.StatusInternalServerError)
		return
	}
	if !result.OK {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetPortfolio handles GET /api/v1/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())
	ctx := r.Context()

	if err := s.engine.EnsureAccount(ctx, username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	cash, err := s.engine.Cash(ctx, username)
	if err != nil {
		writeError(w, "failed to load cash", http.StatusInternalServerError)
		return
	}
	total, err := s.engine.PortfolioValue(ctx, username)
	if err != nil {
		writeError(w, "failed to compute valuation", http.StatusInternalServerError)
		return
	}
	positions, err := s.engine.PositionViews(ctx, username)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		Username:   username,
		Cash:       cash,
		TotalValue: total,
		Positions:  positions,
	})
}

// GetMetrics handles GET /api/v1/portfolio/metrics.
func (s *Service) GetMetrics(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	if err := s.engine.EnsureAccount(r.Context(), username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	m, err := s.engine.Metrics(r.Context(), username)
	if err != nil {
		writeError(w, "failed to compute metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPositions handles GET /api/v1/positions.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	if err := s.engine.EnsureAccount(r.Context(), username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	positions, err := s.engine.Positions(r.Context(), username)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetCash handles GET /api/v1/cash.
func (s *Service) GetCash(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	if err := s.engine.EnsureAccount(r.Context(), username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	cash, err := s.engine.Cash(r.Context(), username)
	if err != nil {
		writeError(w, "failed to load cash", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"cash": cash})
}

// GetTransactions handles GET /api/v1/transactions.
// Returns the full history newest first.
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	if err := s.engine.EnsureAccount(r.Context(), username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	txs, err := s.engine.TransactionHistory(r.Context(), username)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// GetPendingOrders handles GET /api/v1/orders.
// Expired orders are filtered from view, not deleted here.
func (s *Service) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	if err := s.engine.EnsureAccount(r.Context(), username); err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	orders, err := s.engine.PendingOrders(r.Context(), username)
	if err != nil {
		writeError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.PendingOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())
	orderID := chi.URLParam(r, "orderID")

	err := s.engine.CancelOrder(r.Context(), username, orderID)
	if errors.Is(err, store.ErrOrderNotFound) || errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to cancel order", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /api/v1/account. Erases the whole
// ledger; invoked by the account-deletion flow in the web tier.
func (s *Service) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	err := s.engine.DeleteAccount(r.Context(), username)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to delete account", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetQuote handles GET /api/v1/quotes/{symbol}.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := s.oracle.CurrentPrice(r.Context(), symbol)
	if err != nil {
		writeError(w, "quote unavailable for "+symbol, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// GetQuoteHistory handles GET /api/v1/quotes/{symbol}/history?period=1mo.
// A degraded feed yields an empty series, not an error.
func (s *Service) GetQuoteHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1mo"
	}

	candles, err := s.oracle.HistoricalSeries(r.Context(), symbol, period)
	if err != nil || candles == nil {
		candles = []model.Candle{}
	}
	writeJSON(w, http.StatusOK, candles)
}

// GetInstrumentInfo handles GET /api/v1/quotes/{symbol}/info.
// Fails soft to an empty record.
func (s *Service) GetInstrumentInfo(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	info, err := s.oracle.InstrumentInfo(r.Context(), symbol)
	if err != nil {
		info = model.InstrumentInfo{Symbol: symbol}
	}
	writeJSON(w, http.StatusOK, info)
}

// GetNotifications handles GET /api/v1/notifications?unread=true.
func (s *Service) GetNotifications(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"

	writeJSON(w, http.StatusOK, s.center.List(username, unreadOnly))
}

// MarkNotificationRead handles POST /api/v1/notifications/{id}/read.
func (s *Service) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if !s.center.MarkRead(username, id) {
		writeError(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead handles POST /api/v1/notifications/read-all.
func (s *Service) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	username, _ := identity.FromContext(r.Context())
	s.center.MarkAllRead(username)
	w.WriteHeader(http.StatusNoContent)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
