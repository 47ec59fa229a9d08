// Package portfolio implements the paper-trading ledger engine: market
// order execution, conditional order admission and sweeping, valuation,
// and performance metrics. All monetary values use shopspring/decimal.
//
// Every mutation for an account runs under that account's write lock,
// so the cash/position/transaction triple can never be observed half
// applied and the ledger invariants (cash >= 0, positions >= 0) hold
// across concurrent callers.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/metrics"
	"github.com/pranavpartapsingh/velasa/internal/model"
	"github.com/pranavpartapsingh/velasa/internal/notify"
	"github.com/pranavpartapsingh/velasa/internal/oracle"
	"github.com/pranavpartapsingh/velasa/internal/risk"
	"github.com/pranavpartapsingh/velasa/internal/store"
)

// Rejection reasons returned to callers. Every rejected trade carries
// one of these; they are user-facing strings, not Go errors.
const (
	ReasonInvalidSymbol      = "invalid symbol"
	ReasonInvalidQuantity    = "quantity must be positive"
	ReasonInvalidSide        = "side must be buy or sell"
	ReasonInvalidKind        = "unsupported order kind"
	ReasonInvalidValidity    = "validity must be day or gtc"
	ReasonMissingLimitPrice  = "limit price required"
	ReasonMissingTrigger     = "trigger price required"
	ReasonPriceUnavailable   = "price unavailable"
	ReasonInsufficientCash   = "insufficient cash"
	ReasonInsufficientShares = "insufficient shares"
	ReasonPositionLimit      = "position limit exceeded"
)

// TradeRequest describes one trade submission.
type TradeRequest struct {
	Symbol       string           `json:"symbol"`
	Quantity     int64            `json:"quantity"`
	Side         string           `json:"side"`               // "buy" or "sell"
	Kind         string           `json:"kind"`               // defaults to "market"
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty"`
	Validity     string           `json:"validity,omitempty"` // defaults to "day"
}

// TradeResult is the outcome of a trade submission. Filled is set for
// immediate market fills, Queued for admitted conditional orders.
// Rejected submissions carry a specific Reason and mutate nothing.
type TradeResult struct {
	OK     bool                `json:"ok"`
	Reason string              `json:"reason,omitempty"`
	Filled *model.Transaction  `json:"filled,omitempty"`
	Queued *model.PendingOrder `json:"queued,omitempty"`
}

func rejected(reason string) TradeResult {
	metrics.TradeRejections.WithLabelValues(reason).Inc()
	return TradeResult{Reason: reason}
}

// Engine is the portfolio ledger engine, scoped per call to one
// authenticated account.
type Engine struct {
	store        store.Store
	oracle       oracle.Oracle
	notifier     notify.Notifier // optional
	limiter      *risk.Limiter   // optional
	startingCash decimal.Decimal
	locks        *accountLocks
	now          func() time.Time
	// entropy is shared across accounts, so it must be a locked reader:
	// the per-account lock does not serialize admissions for different
	// users.
	entropy *ulid.LockedMonotonicReader
}

// NewEngine creates an engine. notifier and limiter may be nil.
func NewEngine(st store.Store, orc oracle.Oracle, notifier notify.Notifier, limiter *risk.Limiter, startingCash decimal.Decimal) *Engine {
	return &Engine{
		store:        st,
		oracle:       orc,
		notifier:     notifier,
		limiter:      limiter,
		startingCash: startingCash,
		locks:        newAccountLocks(),
		now:          func() time.Time { return time.Now().UTC() },
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}
}

// EnsureAccount creates the ledger with the starting deposit if absent.
func (e *Engine) EnsureAccount(ctx context.Context, username string) error {
	return e.store.EnsureAccount(ctx, username, e.startingCash)
}

// DeleteAccount erases the account's ledger entirely.
func (e *Engine) DeleteAccount(ctx context.Context, username string) error {
	lock := e.locks.get(username)
	lock.Lock()
	defer lock.Unlock()
	return e.store.DeleteAccount(ctx, username)
}

// Cash returns the available cash balance.
func (e *Engine) Cash(ctx context.Context, username string) (decimal.Decimal, error) {
	lock := e.locks.get(username)
	lock.RLock()
	defer lock.RUnlock()
	return e.store.GetCash(ctx, username)
}

// Positions returns symbol to held quantity.
func (e *Engine) Positions(ctx context.Context, username string) (map[string]int64, error) {
	lock := e.locks.get(username)
	lock.RLock()
	defer lock.RUnlock()
	return e.store.GetPositions(ctx, username)
}

// snapshot reads cash, positions, and transactions under the account
// read lock so the triple is from one consistent ledger state.
func (e *Engine) snapshot(ctx context.Context, username string) (decimal.Decimal, map[string]int64, []model.Transaction, error) {
	lock := e.locks.get(username)
	lock.RLock()
	defer lock.RUnlock()

	cash, err := e.store.GetCash(ctx, username)
	if err != nil {
		return decimal.Zero, nil, nil, err
	}
	positions, err := e.store.GetPositions(ctx, username)
	if err != nil {
		return decimal.Zero, nil, nil, err
	}
	txs, err := e.store.Transactions(ctx, username)
	if err != nil {
		return decimal.Zero, nil, nil, err
	}
	return cash, positions, txs, nil
}

// PortfolioValue returns cash plus the mark-to-market value of every
// position. A symbol whose quote fails contributes zero; the valuation
// degrades rather than erroring when the feed is down.
func (e *Engine) PortfolioValue(ctx context.Context, username string) (decimal.Decimal, error) {
	cash, positions, _, err := e.snapshot(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}

	total := cash
	for symbol, qty := range positions {
		quote, err := e.oracle.CurrentPrice(ctx, symbol)
		if err != nil {
			metrics.OracleFailures.WithLabelValues("current_price").Inc()
			slog.Warn("valuation degraded, symbol priced at zero",
				"user", username, "symbol", symbol, "err", err)
			continue
		}
		total = total.Add(quote.Price.Mul(decimal.NewFromInt(qty)))
	}
	return total, nil
}

// PositionViews returns mark-to-market views of every holding, with
// blended entry price and unrealized P&L. Failed quotes leave the
// price fields zero.
func (e *Engine) PositionViews(ctx context.Context, username string) ([]model.Position, error) {
	_, positions, txs, err := e.snapshot(ctx, username)
	if err != nil {
		return nil, err
	}

	views := make([]model.Position, 0, len(positions))
	for symbol, qty := range positions {
		view := model.Position{
			Symbol:        symbol,
			Quantity:      qty,
			AvgEntryPrice: entryPrice(txs, symbol),
		}
		if quote, err := e.oracle.CurrentPrice(ctx, symbol); err == nil {
			view.CurrentPrice = quote.Price
			view.MarketValue = quote.Price.Mul(decimal.NewFromInt(qty))
			view.UnrealizedPnL = view.MarketValue.Sub(
				view.AvgEntryPrice.Mul(decimal.NewFromInt(qty)))
		} else {
			metrics.OracleFailures.WithLabelValues("current_price").Inc()
		}
		views = append(views, view)
	}
	return views, nil
}

// Metrics derives portfolio performance figures for display.
func (e *Engine) Metrics(ctx context.Context, username string) (model.PortfolioMetrics, error) {
	cash, positions, txs, err := e.snapshot(ctx, username)
	if err != nil {
		return model.PortfolioMetrics{}, err
	}

	total := cash
	for symbol, qty := range positions {
		quote, err := e.oracle.CurrentPrice(ctx, symbol)
		if err != nil {
			metrics.OracleFailures.WithLabelValues("current_price").Inc()
			continue
		}
		total = total.Add(quote.Price.Mul(decimal.NewFromInt(qty)))
	}

	hundred := decimal.NewFromInt(100)
	totalReturn := decimal.Zero
	if e.startingCash.IsPositive() {
		totalReturn = total.Sub(e.startingCash).Div(e.startingCash).Mul(hundred)
	}

	days := int64(1)
	if len(txs) > 0 {
		if d := int64(e.now().Sub(txs[0].Timestamp).Hours() / 24); d > days {
			days = d
		}
	}

	pending, err := e.PendingOrders(ctx, username)
	if err != nil {
		return model.PortfolioMetrics{}, err
	}

	return model.PortfolioMetrics{
		TotalValue:        total,
		Cash:              cash,
		InvestedValue:     total.Sub(cash),
		TotalReturnPct:    totalReturn,
		DailyReturnPct:    totalReturn.Div(decimal.NewFromInt(days)),
		PositionCount:     len(positions),
		PendingOrderCount: len(pending),
	}, nil
}

// TransactionHistory returns all transactions newest first.
func (e *Engine) TransactionHistory(ctx context.Context, username string) ([]model.Transaction, error) {
	lock := e.locks.get(username)
	lock.RLock()
	txs, err := e.store.Transactions(ctx, username)
	lock.RUnlock()
	if err != nil {
		return nil, err
	}

	// Stored order is insertion order; reverse for display.
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

// PendingOrders returns unexpired pending orders. Expired orders stay
// in storage until the sweeper purges them; they are only filtered
// from view here.
func (e *Engine) PendingOrders(ctx context.Context, username string) ([]model.PendingOrder, error) {
	lock := e.locks.get(username)
	lock.RLock()
	orders, err := e.store.PendingOrders(ctx, username)
	lock.RUnlock()
	if err != nil {
		return nil, err
	}

	now := e.now()
	live := make([]model.PendingOrder, 0, len(orders))
	for _, o := range orders {
		if o.Expired(now) {
			continue
		}
		live = append(live, o)
	}
	return live, nil
}

// CancelOrder removes one pending order.
func (e *Engine) CancelOrder(ctx context.Context, username, orderID string) error {
	lock := e.locks.get(username)
	lock.Lock()
	defer lock.Unlock()
	return e.store.RemovePendingOrder(ctx, username, orderID)
}

// ExecuteTrade validates and executes a trade submission. Market orders
// fill immediately; limit/stop/stop-limit orders are admission-checked
// and queued. Rejections are reported in the result, never as errors;
// the error return is for storage failures only.
func (e *Engine) ExecuteTrade(ctx context.Context, username string, req TradeRequest) (TradeResult, error) {
	symbol, err := model.NormalizeSymbol(req.Symbol)
	if err != nil {
		return rejected(ReasonInvalidSymbol), nil
	}
	if req.Quantity <= 0 {
		return rejected(ReasonInvalidQuantity), nil
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return rejected(ReasonInvalidSide), nil
	}

	kind := req.Kind
	if kind == "" {
		kind = model.KindMarket
	}
	validity := req.Validity
	if validity == "" {
		validity = model.ValidityDay
	}
	if validity != model.ValidityDay && validity != model.ValidityGTC {
		return rejected(ReasonInvalidValidity), nil
	}

	switch kind {
	case model.KindMarket:
	case model.KindLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return rejected(ReasonMissingLimitPrice), nil
		}
	case model.KindStop:
		if req.TriggerPrice == nil || !req.TriggerPrice.IsPositive() {
			return rejected(ReasonMissingTrigger), nil
		}
	case model.KindStopLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return rejected(ReasonMissingLimitPrice), nil
		}
		if req.TriggerPrice == nil || !req.TriggerPrice.IsPositive() {
			return rejected(ReasonMissingTrigger), nil
		}
	default:
		return rejected(ReasonInvalidKind), nil
	}

	if err := e.EnsureAccount(ctx, username); err != nil {
		return TradeResult{}, err
	}

	lock := e.locks.get(username)
	lock.Lock()
	defer lock.Unlock()

	if kind == model.KindMarket {
		start := time.Now()
		result, err := e.fillLocked(ctx, username, symbol, req.Quantity, req.Side, "market")
		if err == nil && result.OK {
			metrics.TradeLatency.WithLabelValues(req.Side).Observe(time.Since(start).Seconds())
		}
		return result, err
	}
	return e.admitOrderLocked(ctx, username, symbol, req, kind, validity)
}

// fillLocked executes a fill at the current oracle price. Caller holds
// the account write lock. source is "market" or "sweep" for metrics.
func (e *Engine) fillLocked(ctx context.Context, username, symbol string, quantity int64, side, source string) (TradeResult, error) {
	quote, err := e.oracle.CurrentPrice(ctx, symbol)
	if err != nil {
		metrics.OracleFailures.WithLabelValues("current_price").Inc()
		return rejected(ReasonPriceUnavailable), nil
	}
	return e.fillAtLocked(ctx, username, symbol, quantity, side, quote.Price, source)
}

// fillAtLocked applies the cash/position/transaction triple at the
// given fill price. Caller holds the account write lock.
func (e *Engine) fillAtLocked(ctx context.Context, username, symbol string, quantity int64, side string, price decimal.Decimal, source string) (TradeResult, error) {
	cash, err := e.store.GetCash(ctx, username)
	if err != nil {
		return TradeResult{}, err
	}
	positions, err := e.store.GetPositions(ctx, username)
	if err != nil {
		return TradeResult{}, err
	}

	qty := decimal.NewFromInt(quantity)
	gross := price.Mul(qty)

	var newCash decimal.Decimal
	var newQty int64
	entry := price

	if side == model.SideBuy {
		if gross.GreaterThan(cash) {
			return rejected(ReasonInsufficientCash), nil
		}
		if err := e.limiter.CheckLimit(symbol, quantity, positions); err != nil {
			return rejected(ReasonPositionLimit), nil
		}
		newCash = cash.Sub(gross)
		newQty = positions[symbol] + quantity
	} else {
		held := positions[symbol]
		if held < quantity {
			return rejected(ReasonInsufficientShares), nil
		}
		newCash = cash.Add(gross)
		newQty = held - quantity

		txs, err := e.store.Transactions(ctx, username)
		if err != nil {
			return TradeResult{}, err
		}
		entry = entryPrice(txs, symbol)
	}

	tx := model.Transaction{
		ID:         uuid.New().String(),
		Username:   username,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		EntryPrice: entry,
		Timestamp:  e.now(),
	}

	if err := e.store.ApplyFill(ctx, username, tx, newCash, newQty); err != nil {
		return TradeResult{}, err
	}

	metrics.TradesTotal.WithLabelValues(side, source).Inc()
	slog.Info("trade filled",
		"user", username,
		"symbol", symbol,
		"side", side,
		"qty", quantity,
		"price", price.String(),
		"cash", newCash.String(),
		"source", source,
	)

	e.publish(notify.Event{
		Username: username,
		Message: fmt.Sprintf("%s %d %s @ %s",
			fillVerb(side), quantity, symbol, price.StringFixed(2)),
		Category: notify.CategoryTrade,
		Priority: notify.PriorityNormal,
	})

	return TradeResult{OK: true, Filled: &tx}, nil
}

// admitOrderLocked runs the point-in-time admission check and queues a
// conditional order. Cash and positions can change before the order
// later fills, so the sweeper re-validates at fill time.
func (e *Engine) admitOrderLocked(ctx context.Context, username, symbol string, req TradeRequest, kind, validity string) (TradeResult, error) {
	cash, err := e.store.GetCash(ctx, username)
	if err != nil {
		return TradeResult{}, err
	}
	positions, err := e.store.GetPositions(ctx, username)
	if err != nil {
		return TradeResult{}, err
	}

	if req.Side == model.SideBuy {
		// Reserve against the limit price when set, else the current
		// quote.
		checkPrice := req.LimitPrice
		if checkPrice == nil {
			quote, err := e.oracle.CurrentPrice(ctx, symbol)
			if err != nil {
				metrics.OracleFailures.WithLabelValues("current_price").Inc()
				return rejected(ReasonPriceUnavailable), nil
			}
			checkPrice = &quote.Price
		}
		if checkPrice.Mul(decimal.NewFromInt(req.Quantity)).GreaterThan(cash) {
			return rejected(ReasonInsufficientCash), nil
		}
		if err := e.limiter.CheckLimit(symbol, req.Quantity, positions); err != nil {
			return rejected(ReasonPositionLimit), nil
		}
	} else if positions[symbol] < req.Quantity {
		return rejected(ReasonInsufficientShares), nil
	}

	now := e.now()
	order := model.PendingOrder{
		ID:           ulid.MustNew(ulid.Timestamp(now), e.entropy).String(),
		Username:     username,
		Symbol:       symbol,
		Side:         req.Side,
		Kind:         kind,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		Validity:     validity,
		CreatedAt:    now,
	}
	if validity == model.ValidityDay {
		expires := model.EndOfDay(now)
		order.ExpiresAt = &expires
	}

	if err := e.store.InsertPendingOrder(ctx, &order); err != nil {
		return TradeResult{}, err
	}

	metrics.OrdersQueued.Inc()
	slog.Info("order queued",
		"user", username,
		"order_id", order.ID,
		"symbol", symbol,
		"side", order.Side,
		"kind", kind,
		"qty", order.Quantity,
	)

	return TradeResult{OK: true, Queued: &order}, nil
}

func (e *Engine) publish(event notify.Event) {
	if e.notifier == nil {
		return
	}
	event.Timestamp = e.now()
	e.notifier.Publish(event)
}

func fillVerb(side string) string {
	if side == model.SideBuy {
		return "Bought"
	}
	return "Sold"
}

// entryPrice computes the volume-weighted average price of all buy
// transactions for symbol: a single blended cost basis, not FIFO/LIFO
// lot tracking.
func entryPrice(txs []model.Transaction, symbol string) decimal.Decimal {
	totalCost := decimal.Zero
	var totalQty int64
	for _, tx := range txs {
		if tx.Symbol != symbol || tx.Side != model.SideBuy {
			continue
		}
		totalCost = totalCost.Add(tx.Price.Mul(decimal.NewFromInt(tx.Quantity)))
		totalQty += tx.Quantity
	}
	if totalQty == 0 {
		return decimal.Zero
	}
	return totalCost.Div(decimal.NewFromInt(totalQty))
}
