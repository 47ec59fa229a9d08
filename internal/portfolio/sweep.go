package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/metrics"
	"github.com/pranavpartapsingh/velasa/internal/model"
	"github.com/pranavpartapsingh/velasa/internal/notify"
)

// Sweeper periodically walks every account's pending orders, purging
// expired ones and filling those whose trigger condition is met at the
// latest oracle price. Each account is swept under its own write lock,
// so a trigger-fill can never race a user-initiated trade.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper creates a sweeper over the engine's accounts.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{engine: engine, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

// SweepAll sweeps every account once.
func (s *Sweeper) SweepAll(ctx context.Context) {
	usernames, err := s.engine.store.ListAccounts(ctx)
	if err != nil {
		slog.Error("sweep: list accounts failed", "err", err)
		return
	}
	for _, username := range usernames {
		if err := s.SweepAccount(ctx, username); err != nil {
			slog.Error("sweep: account failed", "user", username, "err", err)
		}
	}
}

// SweepAccount processes one account's pending orders. Exported so
// tests and admin tooling can force a sweep.
func (s *Sweeper) SweepAccount(ctx context.Context, username string) error {
	e := s.engine
	lock := e.locks.get(username)
	lock.Lock()
	defer lock.Unlock()

	orders, err := e.store.PendingOrders(ctx, username)
	if err != nil {
		return err
	}

	now := e.now()
	quotes := make(map[string]*decimal.Decimal) // symbol -> price, nil on feed failure

	for _, order := range orders {
		if order.Expired(now) {
			if err := e.store.RemovePendingOrder(ctx, username, order.ID); err != nil {
				return err
			}
			metrics.OrdersExpired.Inc()
			slog.Info("order expired", "user", username, "order_id", order.ID, "symbol", order.Symbol)
			e.publish(notify.Event{
				Username: username,
				Message:  fmt.Sprintf("%s order for %d %s expired", order.Kind, order.Quantity, order.Symbol),
				Category: notify.CategoryOrder,
				Priority: notify.PriorityNormal,
			})
			continue
		}

		price, ok := quotes[order.Symbol]
		if !ok {
			if quote, err := e.oracle.CurrentPrice(ctx, order.Symbol); err == nil {
				price = &quote.Price
			} else {
				metrics.OracleFailures.WithLabelValues("current_price").Inc()
			}
			quotes[order.Symbol] = price
		}
		if price == nil {
			continue // feed down for this symbol, retry next sweep
		}

		if !shouldTrigger(&order, *price) {
			continue
		}

		// Remove before filling: a storage failure mid-fill must not
		// leave a filled order pending, or the next sweep fills it again.
		if err := e.store.RemovePendingOrder(ctx, username, order.ID); err != nil {
			return err
		}
		// Admission is re-run inside the fill; an order that no longer
		// passes is dropped rather than left to retrigger forever.
		result, err := e.fillAtLocked(ctx, username, order.Symbol, order.Quantity, order.Side, *price, "sweep")
		if err != nil {
			slog.Error("triggered order removed but fill failed",
				"user", username, "order_id", order.ID, "symbol", order.Symbol, "err", err)
			return err
		}
		if !result.OK {
			metrics.OrdersDropped.Inc()
			slog.Info("order dropped at re-admission",
				"user", username, "order_id", order.ID, "reason", result.Reason)
		}
	}
	return nil
}

// shouldTrigger reports whether the order's condition is met at price.
func shouldTrigger(order *model.PendingOrder, price decimal.Decimal) bool {
	switch order.Kind {
	case model.KindLimit:
		return limitSatisfied(order, price)
	case model.KindStop:
		return stopCrossed(order, price)
	case model.KindStopLimit:
		return stopCrossed(order, price) && limitSatisfied(order, price)
	}
	return false
}

// limitSatisfied: a buy fills at or below the limit, a sell at or above.
func limitSatisfied(order *model.PendingOrder, price decimal.Decimal) bool {
	if order.LimitPrice == nil {
		return false
	}
	if order.Side == model.SideBuy {
		return price.LessThanOrEqual(*order.LimitPrice)
	}
	return price.GreaterThanOrEqual(*order.LimitPrice)
}

// stopCrossed: a buy stop triggers at or above the trigger price, a
// sell stop (stop-loss) at or below.
func stopCrossed(order *model.PendingOrder, price decimal.Decimal) bool {
	if order.TriggerPrice == nil {
		return false
	}
	if order.Side == model.SideBuy {
		return price.GreaterThanOrEqual(*order.TriggerPrice)
	}
	return price.LessThanOrEqual(*order.TriggerPrice)
}
