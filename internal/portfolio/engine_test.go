package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavpartapsingh/velasa/internal/model"
	"github.com/pranavpartapsingh/velasa/internal/oracle"
	"github.com/pranavpartapsingh/velasa/internal/risk"
	"github.com/pranavpartapsingh/velasa/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(t *testing.T) (*Engine, *oracle.StaticOracle, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	orc := oracle.NewStaticOracle()
	engine := NewEngine(st, orc, nil, nil, d("100000"))
	return engine, orc, st
}

func mustTrade(t *testing.T, e *Engine, user string, req TradeRequest) TradeResult {
	t.Helper()
	result, err := e.ExecuteTrade(context.Background(), user, req)
	require.NoError(t, err)
	require.True(t, result.OK, "trade rejected: %s", result.Reason)
	return result
}

func TestMarketBuyThenSellRoundTrip(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	result := mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})
	require.NotNil(t, result.Filled)
	assert.Equal(t, "AAPL", result.Filled.Symbol)
	assert.True(t, result.Filled.Price.Equal(d("150")))

	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("98500")), "cash = %s", cash)

	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), positions["AAPL"])

	orc.SetPrice("AAPL", d("160"))
	result = mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideSell})
	require.NotNil(t, result.Filled)
	assert.True(t, result.Filled.EntryPrice.Equal(d("150")),
		"sell should record blended entry price, got %s", result.Filled.EntryPrice)

	cash, err = engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("100100")), "cash = %s", cash)

	positions, err = engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, positions, "AAPL", "flat position should be removed")
}

func TestSellRecordsVolumeWeightedEntry(t *testing.T) {
	engine, orc, _ := newTestEngine(t)

	orc.SetPrice("MSFT", d("100"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "MSFT", Quantity: 10, Side: model.SideBuy})
	orc.SetPrice("MSFT", d("120"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "MSFT", Quantity: 5, Side: model.SideBuy})

	orc.SetPrice("MSFT", d("130"))
	result := mustTrade(t, engine, "alice", TradeRequest{Symbol: "MSFT", Quantity: 15, Side: model.SideSell})

	// (10*100 + 5*120) / 15 = 106.67
	assert.True(t, result.Filled.EntryPrice.Round(2).Equal(d("106.67")),
		"entry = %s", result.Filled.EntryPrice)
}

func TestBuyRejectedOnInsufficientCash(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	result, err := engine.ExecuteTrade(ctx, "alice", TradeRequest{Symbol: "AAPL", Quantity: 1000, Side: model.SideBuy})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonInsufficientCash, result.Reason)

	// The ledger must be untouched by a rejection.
	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("100000")))
	txs, err := engine.TransactionHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestSellRejectedOnInsufficientShares(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 5, Side: model.SideBuy})

	result, err := engine.ExecuteTrade(ctx, "alice", TradeRequest{Symbol: "AAPL", Quantity: 6, Side: model.SideSell})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonInsufficientShares, result.Reason)

	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), positions["AAPL"])
}

func TestTradeValidation(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	orc.SetPrice("AAPL", d("150"))
	limit := d("140")

	cases := []struct {
		name   string
		req    TradeRequest
		reason string
	}{
		{"bad symbol", TradeRequest{Symbol: "not a symbol!", Quantity: 1, Side: model.SideBuy}, ReasonInvalidSymbol},
		{"zero quantity", TradeRequest{Symbol: "AAPL", Quantity: 0, Side: model.SideBuy}, ReasonInvalidQuantity},
		{"negative quantity", TradeRequest{Symbol: "AAPL", Quantity: -3, Side: model.SideBuy}, ReasonInvalidQuantity},
		{"bad side", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: "hold"}, ReasonInvalidSide},
		{"bad kind", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy, Kind: "iceberg"}, ReasonInvalidKind},
		{"bad validity", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy, Kind: model.KindLimit, LimitPrice: &limit, Validity: "fortnight"}, ReasonInvalidValidity},
		{"limit without price", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy, Kind: model.KindLimit}, ReasonMissingLimitPrice},
		{"stop without trigger", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy, Kind: model.KindStop}, ReasonMissingTrigger},
		{"stop-limit without trigger", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy, Kind: model.KindStopLimit, LimitPrice: &limit}, ReasonMissingTrigger},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.ExecuteTrade(ctx, "alice", tc.req)
			require.NoError(t, err)
			assert.False(t, result.OK)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}
}

func TestMarketOrderRejectedWhenFeedDown(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.RemovePrice("AAPL")

	result, err := engine.ExecuteTrade(context.Background(), "alice", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonPriceUnavailable, result.Reason)
}

func TestConcurrentBuysAdmitExactlyOne(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.SetPrice("TSLA", d("100"))

	// Each order costs 70000 against 100000 cash, so only one can fill.
	const workers = 8
	var wg sync.WaitGroup
	results := make([]TradeResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.ExecuteTrade(context.Background(), "alice",
				TradeRequest{Symbol: "TSLA", Quantity: 700, Side: model.SideBuy})
		}(i)
	}
	wg.Wait()

	filled := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		if r.OK {
			filled++
		} else {
			assert.Equal(t, ReasonInsufficientCash, r.Reason)
		}
	}
	assert.Equal(t, 1, filled)

	cash, err := engine.Cash(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("30000")), "cash = %s", cash)
}

func TestConcurrentAdmissionsAcrossAccounts(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.SetPrice("AAPL", d("150"))
	limit := d("140")

	// Admissions for different users run under different account locks,
	// so the order ID generator sees them concurrently.
	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	ids := make([][]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user%02d", i)
			for j := 0; j < perWorker; j++ {
				result, err := engine.ExecuteTrade(context.Background(), user, TradeRequest{
					Symbol:     "AAPL",
					Quantity:   1,
					Side:       model.SideBuy,
					Kind:       model.KindLimit,
					LimitPrice: &limit,
					Validity:   model.ValidityGTC,
				})
				if err != nil {
					errs[i] = err
					return
				}
				if !result.OK {
					errs[i] = fmt.Errorf("rejected: %s", result.Reason)
					return
				}
				ids[i] = append(ids[i], result.Queued.ID)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers*perWorker)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		for _, id := range ids[i] {
			require.False(t, seen[id], "duplicate order id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestLedgerConservation(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	trades := []struct {
		symbol string
		price  string
		qty    int64
		side   string
	}{
		{"AAPL", "150.25", 10, model.SideBuy},
		{"MSFT", "310.10", 3, model.SideBuy},
		{"AAPL", "151.40", 4, model.SideSell},
		{"TSLA", "99.99", 7, model.SideBuy},
		{"MSFT", "305.00", 3, model.SideSell},
	}

	expected := d("100000")
	for _, tr := range trades {
		orc.SetPrice(tr.symbol, d(tr.price))
		mustTrade(t, engine, "alice", TradeRequest{Symbol: tr.symbol, Quantity: tr.qty, Side: tr.side})
		gross := d(tr.price).Mul(decimal.NewFromInt(tr.qty))
		if tr.side == model.SideBuy {
			expected = expected.Sub(gross)
		} else {
			expected = expected.Add(gross)
		}
	}

	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(expected), "cash = %s, want %s", cash, expected)
}

func TestValuationDegradesToZeroOnOracleFailure(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("200"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})

	total, err := engine.PortfolioValue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, total.Equal(d("100000")), "marked at cost, total = %s", total)

	// Feed outage: the position contributes zero, valuation still returns.
	orc.RemovePrice("AAPL")
	total, err = engine.PortfolioValue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, total.Equal(d("98000")), "total = %s", total)
}

func TestValuationIsIdempotent(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 4, Side: model.SideBuy})

	first, err := engine.PortfolioValue(ctx, "alice")
	require.NoError(t, err)
	second, err := engine.PortfolioValue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestTransactionHistoryNewestFirst(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy})
	orc.SetPrice("MSFT", d("300"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "MSFT", Quantity: 1, Side: model.SideBuy})

	txs, err := engine.TransactionHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "MSFT", txs[0].Symbol)
	assert.Equal(t, "AAPL", txs[1].Symbol)
}

func TestLimitOrderQueuedWithDayExpiry(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	orc.SetPrice("AAPL", d("150"))

	limit := d("140")
	result := mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit,
	})
	require.NotNil(t, result.Queued)
	assert.Equal(t, model.ValidityDay, result.Queued.Validity)
	require.NotNil(t, result.Queued.ExpiresAt)
	assert.True(t, result.Queued.ExpiresAt.After(result.Queued.CreatedAt))

	// Queuing must not move cash.
	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("100000")))

	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, result.Queued.ID, orders[0].ID)
}

func TestGTCOrderNeverExpires(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.SetPrice("AAPL", d("150"))

	limit := d("140")
	result := mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})
	assert.Nil(t, result.Queued.ExpiresAt)
}

func TestExpiredOrdersHiddenButNotDeleted(t *testing.T) {
	engine, orc, st := newTestEngine(t)
	ctx := context.Background()
	orc.SetPrice("AAPL", d("150"))

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit,
	})

	// Advance past end of day: hidden from view, still in storage.
	engine.now = func() time.Time { return base.Add(48 * time.Hour) }

	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)

	stored, err := st.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestConditionalBuyAdmissionChecksLimitPrice(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.SetPrice("AAPL", d("150"))

	// 1000 * 140 = 140000 > 100000: rejected at admission.
	limit := d("140")
	result, err := engine.ExecuteTrade(context.Background(), "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 1000, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonInsufficientCash, result.Reason)
}

func TestConditionalSellRequiresShares(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	orc.SetPrice("AAPL", d("150"))

	trigger := d("130")
	result, err := engine.ExecuteTrade(context.Background(), "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 5, Side: model.SideSell,
		Kind: model.KindStop, TriggerPrice: &trigger,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonInsufficientShares, result.Reason)
}

func TestCancelOrder(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	orc.SetPrice("AAPL", d("150"))

	limit := d("140")
	result := mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit,
	})

	require.NoError(t, engine.CancelOrder(ctx, "alice", result.Queued.ID))
	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)

	err = engine.CancelOrder(ctx, "alice", result.Queued.ID)
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}

func TestPositionLimitRejectsBuy(t *testing.T) {
	st := store.NewMemoryStore()
	orc := oracle.NewStaticOracle()
	engine := NewEngine(st, orc, nil, risk.NewLimiter(10, 0), d("100000"))
	orc.SetPrice("AAPL", d("10"))

	result, err := engine.ExecuteTrade(context.Background(), "alice",
		TradeRequest{Symbol: "AAPL", Quantity: 11, Side: model.SideBuy})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonPositionLimit, result.Reason)

	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})
}

func TestPortfolioMetrics(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("100"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 100, Side: model.SideBuy})

	// Price doubles: total = 90000 cash + 100*200 = 110000, +10%.
	orc.SetPrice("AAPL", d("200"))
	m, err := engine.Metrics(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.TotalValue.Equal(d("110000")), "total = %s", m.TotalValue)
	assert.True(t, m.Cash.Equal(d("90000")))
	assert.True(t, m.InvestedValue.Equal(d("20000")))
	assert.True(t, m.TotalReturnPct.Equal(d("10")), "return = %s", m.TotalReturnPct)
	assert.True(t, m.DailyReturnPct.Equal(d("10")), "first day divides by one")
	assert.Equal(t, 1, m.PositionCount)
	assert.Equal(t, 0, m.PendingOrderCount)
}

func TestPositionViews(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("100"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})
	orc.SetPrice("AAPL", d("110"))

	views, err := engine.PositionViews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(10), views[0].Quantity)
	assert.True(t, views[0].AvgEntryPrice.Equal(d("100")))
	assert.True(t, views[0].CurrentPrice.Equal(d("110")))
	assert.True(t, views[0].MarketValue.Equal(d("1100")))
	assert.True(t, views[0].UnrealizedPnL.Equal(d("100")))
}

func TestDeleteAccountErasesLedger(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy})

	require.NoError(t, engine.DeleteAccount(ctx, "alice"))

	// A fresh trade reseeds the starting deposit.
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 1, Side: model.SideBuy})
	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("99850")), "cash = %s", cash)
}
