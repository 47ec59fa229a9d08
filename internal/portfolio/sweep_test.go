package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavpartapsingh/velasa/internal/model"
	"github.com/pranavpartapsingh/velasa/internal/oracle"
	"github.com/pranavpartapsingh/velasa/internal/store"
)

// brownoutStore fails a set number of fills, simulating storage loss
// between trigger and commit.
type brownoutStore struct {
	*store.MemoryStore
	failFills int
}

func (s *brownoutStore) ApplyFill(ctx context.Context, username string, tx model.Transaction, newCash decimal.Decimal, newQty int64) error {
	if s.failFills > 0 {
		s.failFills--
		return errors.New("storage offline")
	}
	return s.MemoryStore.ApplyFill(ctx, username, tx, newCash, newQty)
}

func TestSweepFillsLimitBuyAtOrBelowLimit(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})

	// Above the limit: nothing happens.
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Price crosses: fills at the sweep price, not the limit.
	orc.SetPrice("AAPL", d("138"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	orders, err = engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)

	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("98620")), "cash = %s", cash)

	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), positions["AAPL"])
}

func TestSweepFillsLimitSellAtOrAboveLimit(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})

	limit := d("160")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideSell,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})

	orc.SetPrice("AAPL", d("162"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	// 100000 - 1500 + 1620
	assert.True(t, cash.Equal(d("100120")), "cash = %s", cash)
}

func TestSweepFillsStopSellWhenPriceFalls(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})

	trigger := d("130")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideSell,
		Kind: model.KindStop, TriggerPrice: &trigger, Validity: model.ValidityGTC,
	})

	// Still above the stop.
	orc.SetPrice("AAPL", d("131"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orc.SetPrice("AAPL", d("128"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, positions, "AAPL")
}

func TestSweepStopLimitNeedsBothConditions(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "AAPL", Quantity: 10, Side: model.SideBuy})

	// Sell when the price falls to 130, but no worse than 125.
	trigger := d("130")
	limit := d("125")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideSell,
		Kind: model.KindStopLimit, TriggerPrice: &trigger, LimitPrice: &limit,
		Validity: model.ValidityGTC,
	})

	// Stop crossed but below the limit: held.
	orc.SetPrice("AAPL", d("120"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Between limit and stop: fills.
	orc.SetPrice("AAPL", d("127"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	orders, err = engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSweepPurgesExpiredOrders(t *testing.T) {
	engine, orc, st := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	orc.SetPrice("AAPL", d("150"))
	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit,
	})

	engine.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	stored, err := st.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, stored, "expired order should be deleted from storage")

	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("100000")), "expiry must not move cash")
}

func TestSweepDropsOrderFailingReadmission(t *testing.T) {
	engine, orc, st := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	orc.SetPrice("TSLA", d("100"))

	// Affordable at admission time.
	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 100, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})

	// Spend the cash elsewhere before the trigger.
	mustTrade(t, engine, "alice", TradeRequest{Symbol: "TSLA", Quantity: 900, Side: model.SideBuy})

	orc.SetPrice("AAPL", d("138"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	// The order is gone without filling.
	stored, err := st.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, stored)

	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, positions, "AAPL")
}

func TestSweepSkipsSymbolWhenFeedDown(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})

	orc.RemovePrice("AAPL")
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))

	// Order survives the outage and fills once the feed recovers.
	orders, err := engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orc.SetPrice("AAPL", d("139"))
	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	orders, err = engine.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSweepAllWalksEveryAccount(t *testing.T) {
	engine, orc, _ := newTestEngine(t)
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	limit := d("140")
	for _, user := range []string{"alice", "bob"} {
		mustTrade(t, engine, user, TradeRequest{
			Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
			Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
		})
	}

	orc.SetPrice("AAPL", d("139"))
	sweeper.SweepAll(ctx)

	for _, user := range []string{"alice", "bob"} {
		positions, err := engine.Positions(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(10), positions["AAPL"])
	}
}

func TestSweepNeverRefillsAfterFillFailure(t *testing.T) {
	st := &brownoutStore{MemoryStore: store.NewMemoryStore()}
	orc := oracle.NewStaticOracle()
	engine := NewEngine(st, orc, nil, nil, d("100000"))
	ctx := context.Background()
	sweeper := NewSweeper(engine, time.Second)

	orc.SetPrice("AAPL", d("150"))
	limit := d("140")
	mustTrade(t, engine, "alice", TradeRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.SideBuy,
		Kind: model.KindLimit, LimitPrice: &limit, Validity: model.ValidityGTC,
	})

	orc.SetPrice("AAPL", d("138"))
	st.failFills = 1
	require.Error(t, sweeper.SweepAccount(ctx, "alice"))

	// The order was removed before the fill, so nothing is left to
	// fill again once storage recovers.
	stored, err := st.PendingOrders(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, sweeper.SweepAccount(ctx, "alice"))
	positions, err := engine.Positions(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, positions, "AAPL")
	cash, err := engine.Cash(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("100000")), "cash = %s", cash)
}
