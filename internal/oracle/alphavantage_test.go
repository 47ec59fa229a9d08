package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlphaVantageTestServer(t *testing.T, handler http.HandlerFunc) *AlphaVantageProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewAlphaVantageProvider("test-key", time.Second)
	p.baseURL = srv.URL
	return p
}

func TestAlphaVantageCurrentPrice(t *testing.T) {
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"Global Quote": {
			"01. symbol": "IBM",
			"05. price": "182.5500",
			"07. latest trading day": "2026-08-28"
		}}`)
	})

	quote, err := p.CurrentPrice(context.Background(), "ibm")
	require.NoError(t, err)
	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, "182.55", quote.Price.String())
	assert.Equal(t, "2026-08-28", quote.AsOf.Format("2006-01-02"))
}

func TestAlphaVantageRateLimitNote(t *testing.T) {
	// Throttling arrives as a 200 with a Note body, not a 429.
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	})

	_, err := p.CurrentPrice(context.Background(), "IBM")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAlphaVantageEmptyQuote(t *testing.T) {
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Global Quote": {}}`)
	})

	_, err := p.CurrentPrice(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestAlphaVantageHistoricalSeriesSortedAscending(t *testing.T) {
	recent := time.Now().UTC()
	day := func(offset int) string { return recent.AddDate(0, 0, -offset).Format("2006-01-02") }

	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Time Series (Daily)": {
			%q: {"1. open": "10", "2. high": "11", "3. low": "9",  "4. close": "10.5", "5. volume": "100"},
			%q: {"1. open": "11", "2. high": "12", "3. low": "10", "4. close": "11.5", "5. volume": "200"},
			%q: {"1. open": "12", "2. high": "13", "3. low": "11", "4. close": "12.5", "5. volume": "300"}
		}}`, day(3), day(1), day(2))
	})

	candles, err := p.HistoricalSeries(context.Background(), "IBM", "1mo")
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, "10.5", candles[0].Close.String())
	assert.Equal(t, "11.5", candles[2].Close.String())
	assert.True(t, candles[0].Time.Before(candles[1].Time))
}

func TestAlphaVantageHistoricalSeriesHonorsPeriodCutoff(t *testing.T) {
	recent := time.Now().UTC()
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Time Series (Daily)": {
			%q: {"4. close": "10.5", "5. volume": "100"},
			%q: {"4. close": "11.5", "5. volume": "200"}
		}}`,
			recent.AddDate(0, 0, -2).Format("2006-01-02"),
			recent.AddDate(0, -2, 0).Format("2006-01-02"))
	})

	candles, err := p.HistoricalSeries(context.Background(), "IBM", "1mo")
	require.NoError(t, err)
	require.Len(t, candles, 1, "bars older than the period are dropped")
	assert.Equal(t, "10.5", candles[0].Close.String())
}

func TestAlphaVantageInstrumentInfo(t *testing.T) {
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "OVERVIEW":
			fmt.Fprint(w, `{"Symbol": "IBM", "Name": "International Business Machines", "Sector": "TECHNOLOGY"}`)
		case "GLOBAL_QUOTE":
			fmt.Fprint(w, `{"Global Quote": {"05. price": "182.55"}}`)
		}
	})

	info, err := p.InstrumentInfo(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, "International Business Machines", info.Name)
	assert.Equal(t, "TECHNOLOGY", info.Sector)
	assert.Equal(t, "182.55", info.Price.String())
}

func TestAlphaVantageUnknownOverview(t *testing.T) {
	p := newAlphaVantageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	_, err := p.InstrumentInfo(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNoData)
}
