package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

const defaultAlphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantageProvider fetches quotes (GLOBAL_QUOTE), daily series
// (TIME_SERIES_DAILY), and company metadata (OVERVIEW) from Alpha
// Vantage. Requires an API key; the free tier is heavily rate limited
// and surfaces throttling as a "Note"/"Information" field in an
// otherwise 200 response.
type AlphaVantageProvider struct {
	apiKey  string
	cli     *http.Client
	baseURL string
}

// NewAlphaVantageProvider creates a provider for the given key.
func NewAlphaVantageProvider(apiKey string, timeout time.Duration) *AlphaVantageProvider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &AlphaVantageProvider{
		apiKey:  apiKey,
		cli:     &http.Client{Timeout: timeout},
		baseURL: defaultAlphaVantageBaseURL,
	}
}

func (p *AlphaVantageProvider) query(ctx context.Context, function, symbol string, out any) error {
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/query?function=%s&symbol=%s&apikey=%s",
		p.baseURL, function, url.QueryEscape(symbol), url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "velasa/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alphavantage http %d", resp.StatusCode)
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return err
	}
	if _, ok := fields["Note"]; ok {
		return ErrRateLimited
	}
	if _, ok := fields["Information"]; ok {
		return ErrRateLimited
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, out)
}

// CurrentPrice uses the GLOBAL_QUOTE endpoint.
func (p *AlphaVantageProvider) CurrentPrice(ctx context.Context, symbol string) (model.Quote, error) {
	var raw struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := p.query(ctx, "GLOBAL_QUOTE", symbol, &raw); err != nil {
		return model.Quote{}, err
	}
	if len(raw.GlobalQuote) == 0 {
		return model.Quote{}, ErrPriceNotFound
	}

	price, err := decimal.NewFromString(raw.GlobalQuote["05. price"])
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		return model.Quote{}, ErrPriceNotFound
	}

	asOf := time.Now().UTC()
	if day := raw.GlobalQuote["07. latest trading day"]; day != "" {
		if t, err := time.Parse("2006-01-02", day); err == nil {
			asOf = t
		}
	}

	return model.Quote{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Price:  price,
		AsOf:   asOf,
	}, nil
}

// HistoricalSeries uses TIME_SERIES_DAILY. Alpha Vantage keys bars by
// date string, so the series is re-sorted ascending here.
func (p *AlphaVantageProvider) HistoricalSeries(ctx context.Context, symbol, period string) ([]model.Candle, error) {
	var raw struct {
		Series map[string]struct {
			Open   string `json:"1. open"`
			High   string `json:"2. high"`
			Low    string `json:"3. low"`
			Close  string `json:"4. close"`
			Volume string `json:"5. volume"`
		} `json:"Time Series (Daily)"`
	}
	if err := p.query(ctx, "TIME_SERIES_DAILY", symbol, &raw); err != nil {
		return nil, err
	}
	if len(raw.Series) == 0 {
		return nil, nil
	}

	cutoff := periodCutoff(period, time.Now())

	candles := make([]model.Candle, 0, len(raw.Series))
	for day, bar := range raw.Series {
		t, err := time.Parse("2006-01-02", day)
		if err != nil || t.Before(cutoff) {
			continue
		}
		closeP, err := decimal.NewFromString(bar.Close)
		if err != nil {
			continue
		}
		c := model.Candle{Time: t, Close: closeP}
		c.Open, _ = decimal.NewFromString(bar.Open)
		c.High, _ = decimal.NewFromString(bar.High)
		c.Low, _ = decimal.NewFromString(bar.Low)
		c.Volume, _ = strconv.ParseInt(bar.Volume, 10, 64)
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}

// InstrumentInfo uses the OVERVIEW endpoint, which includes the sector.
func (p *AlphaVantageProvider) InstrumentInfo(ctx context.Context, symbol string) (model.InstrumentInfo, error) {
	var raw struct {
		Symbol string `json:"Symbol"`
		Name   string `json:"Name"`
		Sector string `json:"Sector"`
	}
	if err := p.query(ctx, "OVERVIEW", symbol, &raw); err != nil {
		return model.InstrumentInfo{}, err
	}
	if raw.Symbol == "" {
		return model.InstrumentInfo{}, ErrNoData
	}

	info := model.InstrumentInfo{
		Symbol: raw.Symbol,
		Name:   raw.Name,
		Sector: raw.Sector,
	}
	// Overview has no live quote; fill price fields from GLOBAL_QUOTE
	// on a best-effort basis.
	if q, err := p.CurrentPrice(ctx, symbol); err == nil {
		info.Price = q.Price
	}
	return info, nil
}

// periodCutoff maps a period name to the earliest bar date to keep.
func periodCutoff(period string, now time.Time) time.Time {
	switch period {
	case "1d":
		return now.AddDate(0, 0, -1)
	case "5d":
		return now.AddDate(0, 0, -5)
	case "1mo":
		return now.AddDate(0, -1, 0)
	case "3mo":
		return now.AddDate(0, -3, 0)
	case "6mo":
		return now.AddDate(0, -6, 0)
	case "2y":
		return now.AddDate(-2, 0, 0)
	case "5y":
		return now.AddDate(-5, 0, 0)
	default: // "1y"
		return now.AddDate(-1, 0, 0)
	}
}
