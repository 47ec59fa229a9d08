package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

const defaultYahooBaseURL = "https://query2.finance.yahoo.com"

// validPeriods maps accepted period names to the Yahoo range parameter.
var validPeriods = map[string]string{
	"1d": "1d", "5d": "5d", "1mo": "1mo", "3mo": "3mo",
	"6mo": "6mo", "1y": "1y", "2y": "2y", "5y": "5y",
}

// YahooProvider fetches quotes and history from the Yahoo Finance v8
// chart API. No API key required.
type YahooProvider struct {
	cli     *http.Client
	baseURL string
}

// NewYahooProvider creates a provider with the given per-request timeout.
func NewYahooProvider(timeout time.Duration) *YahooProvider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &YahooProvider{
		cli:     &http.Client{Timeout: timeout},
		baseURL: defaultYahooBaseURL,
	}
}

// chartResponse is the subset of the v8 chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, interval, rng string) (*chartResponse, error) {
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		p.baseURL, url.PathEscape(symbol), interval, rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "velasa/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	return &raw, nil
}

// CurrentPrice returns the regular market price, falling back to the
// last non-zero close when the meta block is stale.
func (p *YahooProvider) CurrentPrice(ctx context.Context, symbol string) (model.Quote, error) {
	raw, err := p.fetchChart(ctx, symbol, "1m", "1d")
	if err != nil {
		return model.Quote{}, err
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0)

	if (price <= 0 || r.Meta.RegularMarketTime == 0) &&
		len(r.Timestamp) > 0 && len(r.Indicators.Quote) > 0 &&
		len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if c := r.Indicators.Quote[0].Close[i]; c > 0 {
				price = c
				asOf = time.Unix(r.Timestamp[i], 0)
				break
			}
		}
	}

	if price <= 0 {
		return model.Quote{}, ErrPriceNotFound
	}
	if asOf.IsZero() || asOf.Unix() <= 0 {
		asOf = time.Now()
	}

	return model.Quote{
		Symbol: r.Meta.Symbol,
		Price:  decimal.NewFromFloat(price),
		AsOf:   asOf.UTC(),
	}, nil
}

// HistoricalSeries returns daily OHLCV bars for the period.
func (p *YahooProvider) HistoricalSeries(ctx context.Context, symbol, period string) ([]model.Candle, error) {
	rng, ok := validPeriods[period]
	if !ok {
		rng = "1mo"
	}
	raw, err := p.fetchChart(ctx, symbol, "1d", rng)
	if err != nil {
		return nil, err
	}

	r := raw.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := r.Indicators.Quote[0]

	candles := make([]model.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(q.Close) || q.Close[i] <= 0 {
			continue // gaps in the feed, skip the bar
		}
		c := model.Candle{
			Time:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(q.Close[i]),
		}
		if i < len(q.Open) {
			c.Open = decimal.NewFromFloat(q.Open[i])
		}
		if i < len(q.High) {
			c.High = decimal.NewFromFloat(q.High[i])
		}
		if i < len(q.Low) {
			c.Low = decimal.NewFromFloat(q.Low[i])
		}
		if i < len(q.Volume) {
			c.Volume = q.Volume[i]
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// InstrumentInfo derives metadata from the chart meta block. The chart
// API carries no sector data, so Sector stays empty here.
func (p *YahooProvider) InstrumentInfo(ctx context.Context, symbol string) (model.InstrumentInfo, error) {
	raw, err := p.fetchChart(ctx, symbol, "1d", "5d")
	if err != nil {
		return model.InstrumentInfo{}, err
	}

	meta := raw.Chart.Result[0].Meta
	info := model.InstrumentInfo{
		Symbol: meta.Symbol,
		Name:   meta.LongName,
	}
	if info.Name == "" {
		info.Name = meta.ShortName
	}
	if meta.RegularMarketPrice > 0 {
		info.Price = decimal.NewFromFloat(meta.RegularMarketPrice)
		if meta.ChartPreviousClose > 0 {
			prev := decimal.NewFromFloat(meta.ChartPreviousClose)
			info.ChangePct = info.Price.Sub(prev).Div(prev).
				Mul(decimal.NewFromInt(100)).Round(2)
		}
	}
	if q := raw.Chart.Result[0].Indicators.Quote; len(q) > 0 {
		for i := len(q[0].Volume) - 1; i >= 0; i-- {
			if q[0].Volume[i] > 0 {
				info.Volume = q[0].Volume[i]
				break
			}
		}
	}
	return info, nil
}
