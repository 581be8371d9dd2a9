package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"quantdb/internal/model"
)

// HTTPAdapter fetches market data from an AKShare-shaped HTTP vendor. It
// follows the teacher's Redis-cache-layer texture (bracket-prefixed
// [Upstream] log lines, TTL-less here since the adapter itself has no
// cache) but generalizes the NimbleMarkets download-manager's
// retryablehttp client plus the gonp-datareader ratelimit.RateLimiter into
// one adapter struct.
//
// The HTTP retry/backoff loop is retryablehttp's own (exponential,
// jittered); this adapter only classifies the final outcome into Kind so
// the fetch coordinator's own retry policy (spec.md §6.1, a distinct,
// higher-level retry around the whole segment) knows whether to try again.
type HTTPAdapter struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	baseURL string
}

// NewHTTPAdapter builds an adapter rate-limited to rps requests/second
// (burst capacity burst) and retrying each individual HTTP call up to
// maxRetries times before surfacing a Transient error.
func NewHTTPAdapter(baseURL string, timeout time.Duration, maxRetries int, rps float64, burst int) *HTTPAdapter {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.HTTPClient.Timeout = timeout
	client.Logger = stdLogAdapter{}

	var limiter *rate.Limiter
	if rps <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &HTTPAdapter{client: client, limiter: limiter, baseURL: baseURL}
}

// stdLogAdapter routes retryablehttp's internal retry/backoff chatter
// through the standard logger at the same bracket-prefixed style the
// teacher's cache layer uses.
type stdLogAdapter struct{}

func (stdLogAdapter) Printf(format string, args ...interface{}) {
	log.Printf("[Upstream] "+format, args...)
}

func (a *HTTPAdapter) do(ctx context.Context, op, symbol, path string, query url.Values, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return New(Transient, op, symbol, fmt.Errorf("rate limiter: %w", err))
	}

	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return New(Unknown, op, symbol, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return New(Transient, op, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return New(Transient, op, symbol, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return New(Unknown, op, symbol, fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return New(NotFound, op, symbol, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return New(Unauthorized, op, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest:
		return New(InvalidSymbol, op, symbol, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return New(Transient, op, symbol, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return New(Unknown, op, symbol, fmt.Errorf("status %d", resp.StatusCode))
	}
}

type dailyBarDTO struct {
	Date     string `json:"date"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   int64  `json:"volume"`
	Turnover string `json:"turnover"`
}

func (a *HTTPAdapter) FetchDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, adjust model.Adjust) ([]model.DailyBar, error) {
	q := url.Values{
		"symbol": {symbol},
		"market": {string(market)},
		"start":  {start.Format("2006-01-02")},
		"end":    {end.Format("2006-01-02")},
		"adjust": {string(adjust)},
	}

	var dtos []dailyBarDTO
	if err := a.do(ctx, "fetch_daily", symbol, "/stock/daily", q, &dtos); err != nil {
		return nil, err
	}

	bars := make([]model.DailyBar, 0, len(dtos))
	for _, d := range dtos {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return nil, New(Unknown, "fetch_daily", symbol, fmt.Errorf("parse date %q: %w", d.Date, err))
		}
		bar := model.DailyBar{
			Symbol:    symbol,
			TradeDate: date,
			Volume:    d.Volume,
			Adjust:    adjust,
		}
		if bar.Open, err = decimal.NewFromString(d.Open); err != nil {
			return nil, New(Unknown, "fetch_daily", symbol, err)
		}
		if bar.High, err = decimal.NewFromString(d.High); err != nil {
			return nil, New(Unknown, "fetch_daily", symbol, err)
		}
		if bar.Low, err = decimal.NewFromString(d.Low); err != nil {
			return nil, New(Unknown, "fetch_daily", symbol, err)
		}
		if bar.Close, err = decimal.NewFromString(d.Close); err != nil {
			return nil, New(Unknown, "fetch_daily", symbol, err)
		}
		if d.Turnover != "" {
			if bar.Turnover, err = decimal.NewFromString(d.Turnover); err != nil {
				return nil, New(Unknown, "fetch_daily", symbol, err)
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (a *HTTPAdapter) FetchIndexDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, period model.Period) ([]model.IndexBar, error) {
	q := url.Values{
		"symbol": {symbol},
		"market": {string(market)},
		"start":  {start.Format("2006-01-02")},
		"end":    {end.Format("2006-01-02")},
		"period": {string(period)},
	}

	var dtos []dailyBarDTO
	if err := a.do(ctx, "fetch_index_daily", symbol, "/index/daily", q, &dtos); err != nil {
		return nil, err
	}

	bars := make([]model.IndexBar, 0, len(dtos))
	for _, d := range dtos {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return nil, New(Unknown, "fetch_index_daily", symbol, fmt.Errorf("parse date %q: %w", d.Date, err))
		}
		bar := model.IndexBar{Symbol: symbol, TradeDate: date, Period: period, Volume: d.Volume}
		if bar.Open, err = decimal.NewFromString(d.Open); err != nil {
			return nil, New(Unknown, "fetch_index_daily", symbol, err)
		}
		if bar.High, err = decimal.NewFromString(d.High); err != nil {
			return nil, New(Unknown, "fetch_index_daily", symbol, err)
		}
		if bar.Low, err = decimal.NewFromString(d.Low); err != nil {
			return nil, New(Unknown, "fetch_index_daily", symbol, err)
		}
		if bar.Close, err = decimal.NewFromString(d.Close); err != nil {
			return nil, New(Unknown, "fetch_index_daily", symbol, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

type realtimeDTO struct {
	Price     string `json:"price"`
	Change    string `json:"change"`
	PctChange string `json:"pct_change"`
	Volume    int64  `json:"volume"`
	Turnover  string `json:"turnover"`
	PE        string `json:"pe"`
	PB        string `json:"pb"`
	MarketCap string `json:"market_cap"`
	AsOf      string `json:"as_of"`
}

func (a *HTTPAdapter) FetchRealtime(ctx context.Context, symbol string, market model.Market) (*model.RealtimeSnapshot, error) {
	q := url.Values{"symbol": {symbol}, "market": {string(market)}}

	var d realtimeDTO
	if err := a.do(ctx, "fetch_realtime", symbol, "/stock/realtime", q, &d); err != nil {
		return nil, err
	}

	snap := &model.RealtimeSnapshot{Symbol: symbol, Volume: d.Volume, CapturedAt: time.Now()}
	var err error
	if snap.LastPrice, err = decimal.NewFromString(d.Price); err != nil {
		return nil, New(Unknown, "fetch_realtime", symbol, err)
	}
	if d.Change != "" {
		if snap.Change, err = decimal.NewFromString(d.Change); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	if d.PctChange != "" {
		if snap.PctChange, err = decimal.NewFromString(d.PctChange); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	if d.Turnover != "" {
		if snap.Turnover, err = decimal.NewFromString(d.Turnover); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	if d.PE != "" {
		if snap.PE, err = decimal.NewFromString(d.PE); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	if d.PB != "" {
		if snap.PB, err = decimal.NewFromString(d.PB); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	if d.MarketCap != "" {
		if snap.MarketCap, err = decimal.NewFromString(d.MarketCap); err != nil {
			return nil, New(Unknown, "fetch_realtime", symbol, err)
		}
	}
	return snap, nil
}

type assetDTO struct {
	DisplayName string `json:"display_name"`
	Industry    string `json:"industry"`
	ListingDate string `json:"listing_date"`
	PE          string `json:"pe"`
	PB          string `json:"pb"`
	ROE         string `json:"roe"`
	TotalShares int64  `json:"total_shares"`
	FloatShares int64  `json:"float_shares"`
	MarketCap   string `json:"market_cap"`
}

func (a *HTTPAdapter) FetchAsset(ctx context.Context, symbol string, market model.Market) (*model.Asset, error) {
	q := url.Values{"symbol": {symbol}, "market": {string(market)}}

	var d assetDTO
	if err := a.do(ctx, "fetch_asset", symbol, "/stock/info", q, &d); err != nil {
		return nil, err
	}

	asset := &model.Asset{
		Symbol:              symbol,
		DisplayName:         d.DisplayName,
		Market:              market,
		Industry:            d.Industry,
		TotalShares:         d.TotalShares,
		FloatShares:         d.FloatShares,
		MetadataSource:      "akshare",
		LastMetadataRefresh: time.Now(),
	}
	var err error
	if d.ListingDate != "" {
		if asset.ListingDate, err = time.Parse("2006-01-02", d.ListingDate); err != nil {
			return nil, New(Unknown, "fetch_asset", symbol, err)
		}
	}
	if d.PE != "" {
		if asset.PE, err = decimal.NewFromString(d.PE); err != nil {
			return nil, New(Unknown, "fetch_asset", symbol, err)
		}
	}
	if d.PB != "" {
		if asset.PB, err = decimal.NewFromString(d.PB); err != nil {
			return nil, New(Unknown, "fetch_asset", symbol, err)
		}
	}
	if d.ROE != "" {
		if asset.ROE, err = decimal.NewFromString(d.ROE); err != nil {
			return nil, New(Unknown, "fetch_asset", symbol, err)
		}
	}
	if d.MarketCap != "" {
		if asset.MarketCap, err = decimal.NewFromString(d.MarketCap); err != nil {
			return nil, New(Unknown, "fetch_asset", symbol, err)
		}
	}
	return asset, nil
}

func (a *HTTPAdapter) FetchFinancialSummary(ctx context.Context, symbol string, indicators bool) (*model.FinancialSummary, error) {
	path := "/stock/financial_summary"
	if indicators {
		path = "/stock/financial_indicators"
	}
	q := url.Values{"symbol": {symbol}}

	var raw map[string]string
	if err := a.do(ctx, "fetch_financial_summary", symbol, path, q, &raw); err != nil {
		return nil, err
	}

	metrics := make(map[string]decimal.Decimal, len(raw))
	var period string
	for k, v := range raw {
		if k == "period" {
			period = v
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			continue // non-numeric metadata field, skip rather than fail the whole summary
		}
		metrics[k] = d
	}

	return &model.FinancialSummary{
		Symbol:     symbol,
		Period:     period,
		Indicators: indicators,
		Metrics:    metrics,
		FetchedAt:  time.Now(),
	}, nil
}
