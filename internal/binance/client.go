// Package binance provides the market data provider for historical
// klines and current prices, with client-side rate limiting.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
	"crypto-trading-bot/internal/metrics"
)

const (
	// DefaultBaseURL is the Binance spot REST endpoint.
	DefaultBaseURL = "https://api.binance.com"

	// MaxKlinesPerRequest is the venue's page-size cap.
	MaxKlinesPerRequest = 1000
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger
}

// NewClient creates a provider client limited to requestsPerMinute.
func NewClient(baseURL string, requestsPerMinute int, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1200
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute/10+1),
		log:        log.WithComponent("binance"),
	}
}

// Kline represents a candlestick
type Kline struct {
	OpenTime                 int64   `json:"openTime"`
	Open                     float64 `json:"open,string"`
	High                     float64 `json:"high,string"`
	Low                      float64 `json:"low,string"`
	Close                    float64 `json:"close,string"`
	Volume                   float64 `json:"volume,string"`
	CloseTime                int64   `json:"closeTime"`
	QuoteAssetVolume         float64 `json:"quoteAssetVolume,string"`
	NumberOfTrades           int     `json:"numberOfTrades"`
	TakerBuyBaseAssetVolume  float64 `json:"takerBuyBaseAssetVolume,string"`
	TakerBuyQuoteAssetVolume float64 `json:"takerBuyQuoteAssetVolume,string"`
}

// ToCandle converts a kline into the pipeline's candle record.
func (k Kline) ToCandle(symbol, interval string) market.Candle {
	return market.Candle{
		Timestamp:           k.OpenTime,
		Symbol:              symbol,
		Interval:            interval,
		Open:                k.Open,
		High:                k.High,
		Low:                 k.Low,
		Close:               k.Close,
		Volume:              k.Volume,
		QuoteVolume:         k.QuoteAssetVolume,
		TradeCount:          k.NumberOfTrades,
		TakerBuyVolume:      k.TakerBuyBaseAssetVolume,
		TakerBuyQuoteVolume: k.TakerBuyQuoteAssetVolume,
	}
}

// GetKlinesRange fetches one page of candlesticks for [start, end),
// both in epoch milliseconds. A zero start or end is omitted from the
// request; limit is capped at the venue maximum.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Kline, error) {
	if limit <= 0 || limit > MaxKlinesPerRequest {
		limit = MaxKlinesPerRequest
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		params.Set("startTime", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		params.Set("endTime", strconv.FormatInt(end, 10))
	}

	body, err := c.get(ctx, "/api/v3/klines", params, symbol)
	if err != nil {
		return nil, err
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, &DataProviderError{Endpoint: "/api/v3/klines", Message: fmt.Sprintf("parse: %v", err)}
	}

	klines := make([]Kline, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 11 {
			continue
		}
		klines = append(klines, Kline{
			OpenTime:                 int64(asFloat(raw[0])),
			Open:                     parseFloat(raw[1]),
			High:                     parseFloat(raw[2]),
			Low:                      parseFloat(raw[3]),
			Close:                    parseFloat(raw[4]),
			Volume:                   parseFloat(raw[5]),
			CloseTime:                int64(asFloat(raw[6])),
			QuoteAssetVolume:         parseFloat(raw[7]),
			NumberOfTrades:           int(asFloat(raw[8])),
			TakerBuyBaseAssetVolume:  parseFloat(raw[9]),
			TakerBuyQuoteAssetVolume: parseFloat(raw[10]),
		})
	}
	return klines, nil
}

// GetCurrentPrice fetches the latest trade price for a symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/price", params, symbol)
	if err != nil {
		return 0, err
	}

	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, &DataProviderError{Endpoint: "/api/v3/ticker/price", Message: fmt.Sprintf("parse: %v", err)}
	}
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, &DataProviderError{Endpoint: "/api/v3/ticker/price", Message: fmt.Sprintf("bad price %q", result.Price)}
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, symbol string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &DataProviderError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &DataProviderError{Endpoint: endpoint, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		metrics.ProviderRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		retry := 60 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retry = time.Duration(secs) * time.Second
			}
		}
		c.log.Warn("rate limited", "endpoint", endpoint, "retry_after", retry)
		return nil, &RateLimitError{RetryAfter: retry}
	case resp.StatusCode == http.StatusBadRequest && isUnknownSymbol(body):
		metrics.ProviderRequests.WithLabelValues(endpoint, "bad_symbol").Inc()
		return nil, &SymbolNotFoundError{Symbol: symbol}
	default:
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &DataProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

// isUnknownSymbol matches Binance error code -1121.
func isUnknownSymbol(body []byte) bool {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return false
	}
	return apiErr.Code == -1121
}

func asFloat(val interface{}) float64 {
	f, _ := val.(float64)
	return f
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	}
	return 0
}
