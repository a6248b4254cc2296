package feed

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"crypto-trading-bot/internal/binance"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/market"
)

// HistoricalFeed replays a candle range from a provider, page by page,
// strictly ascending and deduplicated, optionally through a cache.
type HistoricalFeed struct {
	provider Provider
	cache    Cache // may be nil
	pageSize int
	retries  uint64
	log      *logging.Logger
}

// NewHistoricalFeed creates a replay feed. A nil cache disables
// caching; pageSize is capped by providers at their own maximum.
func NewHistoricalFeed(provider Provider, cache Cache, pageSize int, log *logging.Logger) *HistoricalFeed {
	if pageSize <= 0 {
		pageSize = binance.MaxKlinesPerRequest
	}
	return &HistoricalFeed{
		provider: provider,
		cache:    cache,
		pageSize: pageSize,
		retries:  5,
		log:      log.WithComponent("feed.historical"),
	}
}

// Stream fetches [start, end) and replays it on the returned channel.
// The fetch happens up front so a provider failure surfaces as an
// error return, not mid-stream.
func (f *HistoricalFeed) Stream(ctx context.Context, symbol, interval string, start, end int64) (<-chan market.Snapshot, <-chan Event, error) {
	candles, err := f.fetchRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, nil, err
	}

	data := make(chan market.Snapshot)
	eventsCh := make(chan Event, 4)

	go func() {
		defer close(data)
		defer close(eventsCh)

		eventsCh <- Event{Type: Connected, Timestamp: time.Now()}
		for _, c := range candles {
			snap := market.NewSnapshot(c)
			select {
			case data <- snap:
			case <-ctx.Done():
				return
			}
		}
		eventsCh <- Event{Type: Disconnected, Timestamp: time.Now(), Message: "replay complete"}
	}()

	return data, eventsCh, nil
}

// fetchRange pages through the provider, deduplicating on candle open
// time so cache boundaries never emit a timestamp twice.
func (f *HistoricalFeed) fetchRange(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error) {
	key := CacheKey(symbol, interval, start, end)
	if f.cache != nil {
		if candles, ok := f.cache.Get(ctx, key); ok {
			f.log.Debug("cache hit", "key", key, "candles", len(candles))
			return candles, nil
		}
	}

	var all []market.Candle
	lastTs := int64(-1)
	cursor := start

	for {
		page, err := f.fetchPage(ctx, symbol, interval, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			if c.Timestamp <= lastTs {
				continue
			}
			if end > 0 && c.Timestamp >= end {
				break
			}
			all = append(all, c)
			lastTs = c.Timestamp
		}
		if len(page) < f.pageSize {
			break
		}
		next := page[len(page)-1].Timestamp + 1
		if next <= cursor {
			break
		}
		cursor = next
		if end > 0 && cursor >= end {
			break
		}
	}

	if err := market.ValidateSequence(all); err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.Set(ctx, key, all); err != nil {
			f.log.Warn("cache store failed", "key", key, "error", err)
		}
	}
	f.log.Info("range fetched", "symbol", symbol, "interval", interval, "candles", len(all))
	return all, nil
}

// fetchPage retries transient provider errors with exponential
// backoff. Unknown symbols are permanent and fail immediately.
func (f *HistoricalFeed) fetchPage(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error) {
	var page []market.Candle
	operation := func() error {
		candles, err := f.provider.FetchCandles(ctx, symbol, interval, start, end, f.pageSize)
		if err != nil {
			var notFound *binance.SymbolNotFoundError
			if errors.As(err, &notFound) {
				return backoff.Permanent(err)
			}
			var rl *binance.RateLimitError
			if errors.As(err, &rl) {
				// Honor the venue's retry-after hint before the next attempt.
				f.log.Warn("provider rate limited", "retry_after", rl.RetryAfter)
				select {
				case <-time.After(rl.RetryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
				return err
			}
			f.log.Warn("provider fetch failed", "symbol", symbol, "error", err)
			return err
		}
		page = candles
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.retries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return page, nil
}

// BinanceProvider adapts the Binance client to the Provider interface.
type BinanceProvider struct {
	Client *binance.Client
}

func (p *BinanceProvider) FetchCandles(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error) {
	klines, err := p.Client.GetKlinesRange(ctx, symbol, interval, start, end, limit)
	if err != nil {
		return nil, err
	}
	candles := make([]market.Candle, len(klines))
	for i, k := range klines {
		candles[i] = k.ToCandle(symbol, interval)
	}
	return candles, nil
}
