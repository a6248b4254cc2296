package binance

import (
	"fmt"
	"time"
)

// DataProviderError wraps any provider-side failure that is not rate
// limiting or an unknown symbol.
type DataProviderError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *DataProviderError) Error() string {
	return fmt.Sprintf("binance %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// RateLimitError reports a 429/418 with the venue's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("binance rate limited, retry after %s", e.RetryAfter)
}

// SymbolNotFoundError reports an unknown trading pair.
type SymbolNotFoundError struct {
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not found", e.Symbol)
}
