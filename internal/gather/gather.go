// Package gather pulls market data from external providers and writes it to
// the local stores.
package gather

import (
	"context"
	"time"

	"tradelab/internal/domain"
)

// MarketDataSource fetches bars and quotes from a provider.
type MarketDataSource interface {
	// Name returns the provider tag recorded on every bar it produces.
	Name() string

	// FetchHistory returns daily bars for symbols within [start, end].
	FetchHistory(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error)

	// FetchQuotes returns the latest quote for each symbol that has one.
	FetchQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// NewsSource is implemented by providers that also publish news.
type NewsSource interface {
	FetchNews(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.NewsItem, error)
}
