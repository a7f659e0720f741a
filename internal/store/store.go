// Package store defines storage interfaces for persisting and retrieving
// market data and backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// ErrRunNotFound is returned by RunStore.GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end]
	// in time order. A zero start or end leaves that side unbounded.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// LatestBars returns up to limit of the most recent bars for symbol, oldest first.
	LatestBars(ctx context.Context, symbol string, market string, limit int) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// QuoteStore persists and retrieves top-of-book quotes.
type QuoteStore interface {
	// WriteQuotes persists a batch of quotes to storage.
	WriteQuotes(ctx context.Context, market string, quotes []domain.Quote) error

	// ReadQuotes returns quotes for symbol within [start, end].
	ReadQuotes(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Quote, error)
}

// NewsStore persists and retrieves news items.
type NewsStore interface {
	// WriteNews persists a batch of news items.
	WriteNews(ctx context.Context, market string, items []domain.NewsItem) error

	// ReadNews returns up to limit of the newest items for symbol, newest
	// first. An empty symbol reads general market news.
	ReadNews(ctx context.Context, symbol string, market string, limit int) ([]domain.NewsItem, error)
}

// RunStore persists finished backtest runs.
type RunStore interface {
	// SaveRun inserts a run with its final positions, fills and equity curve.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a single run by ID, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, without their
	// fills and equity curve.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// RunMetrics are the summary statistics stored with a run.
type RunMetrics struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
}

// EquityPoint is one sample of a run's equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// RunRecord is the persisted form of a finished backtest.
type RunRecord struct {
	ID           string               `json:"id"`
	Strategy     string               `json:"strategy"`
	Params       map[string]any       `json:"params,omitempty"`
	Symbols      []string             `json:"symbols"`
	Market       string               `json:"market"`
	Start        time.Time            `json:"start"`
	End          time.Time            `json:"end"`
	StartingCash float64              `json:"starting_cash"`
	FinalCash    float64              `json:"final_cash"`
	FinalEquity  float64              `json:"final_equity"`
	BarsLoaded   int                  `json:"bars_loaded"`
	Metrics      RunMetrics           `json:"metrics"`
	Positions    []portfolio.Position `json:"positions"`
	Fills        []domain.Fill        `json:"fills,omitempty"`
	Equity       []EquityPoint        `json:"equity,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}
