package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradelab/internal/domain"
	"tradelab/internal/util"
)

// Compile-time interface checks.
var _ MarketDataSource = (*AlpacaSource)(nil)
var _ NewsSource = (*AlpacaSource)(nil)

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for the calendar
	DataURL   string // market data API
	Feed      string // "iex" or "sip"
}

// AlpacaSource reads US equity data from the Alpaca market-data API.
type AlpacaSource struct {
	data    *marketdata.Client
	trading *alpaca.Client
	feed    string
	log     *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource from opts.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	dataOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}
	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaSource{
		data: marketdata.NewClient(dataOpts),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		feed: feed,
		log:  slog.Default().With("source", "alpaca"),
	}
}

// Name returns the provider tag.
func (s *AlpacaSource) Name() string { return "alpaca" }

// FetchHistory fetches daily bars for multiple symbols in a single API call.
func (s *AlpacaSource) FetchHistory(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !end.IsZero() && end.Before(start) {
		return nil, util.Permanent(fmt.Errorf("end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly)))
	}

	multiBars, err := s.data.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.UTC(),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
				Provider:   s.Name(),
			})
		}
	}
	return bars, nil
}

// FetchQuotes fetches the latest quote for each symbol.
func (s *AlpacaSource) FetchQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	latest, err := s.data.GetLatestQuotes(symbols, marketdata.GetLatestQuoteRequest{Feed: s.feed})
	if err != nil {
		return nil, fmt.Errorf("GetLatestQuotes: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(latest))
	for symbol, q := range latest {
		quotes = append(quotes, domain.Quote{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: q.Timestamp.UTC(),
			Bid:       q.BidPrice,
			Ask:       q.AskPrice,
			BidSize:   float64(q.BidSize),
			AskSize:   float64(q.AskSize),
			Provider:  s.Name(),
		})
	}
	return quotes, nil
}

// FetchNews fetches up to limit articles mentioning symbol, oldest first.
func (s *AlpacaSource) FetchNews(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.NewsItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	articles, err := s.data.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		Start:      start,
		End:        end,
		TotalLimit: limit,
		Sort:       marketdata.SortAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews: %w", err)
	}

	items := make([]domain.NewsItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, domain.NewsItem{
			ID:          strconv.Itoa(a.ID),
			Symbol:      strings.ToUpper(symbol),
			PublishedAt: a.CreatedAt.UTC(),
			Title:       a.Headline,
			Summary:     a.Summary,
			Source:      s.Name(),
			Tickers:     a.Symbols,
		})
	}
	return items, nil
}

// LatestFinishedTradingDay asks the Alpaca trading calendar for the most
// recent session that has ended.
func (s *AlpacaSource) LatestFinishedTradingDay(now time.Time) (time.Time, error) {
	start := now.AddDate(0, 0, -7)
	days, err := s.trading.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	return latestFinishedDay(days, now)
}
