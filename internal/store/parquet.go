package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradelab/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ QuoteStore = (*ParquetStore)(nil)
var _ NewsStore = (*ParquetStore)(nil)

// generalNewsKey is the directory name for news not tied to a symbol.
const generalNewsKey = "_general"

// ParquetStore implements BarStore, QuoteStore and NewsStore using Parquet
// files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
	Provider   string  `parquet:"provider"`
}

// QuoteRecord is the Parquet schema for quote snapshots.
type QuoteRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Bid       float64 `parquet:"bid"`
	Ask       float64 `parquet:"ask"`
	BidSize   float64 `parquet:"bid_size"`
	AskSize   float64 `parquet:"ask_size"`
	Provider  string  `parquet:"provider"`
}

// NewsRecord is the Parquet schema for news items. Tickers is a
// comma-separated list.
type NewsRecord struct {
	ID          string `parquet:"id"`
	Symbol      string `parquet:"symbol"`
	PublishedAt int64  `parquet:"published_at,timestamp(millisecond)"` // Unix ms
	Title       string `parquet:"title"`
	Summary     string `parquet:"summary"`
	Source      string `parquet:"source"`
	Sentiment   string `parquet:"sentiment"`
	Tickers     string `parquet:"tickers"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk are merged with the new batch; a bar with the same
// (symbol, timestamp) is replaced.
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		k := key{symbol: sym, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     sym,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
			Provider:   b.Provider,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readExisting[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.barYears(symbol, market)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if !start.IsZero() && year < start.UTC().Year() {
			continue
		}
		if !end.IsZero() && year > end.UTC().Year() {
			continue
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if inRange(ts, start, end) {
				bars = append(bars, r.toDomain(ts))
			}
		}
	}
	return bars, nil
}

// LatestBars returns the most recent bars for symbol, reading year files
// newest first until limit bars are collected.
func (s *ParquetStore) LatestBars(_ context.Context, symbol string, market string, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		return nil, nil
	}
	years, err := s.barYears(symbol, market)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for i := len(years) - 1; i >= 0 && len(bars) < limit; i-- {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, years[i]))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, years[i], err)
		}
		chunk := make([]domain.Bar, 0, len(records))
		for _, r := range records {
			chunk = append(chunk, r.toDomain(time.UnixMilli(r.Timestamp).UTC()))
		}
		bars = append(chunk, bars...)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (r BarRecord) toDomain(ts time.Time) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  ts,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
		Provider:   r.Provider,
	}
}

// barYears lists the years with a bar file for symbol, ascending.
func (s *ParquetStore) barYears(symbol, market string) ([]int, error) {
	dir := filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if !ok || e.IsDir() {
			continue
		}
		if year, err := strconv.Atoi(name); err == nil {
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// QuoteStore implementation
// ---------------------------------------------------------------------------

// WriteQuotes appends quotes to one file per symbol at:
//
//	<DataDir>/<market>/quotes/<SYMBOL>.parquet
func (s *ParquetStore) WriteQuotes(_ context.Context, market string, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	groups := make(map[string][]QuoteRecord)
	for _, q := range quotes {
		sym := strings.ToUpper(q.Symbol)
		groups[sym] = append(groups[sym], QuoteRecord{
			Symbol:    sym,
			Timestamp: q.Timestamp.UnixMilli(),
			Bid:       q.Bid,
			Ask:       q.Ask,
			BidSize:   q.BidSize,
			AskSize:   q.AskSize,
			Provider:  q.Provider,
		})
	}

	for sym, records := range groups {
		path := s.quotePath(sym, market)

		existing, err := readExisting[QuoteRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing quotes for %s: %w", sym, err)
		}
		merged := mergeQuoteRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing quotes for %s: %w", sym, err)
		}
	}
	return nil
}

// ReadQuotes reads quotes for symbol within [start, end].
func (s *ParquetStore) ReadQuotes(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Quote, error) {
	records, err := readParquetFile[QuoteRecord](s.quotePath(symbol, market))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading quotes for %s: %w", symbol, err)
	}

	var quotes []domain.Quote
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !inRange(ts, start, end) {
			continue
		}
		quotes = append(quotes, domain.Quote{
			Symbol:    r.Symbol,
			Timestamp: ts,
			Bid:       r.Bid,
			Ask:       r.Ask,
			BidSize:   r.BidSize,
			AskSize:   r.AskSize,
			Provider:  r.Provider,
		})
	}
	return quotes, nil
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// WriteNews stores items in one file per symbol at:
//
//	<DataDir>/<market>/news/<SYMBOL>.parquet
//
// Items without a symbol go to the _general file. Items are deduplicated by ID.
func (s *ParquetStore) WriteNews(_ context.Context, market string, items []domain.NewsItem) error {
	if len(items) == 0 {
		return nil
	}

	groups := make(map[string][]NewsRecord)
	for _, n := range items {
		key := newsKey(n.Symbol)
		groups[key] = append(groups[key], NewsRecord{
			ID:          n.ID,
			Symbol:      strings.ToUpper(n.Symbol),
			PublishedAt: n.PublishedAt.UnixMilli(),
			Title:       n.Title,
			Summary:     n.Summary,
			Source:      n.Source,
			Sentiment:   n.Sentiment,
			Tickers:     strings.Join(n.Tickers, ","),
		})
	}

	for key, records := range groups {
		path := s.newsPath(key, market)

		existing, err := readExisting[NewsRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing news for %s: %w", key, err)
		}
		merged := mergeNewsRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing news for %s: %w", key, err)
		}
	}
	return nil
}

// ReadNews returns the newest items for symbol, newest first.
func (s *ParquetStore) ReadNews(_ context.Context, symbol string, market string, limit int) ([]domain.NewsItem, error) {
	records, err := readParquetFile[NewsRecord](s.newsPath(newsKey(symbol), market))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading news for %s: %w", newsKey(symbol), err)
	}

	var items []domain.NewsItem
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(items) == limit {
			break
		}
		r := records[i]
		var tickers []string
		if r.Tickers != "" {
			tickers = strings.Split(r.Tickers, ",")
		}
		items = append(items, domain.NewsItem{
			ID:          r.ID,
			Symbol:      r.Symbol,
			PublishedAt: time.UnixMilli(r.PublishedAt).UTC(),
			Title:       r.Title,
			Summary:     r.Summary,
			Source:      r.Source,
			Sentiment:   r.Sentiment,
			Tickers:     tickers,
		})
	}
	return items, nil
}

func newsKey(symbol string) string {
	if symbol == "" {
		return generalNewsKey
	}
	return strings.ToUpper(symbol)
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// quotePath returns the filesystem path for a quote Parquet file.
// Layout: <dataDir>/<market>/quotes/<SYMBOL>.parquet
func (s *ParquetStore) quotePath(symbol, market string) string {
	return filepath.Join(s.DataDir, market, "quotes", strings.ToUpper(symbol)+".parquet")
}

// newsPath returns the filesystem path for a news Parquet file.
// Layout: <dataDir>/<market>/news/<KEY>.parquet
func (s *ParquetStore) newsPath(key, market string) string {
	return filepath.Join(s.DataDir, market, "news", key+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readExisting reads path for a merge, treating a missing file as empty.
func readExisting[T any](path string) ([]T, error) {
	rows, err := readParquetFile[T](path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// inRange reports whether ts lies in [start, end]; zero bounds are open.
func inRange(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && ts.After(end) {
		return false
	}
	return true
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeQuoteRecords deduplicates quote records by (symbol, timestamp),
// preferring new records over existing ones.
func mergeQuoteRecords(existing, incoming []QuoteRecord) []QuoteRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]QuoteRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]QuoteRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeNewsRecords deduplicates news records by ID, preferring new records.
// Results are sorted by publication time.
func mergeNewsRecords(existing, incoming []NewsRecord) []NewsRecord {
	seen := make(map[string]NewsRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]NewsRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].PublishedAt != merged[j].PublishedAt {
			return merged[i].PublishedAt < merged[j].PublishedAt
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
