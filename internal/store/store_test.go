package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePaths(t *testing.T) {
	ps := NewParquetStore("/data")

	if got, want := ps.barPath("aapl", "us", 2024), filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet"); got != want {
		t.Errorf("barPath = %s, want %s", got, want)
	}
	if got, want := ps.quotePath("TSLA", "us"), filepath.Join("/data", "us", "quotes", "TSLA.parquet"); got != want {
		t.Errorf("quotePath = %s, want %s", got, want)
	}
	if got, want := ps.newsPath(newsKey(""), "cn"), filepath.Join("/data", "cn", "news", "_general.parquet"); got != want {
		t.Errorf("newsPath = %s, want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(2023, 12, 29), Open: 193, High: 194, Low: 191, Close: 192.5, Volume: 42000000, Provider: "alpaca"},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 50000000, TradeCount: 500000, VWAP: 185.25, Provider: "alpaca"},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 45000000, Provider: "alpaca"},
	}
	if err := ps.WriteBars(ctx, "us", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "us", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186 {
		t.Errorf("closes = %v, %v, want 185.5, 186", got[0].Close, got[1].Close)
	}
	if !got[0].Timestamp.Equal(day(2024, 1, 2)) {
		t.Errorf("Timestamp = %v, want 2024-01-02", got[0].Timestamp)
	}
	if got[0].Provider != "alpaca" || got[0].VWAP != 185.25 {
		t.Errorf("bar = %+v, want provider and VWAP preserved", got[0])
	}

	all, err := ps.ReadBars(ctx, "AAPL", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars unbounded: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("unbounded ReadBars returned %d bars, want 3", len(all))
	}
	if !all[0].Timestamp.Equal(day(2023, 12, 29)) {
		t.Errorf("first bar = %v, want 2023-12-29", all[0].Timestamp)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Close: 408},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Close: 403},
	}
	if err := ps.WriteBars(ctx, "us", first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	// Same timestamp replaces, new timestamp merges.
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Close: 409},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 5), Close: 410},
	}
	if err := ps.WriteBars(ctx, "us", second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	want := []float64{403, 409, 410}
	if len(got) != len(want) {
		t.Fatalf("ReadBars returned %d bars after merge, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Close != w {
			t.Errorf("bar %d Close = %v, want %v", i, got[i].Close, w)
		}
	}
}

func TestParquetStoreWriteKeepsUnreadableFile(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	path := ps.barPath("IBM", "us", 2024)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	garbage := []byte("not a parquet file")
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}

	err := ps.WriteBars(ctx, "us", []domain.Bar{{Symbol: "IBM", Timestamp: day(2024, 3, 1), Close: 190}})
	if err == nil {
		t.Fatal("WriteBars over an unreadable file should fail")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(garbage) {
		t.Errorf("unreadable file was overwritten")
	}

	quotePath := ps.quotePath("IBM", "us")
	if err := os.MkdirAll(filepath.Dir(quotePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(quotePath, garbage, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ps.WriteQuotes(ctx, "us", []domain.Quote{{Symbol: "IBM", Timestamp: day(2024, 3, 1), Bid: 189}}); err == nil {
		t.Error("WriteQuotes over an unreadable file should fail")
	}
}

func TestParquetStoreLatestBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "NVDA", Timestamp: day(2023, 12, 28), Close: 1},
		{Symbol: "NVDA", Timestamp: day(2023, 12, 29), Close: 2},
		{Symbol: "NVDA", Timestamp: day(2024, 1, 2), Close: 3},
	}
	if err := ps.WriteBars(ctx, "us", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.LatestBars(ctx, "NVDA", "us", 2)
	if err != nil {
		t.Fatalf("LatestBars: %v", err)
	}
	if len(got) != 2 || got[0].Close != 2 || got[1].Close != 3 {
		t.Fatalf("LatestBars = %+v, want closes [2 3]", got)
	}

	none, err := ps.LatestBars(ctx, "AMD", "us", 5)
	if err != nil || len(none) != 0 {
		t.Fatalf("LatestBars(unknown) = %v, %v, want empty", none, err)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: day(2024, 1, 2), Close: 140.5},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Close: 185.5},
	}
	if err := ps.WriteBars(ctx, "us", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	empty, err := ps.ListSymbols(ctx, "cn")
	if err != nil || len(empty) != 0 {
		t.Errorf("ListSymbols(cn) = %v, %v, want empty", empty, err)
	}
}

func TestParquetStoreQuotes(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

	quotes := []domain.Quote{
		{Symbol: "AAPL", Timestamp: ts, Bid: 170, Ask: 170.1, BidSize: 3, AskSize: 5, Provider: "alpaca"},
		{Symbol: "AAPL", Timestamp: ts, Bid: 170.02, Ask: 170.08, Provider: "alpaca"},
		{Symbol: "AAPL", Timestamp: ts.Add(time.Minute), Bid: 171, Ask: 171.1, Provider: "alpaca"},
	}
	if err := ps.WriteQuotes(ctx, "us", quotes); err != nil {
		t.Fatalf("WriteQuotes: %v", err)
	}

	got, err := ps.ReadQuotes(ctx, "AAPL", "us", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadQuotes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadQuotes returned %d quotes, want 2 after dedupe", len(got))
	}
	if got[0].Bid != 170.02 {
		t.Errorf("first quote Bid = %v, want the later write 170.02", got[0].Bid)
	}

	missing, err := ps.ReadQuotes(ctx, "MSFT", "us", time.Time{}, time.Time{})
	if err != nil || missing != nil {
		t.Errorf("ReadQuotes(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestParquetStoreNews(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	items := []domain.NewsItem{
		{ID: "1", Symbol: "AAPL", PublishedAt: day(2024, 5, 1), Title: "old", Tickers: []string{"AAPL", "MSFT"}},
		{ID: "2", Symbol: "AAPL", PublishedAt: day(2024, 5, 2), Title: "new"},
		{ID: "3", PublishedAt: day(2024, 5, 2), Title: "macro"},
	}
	if err := ps.WriteNews(ctx, "us", items); err != nil {
		t.Fatalf("WriteNews: %v", err)
	}
	if err := ps.WriteNews(ctx, "us", items[:1]); err != nil {
		t.Fatalf("WriteNews (again): %v", err)
	}

	got, err := ps.ReadNews(ctx, "AAPL", "us", 0)
	if err != nil {
		t.Fatalf("ReadNews: %v", err)
	}
	if len(got) != 2 || got[0].Title != "new" || got[1].Title != "old" {
		t.Fatalf("ReadNews = %+v, want [new old]", got)
	}
	if len(got[1].Tickers) != 2 {
		t.Errorf("Tickers = %v, want [AAPL MSFT]", got[1].Tickers)
	}

	general, err := ps.ReadNews(ctx, "", "us", 1)
	if err != nil || len(general) != 1 || general[0].Title != "macro" {
		t.Fatalf("ReadNews(general) = %+v, %v, want [macro]", general, err)
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs", "tradelab.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	ctx := context.Background()

	buy := domain.NewMarketOrder("AAPL", domain.OrderSideBuy, 5)
	run := &RunRecord{
		ID:           "run-1",
		Strategy:     "sma-cross",
		Params:       map[string]any{"symbol": "AAPL", "short_window": float64(2)},
		Symbols:      []string{"AAPL"},
		Market:       "us",
		Start:        day(2024, 1, 1),
		End:          day(2024, 6, 30),
		StartingCash: 1000,
		FinalCash:    940.1,
		FinalEquity:  1000.3,
		BarsLoaded:   6,
		Metrics:      RunMetrics{TotalReturn: 0.0003, TotalTrades: 1},
		Positions:    []portfolio.Position{{Symbol: "AAPL", Qty: 5, CostBasis: 11.98}},
		Fills:        []domain.Fill{{Order: buy, Price: 11.98, Qty: 5, Timestamp: day(2024, 1, 5)}},
		Equity:       []EquityPoint{{Timestamp: day(2024, 1, 5), Equity: 1000}, {Timestamp: day(2024, 1, 8), Equity: 1000.3}},
		CreatedAt:    time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.FinalCash != 940.1 || got.FinalEquity != 1000.3 {
		t.Errorf("money = %v/%v, want 940.1/1000.3", got.FinalCash, got.FinalEquity)
	}
	if got.Params["symbol"] != "AAPL" {
		t.Errorf("Params = %v, want symbol AAPL", got.Params)
	}
	if len(got.Positions) != 1 || got.Positions[0].CostBasis != 11.98 {
		t.Errorf("Positions = %+v", got.Positions)
	}
	if len(got.Fills) != 1 || got.Fills[0].Order.ID != buy.ID || got.Fills[0].Order.Side != domain.OrderSideBuy {
		t.Errorf("Fills = %+v", got.Fills)
	}
	if len(got.Equity) != 2 || !got.Equity[1].Timestamp.Equal(day(2024, 1, 8)) {
		t.Errorf("Equity = %+v", got.Equity)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}

	older := *run
	older.ID = "run-0"
	older.CreatedAt = run.CreatedAt.Add(-time.Hour)
	older.Fills, older.Equity, older.Positions = nil, nil, nil
	if err := s.SaveRun(ctx, &older); err != nil {
		t.Fatalf("SaveRun(older): %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" || runs[1].ID != "run-0" {
		t.Fatalf("ListRuns = %v, want newest first", runs)
	}

	if err := s.SaveRun(ctx, run); err == nil {
		t.Error("SaveRun with duplicate ID should fail")
	}
}
