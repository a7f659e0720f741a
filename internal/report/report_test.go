package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/engine"
	"tradelab/internal/portfolio"
	"tradelab/internal/store"
)

func sampleRun() *store.RunRecord {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	buy := domain.NewMarketOrder("AAPL", domain.OrderSideBuy, 500)
	sell := domain.NewMarketOrder("AAPL", domain.OrderSideSell, 200)
	return &store.RunRecord{
		ID:           "run-42",
		Strategy:     "sma-cross",
		Symbols:      []string{"AAPL"},
		Start:        d(2),
		End:          d(5),
		StartingCash: 1_000_000,
		FinalCash:    940_000,
		FinalEquity:  1_234_567.891,
		BarsLoaded:   1500,
		Metrics:      store.RunMetrics{TotalReturn: 0.2345, MaxDrawdown: 0.05, TotalTrades: 2, WinRate: 1, ProfitFactor: 0},
		Positions:    []portfolio.Position{{Symbol: "AAPL", Qty: 300, CostBasis: 120}},
		Fills: []domain.Fill{
			{Order: buy, Qty: 500, Price: 120, Timestamp: d(3)},
			{Order: sell, Qty: 200, Price: 150, Timestamp: d(4), RealizedPnL: 6000},
		},
		Equity: []store.EquityPoint{
			{Timestamp: d(2), Equity: 1_000_000},
			{Timestamp: d(3), Equity: 1_010_000},
			{Timestamp: d(4), Equity: 1_234_567.891},
		},
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, sampleRun()); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Backtest run-42",
		"sma-cross",
		"2024-01-02",
		"1,500",
		"1,000,000.00",
		"1,234,567.89",
		"23.45%",
		"Positions",
		"Fills",
		"SELL",
		"6,000.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRunList(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRunList(&buf, nil); err != nil {
		t.Fatalf("WriteRunList: %v", err)
	}
	if !strings.Contains(buf.String(), "no runs recorded") {
		t.Errorf("empty list = %q", buf.String())
	}

	buf.Reset()
	if err := WriteRunList(&buf, []store.RunRecord{*sampleRun()}); err != nil {
		t.Fatalf("WriteRunList: %v", err)
	}
	if !strings.Contains(buf.String(), "run-42") || !strings.Contains(buf.String(), "23.45%") {
		t.Errorf("run list = %q", buf.String())
	}
}

func TestRenderEquityChart(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderEquityChart(&buf, sampleRun()); err != nil {
		t.Fatalf("RenderEquityChart: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<html") || !strings.Contains(out, "2024-01-04") {
		t.Errorf("chart HTML missing page or axis labels")
	}

	empty := sampleRun()
	empty.Equity = nil
	if err := RenderEquityChart(&bytes.Buffer{}, empty); err == nil {
		t.Error("RenderEquityChart should fail without an equity curve")
	}
}

func TestWriteBars(t *testing.T) {
	var buf bytes.Buffer
	bars := []domain.Bar{{
		Symbol:    "AAPL",
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:      185.5, High: 188.44, Low: 183.89, Close: 185.64,
		Volume: 82_488_700,
	}}
	if err := WriteBars(&buf, "AAPL", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"AAPL", "2024-01-02", "185.64", "82,488,700"} {
		if !strings.Contains(out, want) {
			t.Errorf("bars output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteBars(&buf, "ZZZZ", nil); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if !strings.Contains(buf.String(), "no bars stored") {
		t.Errorf("empty bars output = %q", buf.String())
	}
}

func TestWriteDryRun(t *testing.T) {
	var buf bytes.Buffer
	rep := &engine.DryRunReport{
		Strategy:     "buy-and-hold",
		Symbols:      []string{"AAPL", "MSFT"},
		BarsLoaded:   1250,
		BarsBySymbol: map[string]int{"AAPL": 1250, "MSFT": 0},
		First:        time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		Last:         time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		StartingCash: 100_000,
	}
	if err := WriteDryRun(&buf, rep); err != nil {
		t.Fatalf("WriteDryRun: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"buy-and-hold", "1,250", "100,000.00", "2020-01-02", "2024-12-31", "MSFT"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry run output missing %q:\n%s", want, out)
		}
	}
}
