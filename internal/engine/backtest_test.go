package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/domain"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
	"tradelab/internal/strategy/builtins"
)

func seedBars(t *testing.T, bars ...[]domain.Bar) *store.ParquetStore {
	t.Helper()
	ps := store.NewParquetStore(t.TempDir())
	for _, b := range bars {
		require.NoError(t, ps.WriteBars(context.Background(), "us", b))
	}
	return ps
}

func TestBacktesterRunPersistsResult(t *testing.T) {
	ps := seedBars(t, closes("AAPL", 10, 9, 8, 12, 7, 6))
	runs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer runs.Close()

	bt := NewBacktester(ps, builtins.NewRegistry(), WithRunStore(runs))
	res, err := bt.Run(context.Background(), Request{
		Strategy:     "sma-cross",
		Params:       map[string]any{"short_window": 2, "long_window": 3, "qty": 5},
		Symbols:      []string{"aapl"},
		StartingCash: 1000,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 6, res.BarsLoaded)
	assert.Equal(t, []string{"AAPL"}, res.Request.Symbols)
	assert.InDelta(t, 970, res.State.Cash, 1e-9)
	assert.InDelta(t, 970, res.State.Equity, 1e-9)
	assert.Len(t, res.Fills, 2)
	assert.Len(t, res.Equity, 6)
	assert.InDelta(t, -0.03, res.Metrics.TotalReturn, 1e-9)
	assert.InDelta(t, 0, res.Metrics.WinRate, 1e-9)

	saved, err := runs.GetRun(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "sma-cross", saved.Strategy)
	assert.InDelta(t, 970, saved.FinalEquity, 1e-9)
	assert.Len(t, saved.Fills, 2)
	assert.Equal(t, day0, saved.Start)
	assert.Equal(t, day0.AddDate(0, 0, 5), saved.End)
}

func TestBacktesterUpperCasesParamSymbol(t *testing.T) {
	ps := seedBars(t, closes("AAPL", 50, 55, 60))
	bt := NewBacktester(ps, builtins.NewRegistry())

	res, err := bt.Run(context.Background(), Request{
		Strategy:     "buy-and-hold",
		Params:       map[string]any{"symbol": "aapl", "qty": 10},
		StartingCash: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, res.Request.Symbols)
	assert.Equal(t, "AAPL", res.Request.Params["symbol"])
	require.Len(t, res.Fills, 1)
	assert.InDelta(t, 500, res.State.Cash, 1e-9)
	assert.InDelta(t, 1100, res.State.Equity, 1e-9)
}

func TestBacktesterMergesSymbolsByTimestamp(t *testing.T) {
	ps := seedBars(t, closes("MSFT", 100, 101, 102), closes("AAPL", 10, 11, 12))
	bt := NewBacktester(ps, builtins.NewRegistry())

	bars, err := bt.LoadBars(context.Background(), Request{Symbols: []string{"MSFT", "AAPL"}, Market: "us"})
	require.NoError(t, err)

	require.Len(t, bars, 6)
	for i := 0; i < len(bars); i += 2 {
		assert.Equal(t, "MSFT", bars[i].Symbol)
		assert.Equal(t, "AAPL", bars[i+1].Symbol)
		assert.Equal(t, bars[i].Timestamp, bars[i+1].Timestamp)
	}
}

func TestBacktesterDateRangeAndLimit(t *testing.T) {
	ps := seedBars(t, closes("AAPL", 50, 55, 60, 65))
	bt := NewBacktester(ps, builtins.NewRegistry())
	ctx := context.Background()

	res, err := bt.Run(ctx, Request{
		Strategy:     "buy-and-hold",
		Params:       map[string]any{"qty": 10},
		Symbols:      []string{"AAPL"},
		Start:        day0,
		End:          day0.AddDate(0, 0, 2),
		StartingCash: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.BarsLoaded)
	assert.InDelta(t, 500, res.State.Cash, 1e-9)
	assert.InDelta(t, 1100, res.State.Equity, 1e-9)

	rep, err := bt.DryRun(ctx, Request{
		Strategy:     "buy-and-hold",
		Params:       map[string]any{"qty": 1},
		Symbols:      []string{"AAPL", "TSLA"},
		Limit:        2,
		StartingCash: 100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.BarsLoaded)
	assert.Equal(t, map[string]int{"AAPL": 2, "TSLA": 0}, rep.BarsBySymbol)
	assert.Equal(t, day0.AddDate(0, 0, 2), rep.First)
	assert.Equal(t, day0.AddDate(0, 0, 3), rep.Last)
}

func TestBacktesterRiskLimit(t *testing.T) {
	ps := seedBars(t, closes("AAPL", 100, 100))
	bt := NewBacktester(ps, builtins.NewRegistry(), WithMaxPositionPct(0.5))

	res, err := bt.Run(context.Background(), Request{
		Strategy:     "buy-and-hold",
		Params:       map[string]any{"qty": 6},
		Symbols:      []string{"AAPL"},
		StartingCash: 1000,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Fills)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.FillStatusRejectedRisk, res.Rejected[0].Status)
}

func TestBacktesterRejectsBadRequests(t *testing.T) {
	ps := seedBars(t, closes("AAPL", 1, 2))
	bt := NewBacktester(ps, builtins.NewRegistry())
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no strategy", Request{Symbols: []string{"AAPL"}}, ErrInvalidRequest},
		{"no symbols", Request{Strategy: "buy-and-hold"}, ErrInvalidRequest},
		{"negative cash", Request{Strategy: "buy-and-hold", Symbols: []string{"AAPL"}, StartingCash: -1}, ErrInvalidRequest},
		{"inverted range", Request{Strategy: "buy-and-hold", Symbols: []string{"AAPL"}, Start: day0.AddDate(0, 0, 5), End: day0}, ErrInvalidRequest},
		{"unknown strategy", Request{Strategy: "momentum", Symbols: []string{"AAPL"}}, strategy.ErrUnknownStrategy},
		{"bad params", Request{Strategy: "sma-cross", Symbols: []string{"AAPL"}, Params: map[string]any{"short_window": 5, "long_window": 3}}, builtins.ErrInvalidParams},
		{"no data", Request{Strategy: "buy-and-hold", Symbols: []string{"TSLA"}, Params: map[string]any{"qty": 1}}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.Run(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResultRecordUsesEquityBounds(t *testing.T) {
	res := &Result{
		ID:      "r",
		Request: Request{Strategy: "buy-and-hold", Symbols: []string{"AAPL"}},
		Equity: []EquityPoint{
			{Timestamp: day0, Equity: 1},
			{Timestamp: day0.Add(48 * time.Hour), Equity: 2},
		},
	}

	rec := res.Record()

	assert.Equal(t, day0, rec.Start)
	assert.Equal(t, day0.Add(48*time.Hour), rec.End)
	assert.Len(t, rec.Equity, 2)
}
