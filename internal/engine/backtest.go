package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
)

// ErrInvalidRequest is returned for backtest requests that cannot run.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Request describes a backtest over stored bars.
type Request struct {
	Strategy     string
	Params       map[string]any
	Symbols      []string
	Market       string
	Start        time.Time // zero means from the first stored bar
	End          time.Time // zero means through the last stored bar
	StartingCash float64
	// Limit, when positive, loads only the most recent Limit bars per
	// symbol and ignores Start and End.
	Limit int
}

// Result is a finished backtest.
type Result struct {
	ID         string
	Request    Request
	State      *portfolio.State
	Metrics    Metrics
	Fills      []domain.Fill
	Rejected   []domain.FillReport
	Equity     []EquityPoint
	BarsLoaded int
	CreatedAt  time.Time
}

// DryRunReport describes what a backtest would process.
type DryRunReport struct {
	Strategy     string
	Symbols      []string
	BarsLoaded   int
	BarsBySymbol map[string]int
	First        time.Time
	Last         time.Time
	StartingCash float64
}

// Backtester loads bars from a BarStore, runs a registered strategy over
// them and optionally persists the result.
type Backtester struct {
	bars     store.BarStore
	runs     store.RunStore
	registry *strategy.Registry
	risk     RiskChecker
	market   string
	log      *slog.Logger
}

// BacktesterOption configures a Backtester.
type BacktesterOption func(*Backtester)

// WithRunStore persists every completed run.
func WithRunStore(rs store.RunStore) BacktesterOption {
	return func(b *Backtester) { b.runs = rs }
}

// WithDefaultMarket sets the market used when a request leaves it empty.
func WithDefaultMarket(market string) BacktesterOption {
	return func(b *Backtester) { b.market = market }
}

// WithMaxPositionPct enables a RiskManager for every run.
func WithMaxPositionPct(pct float64) BacktesterOption {
	return func(b *Backtester) {
		if pct > 0 {
			b.risk = NewRiskManager(pct)
		}
	}
}

// WithBacktestLogger sets the logger handed to each engine.
func WithBacktestLogger(l *slog.Logger) BacktesterOption {
	return func(b *Backtester) { b.log = l }
}

// NewBacktester creates a Backtester reading bars from bars and building
// strategies from registry.
func NewBacktester(bars store.BarStore, registry *strategy.Registry, opts ...BacktesterOption) *Backtester {
	b := &Backtester{
		bars:     bars,
		registry: registry,
		market:   string(domain.MarketUS),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Strategies lists the registered strategy names.
func (b *Backtester) Strategies() []string {
	return b.registry.List()
}

// Run executes req and returns the result. The run is saved when a
// RunStore is configured; a save failure is returned with the result.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := b.normalize(req)
	if err != nil {
		return nil, err
	}
	s, err := b.registry.New(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}
	bars, err := b.LoadBars(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", ErrInvalidRequest, strings.Join(req.Symbols, ","))
	}

	journal := NewJournal()
	opts := []Option{WithRecorder(journal), WithLogger(b.log)}
	if b.risk != nil {
		opts = append(opts, WithRiskCheck(b.risk))
	}
	state := NewEngine(s, opts...).Run(bars, req.StartingCash)

	res := &Result{
		ID:         uuid.NewString(),
		Request:    req,
		State:      state,
		Metrics:    Summarize(req.StartingCash, state.Equity, journal),
		Fills:      journal.Fills(),
		Rejected:   journal.Rejected(),
		Equity:     journal.Equity,
		BarsLoaded: len(bars),
		CreatedAt:  time.Now().UTC(),
	}

	if b.runs != nil {
		if err := b.runs.SaveRun(ctx, res.Record()); err != nil {
			return res, fmt.Errorf("saving run %s: %w", res.ID, err)
		}
	}
	b.log.Info("backtest complete",
		"id", res.ID,
		"strategy", req.Strategy,
		"bars", res.BarsLoaded,
		"fills", len(res.Fills),
		"equity", state.Equity,
	)
	return res, nil
}

// DryRun validates req, builds the strategy and loads bars without
// running the engine.
func (b *Backtester) DryRun(ctx context.Context, req Request) (*DryRunReport, error) {
	req, err := b.normalize(req)
	if err != nil {
		return nil, err
	}
	if _, err := b.registry.New(req.Strategy, req.Params); err != nil {
		return nil, err
	}
	bars, err := b.LoadBars(ctx, req)
	if err != nil {
		return nil, err
	}

	rep := &DryRunReport{
		Strategy:     req.Strategy,
		Symbols:      req.Symbols,
		BarsLoaded:   len(bars),
		BarsBySymbol: make(map[string]int, len(req.Symbols)),
		StartingCash: req.StartingCash,
	}
	for _, sym := range req.Symbols {
		rep.BarsBySymbol[sym] = 0
	}
	for _, bar := range bars {
		rep.BarsBySymbol[bar.Symbol]++
	}
	if len(bars) > 0 {
		rep.First = bars[0].Timestamp
		rep.Last = bars[len(bars)-1].Timestamp
	}
	return rep, nil
}

// LoadBars reads bars for every requested symbol and merges them into one
// time-ordered stream. Bars sharing a timestamp keep request symbol order.
func (b *Backtester) LoadBars(ctx context.Context, req Request) ([]domain.Bar, error) {
	var bars []domain.Bar
	for _, sym := range req.Symbols {
		var (
			chunk []domain.Bar
			err   error
		)
		if req.Limit > 0 {
			chunk, err = b.bars.LatestBars(ctx, sym, req.Market, req.Limit)
		} else {
			chunk, err = b.bars.ReadBars(ctx, sym, req.Market, req.Start, req.End)
		}
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", sym, err)
		}
		bars = append(bars, chunk...)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func (b *Backtester) normalize(req Request) (Request, error) {
	if req.Strategy == "" {
		return req, fmt.Errorf("%w: strategy is required", ErrInvalidRequest)
	}
	if req.StartingCash < 0 {
		return req, fmt.Errorf("%w: starting cash must not be negative", ErrInvalidRequest)
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		return req, fmt.Errorf("%w: end %s before start %s", ErrInvalidRequest,
			req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly))
	}

	symbols := make([]string, 0, len(req.Symbols))
	seen := make(map[string]bool, len(req.Symbols))
	for _, sym := range req.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		if s, ok := req.Params["symbol"].(string); ok && strings.TrimSpace(s) != "" {
			symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
		} else {
			return req, fmt.Errorf("%w: at least one symbol is required", ErrInvalidRequest)
		}
	}
	req.Symbols = symbols

	// Single-symbol strategies trade the requested symbol unless told otherwise.
	params := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	// Stored bars carry upper-case symbols.
	if s, ok := params["symbol"].(string); ok {
		params["symbol"] = strings.ToUpper(strings.TrimSpace(s))
	}
	if _, ok := params["symbol"]; !ok && len(symbols) == 1 {
		params["symbol"] = symbols[0]
	}
	req.Params = params

	if req.Market == "" {
		req.Market = b.market
	}
	return req, nil
}

// Record converts r into its persisted form.
func (r *Result) Record() *store.RunRecord {
	rec := &store.RunRecord{
		ID:           r.ID,
		Strategy:     r.Request.Strategy,
		Params:       r.Request.Params,
		Symbols:      r.Request.Symbols,
		Market:       r.Request.Market,
		Start:        r.Request.Start,
		End:          r.Request.End,
		StartingCash: r.Request.StartingCash,
		BarsLoaded:   r.BarsLoaded,
		Metrics: store.RunMetrics{
			TotalReturn:  r.Metrics.TotalReturn,
			SharpeRatio:  r.Metrics.SharpeRatio,
			MaxDrawdown:  r.Metrics.MaxDrawdown,
			TotalTrades:  r.Metrics.TotalTrades,
			WinRate:      r.Metrics.WinRate,
			ProfitFactor: r.Metrics.ProfitFactor,
		},
		Fills:     r.Fills,
		CreatedAt: r.CreatedAt,
	}
	if r.State != nil {
		rec.FinalCash = r.State.Cash
		rec.FinalEquity = r.State.Equity
		for _, sym := range r.State.Symbols() {
			p, _ := r.State.Position(sym)
			rec.Positions = append(rec.Positions, p)
		}
	}
	for _, p := range r.Equity {
		rec.Equity = append(rec.Equity, store.EquityPoint{Timestamp: p.Timestamp, Equity: p.Equity})
	}
	if len(r.Equity) > 0 {
		if rec.Start.IsZero() {
			rec.Start = r.Equity[0].Timestamp
		}
		if rec.End.IsZero() {
			rec.End = r.Equity[len(r.Equity)-1].Timestamp
		}
	}
	return rec
}
