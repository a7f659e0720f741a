// Package engine runs strategies bar by bar against historical data, filling
// their orders through a broker and tracking the resulting portfolio.
package engine

import (
	"log/slog"

	"tradelab/internal/broker"
	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
	"tradelab/internal/strategy"
)

// Recorder receives every execution attempt and the marked equity after
// each bar. It is optional and observes the run without influencing it.
type Recorder interface {
	RecordFill(bar domain.Bar, report domain.FillReport)
	RecordBar(bar domain.Bar, equity float64)
}

// Option configures an Engine.
type Option func(*Engine)

// WithBroker replaces the default SimulatorBroker.
func WithBroker(b broker.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithRiskCheck installs a pre-trade check. Orders it rejects are dropped.
func WithRiskCheck(rc RiskChecker) Option {
	return func(e *Engine) { e.risk = rc }
}

// WithRecorder installs a Recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger sets the logger used for run and rejection messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine drives one strategy through a sequence of bars. An Engine is not
// safe for concurrent use; each Run builds a fresh portfolio.
type Engine struct {
	strategy strategy.Strategy
	broker   broker.Broker
	risk     RiskChecker
	recorder Recorder
	log      *slog.Logger
}

// NewEngine creates an Engine for s. Without options it fills through a
// SimulatorBroker, applies no risk checks and records nothing.
func NewEngine(s strategy.Strategy, opts ...Option) *Engine {
	e := &Engine{
		strategy: s,
		broker:   broker.NewSimulatorBroker(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine", "strategy", s.Name())
	return e
}

// Run processes bars in the order given and returns the final portfolio.
//
// Orders returned by the strategy are queued and executed at the close of
// the next bar for their symbol. Each bar is handled in four steps: record
// its close, execute pending orders for its symbol, hand it to the
// strategy, then execute again so orders emitted for this bar fill at this
// bar's close. Orders still queued after the last bar are discarded. Final
// equity marks every position at the last close seen for its symbol, or at
// cost basis if no bar for the symbol was ever seen.
func (e *Engine) Run(bars []domain.Bar, startingCash float64) *portfolio.State {
	state := portfolio.New(startingCash)
	lastClose := make(map[string]float64)
	pending := append([]domain.Order(nil), e.strategy.OnStart(state)...)

	e.log.Info("run started", "bars", len(bars), "startingCash", startingCash)

	for _, bar := range bars {
		lastClose[bar.Symbol] = bar.Close
		pending = e.execute(pending, state, bar, lastClose)

		pending = append(pending, e.strategy.OnBar(bar, state)...)
		pending = e.execute(pending, state, bar, lastClose)

		if e.recorder != nil {
			e.recorder.RecordBar(bar, state.Value(lastClose))
		}
	}

	e.strategy.OnFinish(state)
	equity := state.Mark(lastClose)

	if len(pending) > 0 {
		e.log.Debug("orders left unfilled at end of run", "count", len(pending))
	}
	e.log.Info("run finished", "cash", state.Cash, "equity", equity, "positions", len(state.Positions))
	return state
}

// execute attempts every pending order for bar's symbol at bar's close, in
// queue order, and returns the orders that target other symbols.
func (e *Engine) execute(pending []domain.Order, state *portfolio.State, bar domain.Bar, lastClose map[string]float64) []domain.Order {
	if len(pending) == 0 {
		return pending
	}
	remaining := pending[:0:0]
	for _, order := range pending {
		if order.Symbol != bar.Symbol {
			remaining = append(remaining, order)
			continue
		}
		report := e.fill(state, order, bar, lastClose)
		if !report.Filled() {
			e.log.Debug("order dropped",
				"symbol", order.Symbol,
				"side", order.Side,
				"qty", order.Qty,
				"status", report.Status,
			)
		}
		if e.recorder != nil {
			e.recorder.RecordFill(bar, report)
		}
	}
	return remaining
}

func (e *Engine) fill(state *portfolio.State, order domain.Order, bar domain.Bar, lastClose map[string]float64) domain.FillReport {
	// Orders the broker would refuse anyway keep the broker's status.
	if e.risk != nil && order.Type == domain.OrderTypeMarket && order.Qty > 0 {
		if err := e.risk.CheckOrder(order, state, bar.Close, state.Value(lastClose)); err != nil {
			return domain.FillReport{Order: order, Status: domain.FillStatusRejectedRisk}
		}
	}
	return e.broker.Execute(state, order, bar.Close, bar.Timestamp)
}
