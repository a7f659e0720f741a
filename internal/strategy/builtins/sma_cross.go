// Package builtins provides built-in strategy implementations that ship with
// tradelab.
package builtins

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
	"tradelab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a long-only simple moving average crossover strategy
// for a single symbol. It buys when the short-period SMA crosses above the
// long-period SMA and exits the whole position when it crosses below.
type SMACross struct {
	symbol      string
	shortPeriod int
	longPeriod  int
	qty         float64

	closes   *window
	prevDiff float64
	hasPrev  bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. It fails unless 0 < short < long and qty > 0.
func NewSMACross(symbol string, short, long int, qty float64) (*SMACross, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidParams)
	}
	if short <= 0 || long <= 0 {
		return nil, fmt.Errorf("%w: SMA periods must be positive, got %d/%d", ErrInvalidParams, short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short period %d must be smaller than long period %d", ErrInvalidParams, short, long)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive, got %v", ErrInvalidParams, qty)
	}
	return &SMACross{
		symbol:      symbol,
		shortPeriod: short,
		longPeriod:  long,
		qty:         qty,
		closes:      newWindow(long),
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// OnStart clears the price window and the previous crossover reading.
func (s *SMACross) OnStart(_ *portfolio.State) []domain.Order {
	s.closes.reset()
	s.prevDiff = 0
	s.hasPrev = false
	return nil
}

// OnBar records the close for the target symbol and, once the long window is
// full, returns an order when the SMA spread changes sign.
func (s *SMACross) OnBar(bar domain.Bar, state *portfolio.State) []domain.Order {
	if bar.Symbol != s.symbol {
		return nil
	}
	s.closes.push(bar.Close)
	if !s.closes.full() {
		return nil
	}

	diff := s.spread()
	holding := state.Holding(s.symbol)

	var orders []domain.Order
	switch {
	case !s.hasPrev:
		if diff > 0 && !holding {
			orders = append(orders, domain.NewMarketOrder(s.symbol, domain.OrderSideBuy, s.qty))
		}
	case s.prevDiff <= 0 && diff > 0 && !holding:
		orders = append(orders, domain.NewMarketOrder(s.symbol, domain.OrderSideBuy, s.qty))
	case s.prevDiff >= 0 && diff < 0 && holding:
		pos, _ := state.Position(s.symbol)
		orders = append(orders, domain.NewMarketOrder(s.symbol, domain.OrderSideSell, pos.Qty))
	}

	s.prevDiff = diff
	s.hasPrev = true
	return orders
}

// OnFinish does nothing.
func (s *SMACross) OnFinish(_ *portfolio.State) {}

// spread returns SMA(short) - SMA(long) over the current window.
func (s *SMACross) spread() float64 {
	return lastSMA(s.closes.last(s.shortPeriod)) - lastSMA(s.closes.last(s.longPeriod))
}

// lastSMA returns the simple average of values.
func lastSMA(values []float64) float64 {
	out := talib.Sma(values, len(values))
	return out[len(out)-1]
}
