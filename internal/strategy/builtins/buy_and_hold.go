package builtins

import (
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
	"tradelab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BuyAndHold)(nil)

// BuyAndHold buys a fixed quantity of one symbol on the first bar for that
// symbol and never trades again during the run.
type BuyAndHold struct {
	symbol string
	qty    float64
	bought bool
}

// NewBuyAndHold creates a BuyAndHold strategy for symbol.
func NewBuyAndHold(symbol string, qty float64) (*BuyAndHold, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidParams)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive, got %v", ErrInvalidParams, qty)
	}
	return &BuyAndHold{symbol: symbol, qty: qty}, nil
}

// Name returns "buy-and-hold".
func (s *BuyAndHold) Name() string {
	return "buy-and-hold"
}

// OnStart resets the strategy so it buys again in the new run.
func (s *BuyAndHold) OnStart(_ *portfolio.State) []domain.Order {
	s.bought = false
	return nil
}

// OnBar emits a single market buy on the first bar for the target symbol.
func (s *BuyAndHold) OnBar(bar domain.Bar, _ *portfolio.State) []domain.Order {
	if s.bought || bar.Symbol != s.symbol {
		return nil
	}
	s.bought = true
	return []domain.Order{domain.NewMarketOrder(s.symbol, domain.OrderSideBuy, s.qty)}
}

// OnFinish does nothing.
func (s *BuyAndHold) OnFinish(_ *portfolio.State) {}
