// Package portfolio holds the mutable cash and position state of a single
// backtest run and the rules for applying fills to it.
package portfolio

import (
	"sort"

	"tradelab/internal/domain"
)

// Position is a long holding in one symbol. Qty is always positive; a
// position whose quantity would reach zero is removed from the State.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	CostBasis float64 `json:"cost_basis"` // volume-weighted average entry price
}

// MarketValue returns Qty * mark.
func (p Position) MarketValue(mark float64) float64 {
	return p.Qty * mark
}

// State is the root aggregate of a run: cash, open positions keyed by symbol
// and the last computed equity. Equity is only authoritative after Mark.
//
// Strategies receive a *State to inspect holdings. They must not modify it;
// trading intent is expressed through returned orders only.
type State struct {
	Cash      float64
	Positions map[string]Position
	Equity    float64
}

// New returns a State holding startingCash and no positions.
func New(startingCash float64) *State {
	return &State{
		Cash:      startingCash,
		Positions: make(map[string]Position),
		Equity:    startingCash,
	}
}

// Position returns the open position for symbol, if any.
func (s *State) Position(symbol string) (Position, bool) {
	p, ok := s.Positions[symbol]
	return p, ok
}

// Holding reports whether a position is open in symbol.
func (s *State) Holding(symbol string) bool {
	p, ok := s.Positions[symbol]
	return ok && p.Qty > 0
}

// Symbols returns the symbols with open positions, sorted.
func (s *State) Symbols() []string {
	symbols := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Buy debits qty*price from cash and adds qty to the symbol's position,
// averaging the cost basis. The buy is all-or-nothing: when the notional
// exceeds available cash the state is left untouched.
func (s *State) Buy(symbol string, qty, price float64) domain.FillStatus {
	if qty <= 0 {
		return domain.FillStatusRejectedInvalidQuantity
	}
	notional := qty * price
	if notional > s.Cash {
		return domain.FillStatusRejectedInsufficientCash
	}

	existing, ok := s.Positions[symbol]
	if !ok {
		s.Positions[symbol] = Position{Symbol: symbol, Qty: qty, CostBasis: price}
		s.Cash -= notional
		return domain.FillStatusFilled
	}

	newQty := existing.Qty + qty
	s.Positions[symbol] = Position{
		Symbol:    symbol,
		Qty:       newQty,
		CostBasis: (existing.Qty*existing.CostBasis + qty*price) / newQty,
	}
	s.Cash -= notional
	return domain.FillStatusFilled
}

// Sell credits cash for up to qty units of the symbol's position and returns
// the quantity actually sold. Sells are capped at the held quantity and never
// open a short. The remaining position keeps its cost basis.
func (s *State) Sell(symbol string, qty, price float64) (float64, domain.FillStatus) {
	if qty <= 0 {
		return 0, domain.FillStatusRejectedInvalidQuantity
	}
	existing, ok := s.Positions[symbol]
	if !ok || existing.Qty <= 0 {
		return 0, domain.FillStatusRejectedNoPosition
	}

	sold := min(qty, existing.Qty)
	s.Cash += sold * price

	remaining := existing.Qty - sold
	if remaining <= 0 {
		delete(s.Positions, symbol)
		return sold, domain.FillStatusFilled
	}
	s.Positions[symbol] = Position{
		Symbol:    symbol,
		Qty:       remaining,
		CostBasis: existing.CostBasis,
	}
	return sold, domain.FillStatusFilled
}

// Value returns cash plus the marked value of every position without
// storing it. Symbols missing from lastClose are marked at cost basis.
func (s *State) Value(lastClose map[string]float64) float64 {
	equity := s.Cash
	for _, sym := range s.Symbols() {
		p := s.Positions[sym]
		mark, ok := lastClose[sym]
		if !ok {
			mark = p.CostBasis
		}
		equity += p.MarketValue(mark)
	}
	return equity
}

// Mark computes equity against lastClose, stores it in Equity and returns it.
func (s *State) Mark(lastClose map[string]float64) float64 {
	s.Equity = s.Value(lastClose)
	return s.Equity
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		Cash:      s.Cash,
		Positions: make(map[string]Position, len(s.Positions)),
		Equity:    s.Equity,
	}
	for sym, p := range s.Positions {
		c.Positions[sym] = p
	}
	return c
}
