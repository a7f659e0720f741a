package engine

import (
	"errors"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// ErrPositionLimit is returned when an order would grow a position beyond
// the configured share of equity.
var ErrPositionLimit = errors.New("position limit exceeded")

// RiskChecker approves or rejects an order before it reaches the broker.
type RiskChecker interface {
	CheckOrder(order domain.Order, state *portfolio.State, price, equity float64) error
}

// Compile-time interface check.
var _ RiskChecker = (*RiskManager)(nil)

// RiskManager enforces pre-trade position sizing limits.
type RiskManager struct {
	maxPositionPct float64
}

// NewRiskManager creates a RiskManager with the specified threshold.
//
//   - maxPositionPct: maximum fraction of equity allowed in a single position
//     (e.g. 0.10 for 10%). Zero or negative disables the check.
func NewRiskManager(maxPositionPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct: maxPositionPct,
	}
}

// CheckOrder evaluates whether the proposed order complies with the
// configured limits. Sells always pass since they only shrink exposure.
func (rm *RiskManager) CheckOrder(order domain.Order, state *portfolio.State, price, equity float64) error {
	if rm.maxPositionPct <= 0 || order.Side != domain.OrderSideBuy {
		return nil
	}
	held, _ := state.Position(order.Symbol)
	exposure := (held.Qty + order.Qty) * price
	limit := rm.maxPositionPct * equity
	if exposure > limit {
		return fmt.Errorf("%w: %s exposure %.2f > %.2f", ErrPositionLimit, order.Symbol, exposure, limit)
	}
	return nil
}
