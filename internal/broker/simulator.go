package broker

import (
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker fills market orders immediately and in full at the price it
// is given. Limit and stop orders are not supported and are rejected, as are
// orders with a non-positive quantity. Buys that cost more than the available
// cash are rejected outright; sells are capped at the held quantity.
type SimulatorBroker struct{}

// NewSimulatorBroker creates a new SimulatorBroker.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Execute applies order to state at price.
func (b *SimulatorBroker) Execute(state *portfolio.State, order domain.Order, price float64, at time.Time) domain.FillReport {
	if order.Type != domain.OrderTypeMarket {
		return domain.FillReport{Order: order, Status: domain.FillStatusRejectedUnsupportedType}
	}
	if order.Qty <= 0 {
		return domain.FillReport{Order: order, Status: domain.FillStatusRejectedInvalidQuantity}
	}

	qty := order.Qty
	var (
		status domain.FillStatus
		pnl    float64
	)
	switch order.Side {
	case domain.OrderSideBuy:
		status = state.Buy(order.Symbol, qty, price)
	case domain.OrderSideSell:
		pos, _ := state.Position(order.Symbol)
		qty, status = state.Sell(order.Symbol, qty, price)
		pnl = (price - pos.CostBasis) * qty
	default:
		status = domain.FillStatusRejectedUnsupportedType
	}

	if status != domain.FillStatusFilled {
		return domain.FillReport{Order: order, Status: status}
	}
	return domain.FillReport{
		Order:  order,
		Status: status,
		Fill: &domain.Fill{
			Order:       order,
			Price:       price,
			Qty:         qty,
			Timestamp:   at,
			RealizedPnL: pnl,
		},
	}
}
