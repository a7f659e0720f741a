// Package broker defines the Broker interface and the simulated broker that
// executes orders against a portfolio during backtests.
package broker

import (
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

// Broker executes a single order against the portfolio at the given price.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Execute attempts to fill order at price, mutating state on success.
	// Rejections are reported through the returned FillReport, never as
	// errors, and leave state untouched.
	Execute(state *portfolio.State, order domain.Order, price float64, at time.Time) domain.FillReport
}
