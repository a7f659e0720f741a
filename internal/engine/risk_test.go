package engine

import (
	"errors"
	"testing"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"
)

func TestRiskManagerCheckOrder(t *testing.T) {
	state := portfolio.New(1000)
	state.Buy("AAPL", 2, 100)

	tests := []struct {
		name    string
		rm      *RiskManager
		order   domain.Order
		wantErr bool
	}{
		{"within limit", NewRiskManager(0.5), domain.NewMarketOrder("AAPL", domain.OrderSideBuy, 3), false},
		{"exceeds limit", NewRiskManager(0.5), domain.NewMarketOrder("AAPL", domain.OrderSideBuy, 4), true},
		{"sells pass", NewRiskManager(0.1), domain.NewMarketOrder("AAPL", domain.OrderSideSell, 2), false},
		{"disabled", NewRiskManager(0), domain.NewMarketOrder("AAPL", domain.OrderSideBuy, 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rm.CheckOrder(tt.order, state, 100, 1000)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckOrder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPositionLimit) {
				t.Errorf("error %v does not wrap ErrPositionLimit", err)
			}
		})
	}
}
