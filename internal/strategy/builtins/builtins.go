package builtins

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"tradelab/internal/strategy"
)

// ErrInvalidParams is returned when a strategy is constructed with
// parameters that violate its constraints.
var ErrInvalidParams = errors.New("invalid strategy parameters")

// BuyAndHoldParams are the configurable parameters of BuyAndHold.
type BuyAndHoldParams struct {
	Symbol string  `mapstructure:"symbol"`
	Qty    float64 `mapstructure:"qty"`
}

// SMACrossParams are the configurable parameters of SMACross.
type SMACrossParams struct {
	Symbol      string  `mapstructure:"symbol"`
	ShortWindow int     `mapstructure:"short_window"`
	LongWindow  int     `mapstructure:"long_window"`
	Qty         float64 `mapstructure:"qty"`
}

// DefaultSMACrossParams mirrors the classic 20/50 day crossover.
func DefaultSMACrossParams() SMACrossParams {
	return SMACrossParams{ShortWindow: 20, LongWindow: 50, Qty: 1}
}

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register("buy-and-hold", NewBuyAndHoldFromParams)
	r.Register("sma-cross", NewSMACrossFromParams)
}

// NewRegistry returns a registry populated with the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// RegisterPreset registers name as a configured variant of the built-in
// strategy base. Request params are layered over defaults, so a preset can
// pin a symbol or windows while callers still override individual keys.
func RegisterPreset(r *strategy.Registry, name, base string, defaults map[string]any) error {
	f, ok := r.Get(base)
	if !ok {
		return fmt.Errorf("preset %q: %w: %q", name, strategy.ErrUnknownStrategy, base)
	}
	r.Register(name, func(params map[string]any) (strategy.Strategy, error) {
		merged := make(map[string]any, len(defaults)+len(params))
		for k, v := range defaults {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		return f(merged)
	})
	return nil
}

// NewBuyAndHoldFromParams is the strategy.Factory for BuyAndHold.
func NewBuyAndHoldFromParams(params map[string]any) (strategy.Strategy, error) {
	var p BuyAndHoldParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewBuyAndHold(p.Symbol, p.Qty)
}

// NewSMACrossFromParams is the strategy.Factory for SMACross. Missing
// windows and quantity fall back to DefaultSMACrossParams.
func NewSMACrossFromParams(params map[string]any) (strategy.Strategy, error) {
	p := DefaultSMACrossParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewSMACross(p.Symbol, p.ShortWindow, p.LongWindow, p.Qty)
}

// decodeParams decodes loosely typed params (YAML, JSON or protobuf Struct
// values) into out, converting numeric strings and float-encoded integers.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
