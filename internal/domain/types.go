// Package domain holds the value types shared across tradelab: price bars,
// quotes, news, orders, fills and the execution reports produced when the
// simulator acts on an order.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single OHLCV observation for one symbol at one timestamp. Bars are
// keyed by (Symbol, Timestamp) and never modified after creation. Volume,
// TradeCount and VWAP are zero when the provider did not report them.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
	Provider   string
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
	BidSize   float64
	AskSize   float64
	Provider  string
}

// NewsItem is a headline or article summary. Symbol is empty for general
// market news.
type NewsItem struct {
	ID          string
	Symbol      string
	PublishedAt time.Time
	Title       string
	Summary     string
	Source      string
	Sentiment   string
	Tickers     []string
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects how an order is priced. Only market orders are executed
// by the backtest simulator; limit and stop orders are accepted but dropped.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
)

// Order is an instruction to trade. Orders are values: once emitted by a
// strategy they are never modified, only acted on or dropped.
type Order struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Qty         float64
	LimitPrice  *float64
	StopPrice   *float64
	TimeInForce TimeInForce
}

// NewMarketOrder returns a day market order with a fresh ID.
func NewMarketOrder(symbol string, side OrderSide, qty float64) Order {
	return Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Type:        OrderTypeMarket,
		Qty:         qty,
		TimeInForce: TimeInForceDay,
	}
}

// NewLimitOrder returns a day limit order with a fresh ID.
func NewLimitOrder(symbol string, side OrderSide, qty, limit float64) Order {
	o := NewMarketOrder(symbol, side, qty)
	o.Type = OrderTypeLimit
	o.LimitPrice = &limit
	return o
}

// NewStopOrder returns a day stop order with a fresh ID.
func NewStopOrder(symbol string, side OrderSide, qty, stop float64) Order {
	o := NewMarketOrder(symbol, side, qty)
	o.Type = OrderTypeStop
	o.StopPrice = &stop
	return o
}

// Fill is the execution report for an order that traded. RealizedPnL is
// only set on sells: (Price - cost basis) * Qty.
type Fill struct {
	Order       Order
	Price       float64
	Qty         float64
	Commission  *float64
	Timestamp   time.Time
	RealizedPnL float64
}

// Notional returns Price * Qty.
func (f Fill) Notional() float64 {
	return f.Price * f.Qty
}

// FillStatus is the outcome of one attempt to execute an order.
type FillStatus string

const (
	FillStatusFilled                   FillStatus = "filled"
	FillStatusRejectedInsufficientCash FillStatus = "rejected_insufficient_cash"
	FillStatusRejectedNoPosition       FillStatus = "rejected_no_position"
	FillStatusRejectedUnsupportedType  FillStatus = "rejected_unsupported_type"
	FillStatusRejectedInvalidQuantity  FillStatus = "rejected_invalid_quantity"
	FillStatusRejectedRisk             FillStatus = "rejected_risk"
)

// FillReport describes what happened to an order when it was matched to a
// bar. Fill is nil unless Status is FillStatusFilled.
type FillReport struct {
	Order  Order
	Status FillStatus
	Fill   *Fill
}

// Filled reports whether the order traded.
func (r FillReport) Filled() bool {
	return r.Status == FillStatusFilled
}
