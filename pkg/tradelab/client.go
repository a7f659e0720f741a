// Package tradelab is a Go SDK for the tradelab-server gRPC API.
package tradelab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	runBacktestMethod    = "/tradelab.v1.BacktestService/RunBacktest"
	listStrategiesMethod = "/tradelab.v1.BacktestService/ListStrategies"
)

// Request describes a backtest to run on the server. Start and End are
// YYYY-MM-DD dates; empty means unbounded.
type Request struct {
	Strategy     string         `json:"strategy"`
	Params       map[string]any `json:"params,omitempty"`
	Symbols      []string       `json:"symbols,omitempty"`
	Market       string         `json:"market,omitempty"`
	Start        string         `json:"start,omitempty"`
	End          string         `json:"end,omitempty"`
	StartingCash float64        `json:"starting_cash,omitempty"`
	Limit        int            `json:"limit,omitempty"`
}

// Metrics are a run's summary statistics.
type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Position is an open holding at the end of a run.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	CostBasis float64 `json:"cost_basis"`
}

// Run is a finished backtest as reported by the server.
type Run struct {
	ID           string     `json:"id"`
	Strategy     string     `json:"strategy"`
	Symbols      []string   `json:"symbols"`
	Market       string     `json:"market"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	StartingCash float64    `json:"starting_cash"`
	FinalCash    float64    `json:"final_cash"`
	FinalEquity  float64    `json:"final_equity"`
	BarsLoaded   int        `json:"bars_loaded"`
	Metrics      Metrics    `json:"metrics"`
	Positions    []Position `json:"positions"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Client talks to a tradelab-server over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for target. The connection is established
// lazily; without options it uses insecure transport credentials.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// RunBacktest runs req on the server and returns the finished run.
func (c *Client) RunBacktest(ctx context.Context, req Request) (*Run, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, runBacktestMethod, in, out); err != nil {
		return nil, err
	}
	data, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	return &run, nil
}

// ListStrategies returns the strategy names registered on the server.
func (c *Client) ListStrategies(ctx context.Context) ([]string, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listStrategiesMethod, &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	var names []string
	for _, v := range out.GetFields()["strategies"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
