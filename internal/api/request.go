package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"tradelab/internal/engine"
	"tradelab/internal/store"
)

// backtestRequest is the wire form of a backtest request shared by the HTTP
// and gRPC surfaces. Dates are YYYY-MM-DD or RFC 3339.
type backtestRequest struct {
	Strategy     string         `json:"strategy" mapstructure:"strategy"`
	Params       map[string]any `json:"params" mapstructure:"params"`
	Symbols      []string       `json:"symbols" mapstructure:"symbols"`
	Market       string         `json:"market" mapstructure:"market"`
	Start        string         `json:"start" mapstructure:"start"`
	End          string         `json:"end" mapstructure:"end"`
	StartingCash float64        `json:"starting_cash" mapstructure:"starting_cash"`
	Limit        int            `json:"limit" mapstructure:"limit"`
}

// decodeRequestMap decodes a generic map (a structpb.Struct as a map) into
// a backtestRequest. Numbers arrive as float64 and are coerced.
func decodeRequestMap(m map[string]any) (backtestRequest, error) {
	var req backtestRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return req, err
	}
	if err := dec.Decode(m); err != nil {
		return req, fmt.Errorf("%w: %v", engine.ErrInvalidRequest, err)
	}
	return req, nil
}

// toEngine converts the wire request, applying defaultCash when the request
// does not name a starting balance.
func (r backtestRequest) toEngine(defaultCash float64) (engine.Request, error) {
	start, err := parseDate(r.Start)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: start: %v", engine.ErrInvalidRequest, err)
	}
	end, err := parseDate(r.End)
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: end: %v", engine.ErrInvalidRequest, err)
	}
	cash := r.StartingCash
	if cash == 0 {
		cash = defaultCash
	}
	return engine.Request{
		Strategy:     strings.TrimSpace(r.Strategy),
		Params:       r.Params,
		Symbols:      r.Symbols,
		Market:       r.Market,
		Start:        start,
		End:          end,
		StartingCash: cash,
		Limit:        r.Limit,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// runEvent is broadcast on the stream endpoint when a backtest finishes.
type runEvent struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	Strategy    string    `json:"strategy"`
	Symbols     []string  `json:"symbols"`
	FinalEquity float64   `json:"final_equity"`
	TotalReturn float64   `json:"total_return"`
	Time        time.Time `json:"time"`
}

func newRunEvent(rec *store.RunRecord) runEvent {
	return runEvent{
		Type:        "run.completed",
		RunID:       rec.ID,
		Strategy:    rec.Strategy,
		Symbols:     rec.Symbols,
		FinalEquity: rec.FinalEquity,
		TotalReturn: rec.Metrics.TotalReturn,
		Time:        rec.CreatedAt,
	}
}
