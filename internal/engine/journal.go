package engine

import (
	"time"

	"tradelab/internal/domain"
)

// Compile-time interface check.
var _ Recorder = (*Journal)(nil)

// EquityPoint is the marked equity at the close of a timestamp.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// Journal is an in-memory Recorder that keeps every execution attempt and
// one equity point per distinct bar timestamp.
type Journal struct {
	Reports []domain.FillReport
	Equity  []EquityPoint
}

// NewJournal returns an empty Journal.
func NewJournal() *Journal {
	return &Journal{}
}

// RecordFill appends report.
func (j *Journal) RecordFill(_ domain.Bar, report domain.FillReport) {
	j.Reports = append(j.Reports, report)
}

// RecordBar records equity after bar. Consecutive bars sharing a timestamp
// (several symbols on the same day) collapse into the last reading.
func (j *Journal) RecordBar(bar domain.Bar, equity float64) {
	if n := len(j.Equity); n > 0 && j.Equity[n-1].Timestamp.Equal(bar.Timestamp) {
		j.Equity[n-1].Equity = equity
		return
	}
	j.Equity = append(j.Equity, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})
}

// Fills returns the executed fills in order.
func (j *Journal) Fills() []domain.Fill {
	var fills []domain.Fill
	for _, r := range j.Reports {
		if r.Fill != nil {
			fills = append(fills, *r.Fill)
		}
	}
	return fills
}

// Rejected returns the reports for orders that were dropped.
func (j *Journal) Rejected() []domain.FillReport {
	var out []domain.FillReport
	for _, r := range j.Reports {
		if !r.Filled() {
			out = append(out, r)
		}
	}
	return out
}
