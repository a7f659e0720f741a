// Package report renders finished backtests for people: a terminal summary
// and an HTML equity chart.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tradelab/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	symbolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

var printer = message.NewPrinter(language.English)

// WriteSummary writes a human-readable summary of run to w.
func WriteSummary(w io.Writer, run *store.RunRecord) error {
	var b strings.Builder

	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("Backtest %s", run.ID)))
	row(&b, "strategy", run.Strategy)
	row(&b, "symbols", strings.Join(run.Symbols, ", "))
	if !run.Start.IsZero() || !run.End.IsZero() {
		row(&b, "period", fmt.Sprintf("%s → %s", dateOrDash(run.Start), dateOrDash(run.End)))
	}
	row(&b, "bars", printer.Sprintf("%d", run.BarsLoaded))
	row(&b, "starting cash", money(run.StartingCash))
	row(&b, "final cash", money(run.FinalCash))
	row(&b, "final equity", signed(money(run.FinalEquity), run.FinalEquity-run.StartingCash))

	m := run.Metrics
	row(&b, "total return", signed(pct(m.TotalReturn), m.TotalReturn))
	row(&b, "max drawdown", pct(m.MaxDrawdown))
	row(&b, "sharpe", printer.Sprintf("%.2f", m.SharpeRatio))
	row(&b, "trades", printer.Sprintf("%d", m.TotalTrades))
	row(&b, "win rate", pct(m.WinRate))
	row(&b, "profit factor", printer.Sprintf("%.2f", m.ProfitFactor))

	if len(run.Positions) > 0 {
		fmt.Fprintln(&b, titleStyle.Render("Positions"))
		for _, p := range run.Positions {
			fmt.Fprintf(&b, "  %s %s @ %s\n",
				symbolStyle.Render(fmt.Sprintf("%-6s", p.Symbol)),
				printer.Sprintf("%.4f", p.Qty),
				money(p.CostBasis),
			)
		}
	}

	if len(run.Fills) > 0 {
		fmt.Fprintln(&b, titleStyle.Render("Fills"))
		for _, f := range run.Fills {
			line := fmt.Sprintf("  %s %-4s %-6s %s @ %s",
				f.Timestamp.Format(time.DateOnly),
				strings.ToUpper(string(f.Order.Side)),
				f.Order.Symbol,
				printer.Sprintf("%.4f", f.Qty),
				money(f.Price),
			)
			if f.RealizedPnL != 0 {
				line += "  pnl " + signed(money(f.RealizedPnL), f.RealizedPnL)
			}
			fmt.Fprintln(&b, line)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRunList writes one line per run, newest first as given.
func WriteRunList(w io.Writer, runs []store.RunRecord) error {
	var b strings.Builder
	if len(runs) == 0 {
		fmt.Fprintln(&b, labelStyle.Render("no runs recorded"))
	}
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %s  %-14s %-20s %s\n",
			r.ID,
			r.CreatedAt.Format(time.DateTime),
			r.Strategy,
			strings.Join(r.Symbols, ","),
			signed(pct(r.Metrics.TotalReturn), r.Metrics.TotalReturn),
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), value)
}

func money(v float64) string {
	return printer.Sprintf("%.2f", v)
}

func pct(v float64) string {
	return printer.Sprintf("%.2f%%", v*100)
}

// signed colours s by the sign of v.
func signed(s string, v float64) string {
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

func dateOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
