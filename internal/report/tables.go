package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/engine"
)

// WriteBars writes the bars of one symbol, oldest first.
func WriteBars(w io.Writer, symbol string, bars []domain.Bar) error {
	var b strings.Builder
	fmt.Fprintln(&b, symbolStyle.Render(symbol))
	if len(bars) == 0 {
		fmt.Fprintln(&b, labelStyle.Render("  no bars stored"))
	}
	for _, bar := range bars {
		fmt.Fprintf(&b, "  %s  o %s  h %s  l %s  c %s  v %s\n",
			bar.Timestamp.Format(time.DateOnly),
			money(bar.Open),
			money(bar.High),
			money(bar.Low),
			money(bar.Close),
			printer.Sprintf("%d", bar.Volume),
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteDryRun writes what a backtest would process.
func WriteDryRun(w io.Writer, rep *engine.DryRunReport) error {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("Dry run"))
	row(&b, "strategy", rep.Strategy)
	row(&b, "symbols", strings.Join(rep.Symbols, ", "))
	row(&b, "starting cash", money(rep.StartingCash))
	row(&b, "bars", printer.Sprintf("%d", rep.BarsLoaded))
	if rep.BarsLoaded > 0 {
		row(&b, "period", fmt.Sprintf("%s → %s", dateOrDash(rep.First), dateOrDash(rep.Last)))
	}

	symbols := make([]string, 0, len(rep.BarsBySymbol))
	for sym := range rep.BarsBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		n := rep.BarsBySymbol[sym]
		count := printer.Sprintf("%d", n)
		if n == 0 {
			count = lossStyle.Render(count)
		}
		fmt.Fprintf(&b, "    %s %s\n", symbolStyle.Render(fmt.Sprintf("%-6s", sym)), count)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
