package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"tradelab/internal/store"
)

// RenderEquityChart writes a standalone HTML page with run's equity curve.
func RenderEquityChart(w io.Writer, run *store.RunRecord) error {
	if len(run.Equity) == 0 {
		return fmt.Errorf("run %s has no equity curve", run.ID)
	}

	xAxis := make([]string, 0, len(run.Equity))
	equity := make([]opts.LineData, 0, len(run.Equity))
	cash := make([]opts.LineData, 0, len(run.Equity))
	for _, p := range run.Equity {
		xAxis = append(xAxis, p.Timestamp.Format(time.DateOnly))
		equity = append(equity, opts.LineData{Value: p.Equity})
		cash = append(cash, opts.LineData{Value: run.StartingCash})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "tradelab " + run.ID,
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s on %s", run.Strategy, joinSymbols(run.Symbols)),
			Subtitle: fmt.Sprintf("return %s, max drawdown %s", pct(run.Metrics.TotalReturn), pct(run.Metrics.MaxDrawdown)),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).
		AddSeries("equity", equity).
		AddSeries("starting cash", cash, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.5)}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

func joinSymbols(symbols []string) string {
	switch len(symbols) {
	case 0:
		return "-"
	case 1:
		return symbols[0]
	}
	return fmt.Sprintf("%s +%d", symbols[0], len(symbols)-1)
}
