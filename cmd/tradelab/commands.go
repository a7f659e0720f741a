package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/engine"
	"tradelab/internal/gather"
	"tradelab/internal/report"
	"tradelab/internal/store"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func (a *app) strategies() error {
	def := a.cfg.Backtest.Default.Name
	for _, name := range a.registry.List() {
		marker := " "
		if name == def {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", marker, name)
	}
	return nil
}

func (a *app) ingestHistory(ctx context.Context, args []string) error {
	fs := a.flagSet("ingest-history")
	start := fs.String("start", a.cfg.Gather.StartDate, "first day to download (YYYY-MM-DD)")
	end := fs.String("end", "", "last day to download (default: latest finished session)")
	quotes := fs.Bool("quotes", false, "also store the latest quote per symbol")
	news := fs.Int("news", 0, "also store up to N news articles per symbol")
	symbolsFile := fs.String("symbols-file", "", "CSV file whose first column lists symbols")
	force := fs.Bool("force", false, "forget recorded ingest progress before fetching")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	symbols := fs.Args()
	if *symbolsFile != "" {
		fromFile, err := gather.LoadSymbolsCSV(*symbolsFile)
		if err != nil {
			return err
		}
		symbols = append(symbols, fromFile...)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("%w: ingest-history needs at least one SYMBOL", errUsage)
	}
	if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
		return errors.New("alpaca credentials not configured (set APCA_API_KEY_ID and APCA_API_SECRET_KEY)")
	}

	src := gather.NewAlpacaSource(gather.AlpacaOptions{
		APIKey:    a.cfg.Alpaca.APIKey,
		APISecret: a.cfg.Alpaca.APISecret,
		BaseURL:   a.cfg.Alpaca.BaseURL,
		DataURL:   a.cfg.Alpaca.DataURL,
		Feed:      a.cfg.Alpaca.Feed,
	})

	from, err := parseDay(*start)
	if err != nil {
		return fmt.Errorf("%w: -start: %v", errUsage, err)
	}
	to := gather.ResolveEnd(src, domain.MarketUS, time.Now())
	if *end != "" {
		if to, err = parseDay(*end); err != nil {
			return fmt.Errorf("%w: -end: %v", errUsage, err)
		}
	}
	if to.Before(from) {
		return fmt.Errorf("%w: end %s before start %s", errUsage, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	progress, err := gather.OpenProgress(filepath.Join(a.cfg.Storage.DataDir, string(domain.MarketUS), "daily"))
	if err != nil {
		return err
	}
	if *force {
		if err := progress.Reset(); err != nil {
			return err
		}
	}

	g := a.cfg.Gather
	p := gather.NewPipeline(src, a.bars,
		gather.WithProgress(progress),
		gather.WithQuoteStore(a.bars),
		gather.WithNewsStore(a.bars),
		gather.WithMarket(string(domain.MarketUS)),
		gather.WithBatching(g.BatchSize, g.MaxWorkers),
		gather.WithRateLimit(g.RateLimitPerMin),
		gather.WithRetries(g.MaxRetries, time.Second),
		gather.WithPipelineLogger(a.log),
	)

	n, err := p.IngestHistory(ctx, symbols, from, to)
	fmt.Fprintf(a.out, "stored %d bars for %d symbols (%s → %s)\n",
		n, len(symbols), from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return err
	}
	if *quotes {
		q, err := p.IngestQuotes(ctx, symbols)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored %d quotes\n", q)
	}
	if *news > 0 {
		items, err := p.IngestNews(ctx, symbols, from, to.AddDate(0, 0, 1), *news)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored %d news items\n", items)
	}
	return nil
}

func (a *app) showLatestPrices(ctx context.Context, args []string) error {
	fs := a.flagSet("show-latest-prices")
	limit := fs.Int("limit", 5, "bars per symbol")
	market := fs.String("market", a.cfg.Backtest.Market, "market (us or cn)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	symbols := fs.Args()
	if len(symbols) == 0 {
		return fmt.Errorf("%w: show-latest-prices needs at least one SYMBOL", errUsage)
	}
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		bars, err := a.bars.LatestBars(ctx, sym, *market, *limit)
		if err != nil {
			return fmt.Errorf("reading %s: %w", sym, err)
		}
		if err := report.WriteBars(a.out, sym, bars); err != nil {
			return err
		}
	}
	return nil
}

// backtestFlags are the request flags shared by backtest and
// backtest-dry-run.
type backtestFlags struct {
	strategy *string
	symbols  *string
	market   *string
	start    *string
	end      *string
	cash     *float64
	params   *string
	limit    *int
}

func (a *app) registerBacktestFlags(fs *flag.FlagSet, limitName string) backtestFlags {
	return backtestFlags{
		strategy: fs.String("strategy", a.cfg.Backtest.Default.Name, "strategy name"),
		symbols:  fs.String("symbols", "", "comma-separated symbols"),
		market:   fs.String("market", "", "market (default from config)"),
		start:    fs.String("start", "", "first bar date (YYYY-MM-DD)"),
		end:      fs.String("end", "", "last bar date (YYYY-MM-DD)"),
		cash:     fs.Float64("cash", a.cfg.Backtest.StartingCash, "starting cash"),
		params:   fs.String("params", "", "strategy parameters as a JSON object"),
		limit:    fs.Int(limitName, 0, "use only the most recent N bars per symbol"),
	}
}

func (a *app) request(f backtestFlags, extra []string) (engine.Request, error) {
	req := engine.Request{
		Strategy:     *f.strategy,
		Market:       *f.market,
		StartingCash: *f.cash,
		Limit:        *f.limit,
		Params:       map[string]any{},
	}
	if def := a.cfg.Backtest.Default; def.Name == req.Strategy {
		for k, v := range def.Params {
			req.Params[k] = v
		}
	}
	if *f.params != "" {
		var overrides map[string]any
		if err := json.Unmarshal([]byte(*f.params), &overrides); err != nil {
			return req, fmt.Errorf("%w: -params: %v", errUsage, err)
		}
		for k, v := range overrides {
			req.Params[k] = v
		}
	}
	for _, s := range strings.Split(*f.symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			req.Symbols = append(req.Symbols, s)
		}
	}
	req.Symbols = append(req.Symbols, extra...)

	var err error
	if *f.start != "" {
		if req.Start, err = parseDay(*f.start); err != nil {
			return req, fmt.Errorf("%w: -start: %v", errUsage, err)
		}
	}
	if *f.end != "" {
		if req.End, err = parseDay(*f.end); err != nil {
			return req, fmt.Errorf("%w: -end: %v", errUsage, err)
		}
	}
	return req, nil
}

func (a *app) backtest(ctx context.Context, args []string) error {
	fs := a.flagSet("backtest")
	f := a.registerBacktestFlags(fs, "limit")
	chart := fs.String("chart", "", "write an HTML equity chart to this file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	req, err := a.request(f, fs.Args())
	if err != nil {
		return err
	}

	runs, err := a.openRuns()
	if err != nil {
		return err
	}
	res, err := a.backtester(runs).Run(ctx, req)
	if res == nil {
		return err
	}
	rec := res.Record()
	if werr := report.WriteSummary(a.out, rec); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	if *chart != "" {
		if err := writeChart(*chart, rec); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "chart written to %s\n", *chart)
	}
	return nil
}

func (a *app) backtestDryRun(ctx context.Context, args []string) error {
	fs := a.flagSet("backtest-dry-run")
	f := a.registerBacktestFlags(fs, "bars-limit")
	symbol := fs.String("symbol", "", "single symbol (alias of -symbols)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	extra := fs.Args()
	if *symbol != "" {
		extra = append([]string{*symbol}, extra...)
	}
	req, err := a.request(f, extra)
	if err != nil {
		return err
	}
	rep, err := a.backtester(nil).DryRun(ctx, req)
	if err != nil {
		return err
	}
	return report.WriteDryRun(a.out, rep)
}

func (a *app) runs(ctx context.Context, args []string) error {
	fs := a.flagSet("runs")
	limit := fs.Int("limit", 20, "number of runs to list")
	id := fs.String("id", "", "show a single run")
	chart := fs.String("chart", "", "with -id, write an HTML equity chart to this file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	rs, err := a.openRuns()
	if err != nil {
		return err
	}

	if *id == "" {
		list, err := rs.ListRuns(ctx, *limit)
		if err != nil {
			return err
		}
		return report.WriteRunList(a.out, list)
	}

	rec, err := rs.GetRun(ctx, *id)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(a.out, rec); err != nil {
		return err
	}
	if *chart != "" {
		if err := writeChart(*chart, rec); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "chart written to %s\n", *chart)
	}
	return nil
}

func writeChart(path string, rec *store.RunRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return report.RenderEquityChart(f, rec)
}

func parseDay(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}
