package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tradelab/internal/domain"
	"tradelab/internal/store"
	"tradelab/internal/util"
)

// Pipeline moves data from a MarketDataSource into the stores. Symbols are
// fetched in batches by a bounded pool of workers; every provider call is
// rate limited and retried.
type Pipeline struct {
	source     MarketDataSource
	bars       store.BarStore
	quotes     store.QuoteStore
	news       store.NewsStore
	market     string
	batchSize  int
	maxWorkers int
	limiter    *util.RateLimiter
	retries    int
	retryDelay time.Duration
	progress   *Progress
	log        *slog.Logger

	writeMu sync.Mutex
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithQuoteStore enables IngestQuotes.
func WithQuoteStore(qs store.QuoteStore) PipelineOption {
	return func(p *Pipeline) { p.quotes = qs }
}

// WithNewsStore enables IngestNews.
func WithNewsStore(ns store.NewsStore) PipelineOption {
	return func(p *Pipeline) { p.news = ns }
}

// WithMarket sets the market directory bars are written under.
func WithMarket(market string) PipelineOption {
	return func(p *Pipeline) { p.market = market }
}

// WithBatching sets symbols per provider call and concurrent calls.
func WithBatching(batchSize, maxWorkers int) PipelineOption {
	return func(p *Pipeline) {
		if batchSize > 0 {
			p.batchSize = batchSize
		}
		if maxWorkers > 0 {
			p.maxWorkers = maxWorkers
		}
	}
}

// WithRateLimit caps provider calls per minute. Zero disables the limit.
func WithRateLimit(perMinute int) PipelineOption {
	return func(p *Pipeline) { p.limiter = util.NewRateLimiter(perMinute) }
}

// WithRetries sets attempts per provider call and the first backoff delay.
func WithRetries(attempts int, baseDelay time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.retries = max(attempts, 1)
		p.retryDelay = baseDelay
	}
}

// WithProgress skips symbols already ingested through the requested end
// and records each completed batch.
func WithProgress(pr *Progress) PipelineOption {
	return func(p *Pipeline) { p.progress = pr }
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a Pipeline writing bars from source into bars.
func NewPipeline(source MarketDataSource, bars store.BarStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		source:     source,
		bars:       bars,
		market:     "us",
		batchSize:  100,
		maxWorkers: 4,
		retries:    3,
		retryDelay: time.Second,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "gather", "source", source.Name())
	return p
}

// Sources lists the provider names this pipeline reads from.
func (p *Pipeline) Sources() []string {
	return []string{p.source.Name()}
}

// IngestHistory fetches daily bars for symbols within [start, end] and
// writes them to the bar store. It returns the number of bars written.
// A failed batch is logged and skipped; the failures are joined into the
// returned error once every batch has been attempted.
func (p *Pipeline) IngestHistory(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	symbols = p.pending(normalizeSymbols(symbols), end)
	batches := batch(symbols, p.batchSize)
	if len(batches) == 0 {
		p.log.Info("nothing to ingest", "end", end.Format(time.DateOnly))
		return 0, nil
	}

	var (
		written  atomic.Int64
		failMu   sync.Mutex
		failures []error
		runStart = time.Now()
	)

	p.log.Info("ingest started",
		"symbols", len(symbols),
		"batches", len(batches),
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i, syms := range batches {
		g.Go(func() error {
			label := fmt.Sprintf("%d/%d", i+1, len(batches))
			n, err := p.ingestBatch(gctx, syms, start, end)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.log.Error("batch failed", "batch", label, "err", err)
				failMu.Lock()
				failures = append(failures, fmt.Errorf("batch %s (%s): %w", label, strings.Join(syms, ","), err))
				failMu.Unlock()
				return nil
			}
			written.Add(int64(n))
			p.log.Info("batch done",
				"batch", label,
				"bars", n,
				"elapsed", time.Since(runStart).Round(time.Millisecond),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}

	p.log.Info("ingest complete", "bars", written.Load(), "failedBatches", len(failures))
	return int(written.Load()), errors.Join(failures...)
}

func (p *Pipeline) ingestBatch(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	var bars []domain.Bar
	err := p.call(ctx, func() error {
		var err error
		bars, err = p.source.FetchHistory(ctx, symbols, start, end)
		return err
	})
	if err != nil {
		return 0, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if len(bars) > 0 {
		if err := p.bars.WriteBars(ctx, p.market, bars); err != nil {
			return 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	// Symbols with no bars are recorded too so reruns do not refetch them.
	if p.progress != nil {
		if err := p.progress.MarkCompleted(symbols, end); err != nil {
			p.log.Warn("recording progress", "err", err)
		}
	}
	return len(bars), nil
}

// pending drops symbols the progress file shows as done through end.
func (p *Pipeline) pending(symbols []string, end time.Time) []string {
	if p.progress == nil {
		return symbols
	}
	out := symbols[:0:0]
	for _, sym := range symbols {
		if !p.progress.Completed(sym, end) {
			out = append(out, sym)
		}
	}
	if skipped := len(symbols) - len(out); skipped > 0 {
		p.log.Info("skipping completed symbols", "skipped", skipped)
	}
	return out
}

// IngestQuotes fetches the latest quotes for symbols and writes them to the
// quote store.
func (p *Pipeline) IngestQuotes(ctx context.Context, symbols []string) (int, error) {
	if p.quotes == nil {
		return 0, errors.New("no quote store configured")
	}
	total := 0
	for _, syms := range batch(normalizeSymbols(symbols), p.batchSize) {
		var quotes []domain.Quote
		err := p.call(ctx, func() error {
			var err error
			quotes, err = p.source.FetchQuotes(ctx, syms)
			return err
		})
		if err != nil {
			return total, err
		}
		if err := p.quotes.WriteQuotes(ctx, p.market, quotes); err != nil {
			return total, fmt.Errorf("writing quotes: %w", err)
		}
		total += len(quotes)
	}
	p.log.Info("quotes ingested", "quotes", total)
	return total, nil
}

// IngestNews fetches up to limit articles per symbol within [start, end]
// and writes them to the news store. The source must implement NewsSource.
func (p *Pipeline) IngestNews(ctx context.Context, symbols []string, start, end time.Time, limit int) (int, error) {
	ns, ok := p.source.(NewsSource)
	if !ok {
		return 0, fmt.Errorf("source %s does not provide news", p.source.Name())
	}
	if p.news == nil {
		return 0, errors.New("no news store configured")
	}
	total := 0
	for _, sym := range normalizeSymbols(symbols) {
		var items []domain.NewsItem
		err := p.call(ctx, func() error {
			var err error
			items, err = ns.FetchNews(ctx, sym, start, end, limit)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("news for %s: %w", sym, err)
		}
		if err := p.news.WriteNews(ctx, p.market, items); err != nil {
			return total, fmt.Errorf("writing news for %s: %w", sym, err)
		}
		total += len(items)
	}
	p.log.Info("news ingested", "items", total)
	return total, nil
}

// call runs fn under the rate limiter with retries.
func (p *Pipeline) call(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, p.retries, p.retryDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
}

// normalizeSymbols upper-cases symbols and drops blanks and duplicates.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

// batch splits symbols into chunks of at most size.
func batch(symbols []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		batches = append(batches, symbols[i:min(i+size, len(symbols))])
	}
	return batches
}
