package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const progressFile = ".last-completed"

// Progress records, per symbol, the last day an ingest completed through.
// It lets a rerun over the same range skip symbols already fetched. The
// state lives in a small text file of "SYMBOL YYYY-MM-DD" lines.
type Progress struct {
	mu   sync.Mutex
	path string
	done map[string]time.Time
}

// OpenProgress loads the progress file in dir, creating dir if needed.
func OpenProgress(dir string) (*Progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	p := &Progress{
		path: filepath.Join(dir, progressFile),
		done: make(map[string]time.Time),
	}

	f, err := os.Open(p.path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", progressFile, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sym, day, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok {
			continue
		}
		t, err := time.Parse(time.DateOnly, strings.TrimSpace(day))
		if err != nil {
			continue
		}
		p.done[sym] = t
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", progressFile, err)
	}
	return p, nil
}

// Completed reports whether symbol has been ingested through end.
func (p *Progress) Completed(symbol string, end time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.done[symbol]
	return ok && !last.Before(truncateDay(end))
}

// LastCompleted returns the day symbol was last ingested through.
func (p *Progress) LastCompleted(symbol string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.done[symbol]
	return t, ok
}

// MarkCompleted records symbols as ingested through end and persists the
// whole set.
func (p *Progress) MarkCompleted(symbols []string, end time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := truncateDay(end)
	for _, sym := range symbols {
		if last, ok := p.done[sym]; !ok || last.Before(day) {
			p.done[sym] = day
		}
	}
	return p.flushLocked()
}

// Reset forgets every symbol.
func (p *Progress) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = make(map[string]time.Time)
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *Progress) flushLocked() error {
	symbols := make([]string, 0, len(p.done))
	for sym := range p.done {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var b strings.Builder
	for _, sym := range symbols {
		fmt.Fprintf(&b, "%s %s\n", sym, p.done[sym].Format(time.DateOnly))
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", progressFile, err)
	}
	return os.Rename(tmp, p.path)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
