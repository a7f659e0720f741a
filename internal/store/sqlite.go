package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradelab/internal/domain"
	"tradelab/internal/portfolio"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database. Money columns
// are stored as decimal strings so persisted values round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			params_json TEXT NOT NULL,
			symbols TEXT NOT NULL,
			market TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			starting_cash TEXT NOT NULL,
			final_cash TEXT NOT NULL,
			final_equity TEXT NOT NULL,
			bars_loaded INTEGER NOT NULL DEFAULT 0,
			total_return REAL NOT NULL DEFAULT 0,
			sharpe_ratio REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			profit_factor REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_positions (
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			qty TEXT NOT NULL,
			cost_basis TEXT NOT NULL,
			PRIMARY KEY (run_id, symbol),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS run_fills (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			price TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			ts INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS run_equity (
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			equity TEXT NOT NULL,
			PRIMARY KEY (run_id, ts),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun inserts run and its children in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
			id, strategy, params_json, symbols, market, start_ts, end_ts,
			starting_cash, final_cash, final_equity, bars_loaded,
			total_return, sharpe_ratio, max_drawdown, total_trades, win_rate, profit_factor,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, string(params), strings.Join(run.Symbols, ","), run.Market,
		run.Start.UnixMilli(), run.End.UnixMilli(),
		money(run.StartingCash), money(run.FinalCash), money(run.FinalEquity), run.BarsLoaded,
		run.Metrics.TotalReturn, run.Metrics.SharpeRatio, run.Metrics.MaxDrawdown,
		run.Metrics.TotalTrades, run.Metrics.WinRate, run.Metrics.ProfitFactor,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, p := range run.Positions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_positions (run_id, symbol, qty, cost_basis) VALUES (?, ?, ?, ?)`,
			run.ID, p.Symbol, money(p.Qty), money(p.CostBasis),
		); err != nil {
			return fmt.Errorf("inserting position %s: %w", p.Symbol, err)
		}
	}
	for i, f := range run.Fills {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_fills (run_id, seq, order_id, symbol, side, qty, price, realized_pnl, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, f.Order.ID, f.Order.Symbol, string(f.Order.Side),
			money(f.Qty), money(f.Price), money(f.RealizedPnL), f.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("inserting fill %d: %w", i, err)
		}
	}
	for _, p := range run.Equity {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO run_equity (run_id, ts, equity) VALUES (?, ?, ?)`,
			run.ID, p.Timestamp.UnixMilli(), money(p.Equity),
		); err != nil {
			return fmt.Errorf("inserting equity point: %w", err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, strategy, params_json, symbols, market, start_ts, end_ts,
	starting_cash, final_cash, final_equity, bars_loaded,
	total_return, sharpe_ratio, max_drawdown, total_trades, win_rate, profit_factor,
	created_at`

// GetRun retrieves a run with its positions, fills and equity curve.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if run.Positions, err = s.positions(ctx, id); err != nil {
		return nil, err
	}
	if run.Fills, err = s.fills(ctx, id); err != nil {
		return nil, err
	}
	if run.Equity, err = s.equity(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, with their positions.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Positions, err = s.positions(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		run                               RunRecord
		params, symbols                   string
		startMs, endMs, createdMs         int64
		startCash, finalCash, finalEquity string
	)
	err := sc.Scan(
		&run.ID, &run.Strategy, &params, &symbols, &run.Market, &startMs, &endMs,
		&startCash, &finalCash, &finalEquity, &run.BarsLoaded,
		&run.Metrics.TotalReturn, &run.Metrics.SharpeRatio, &run.Metrics.MaxDrawdown,
		&run.Metrics.TotalTrades, &run.Metrics.WinRate, &run.Metrics.ProfitFactor,
		&createdMs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params of run %s: %w", run.ID, err)
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	if run.StartingCash, err = parseMoney(startCash); err != nil {
		return nil, err
	}
	if run.FinalCash, err = parseMoney(finalCash); err != nil {
		return nil, err
	}
	if run.FinalEquity, err = parseMoney(finalEquity); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) positions(ctx context.Context, runID string) ([]portfolio.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, qty, cost_basis FROM run_positions WHERE run_id = ? ORDER BY symbol`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.Position
	for rows.Next() {
		var p portfolio.Position
		var qty, basis string
		if err := rows.Scan(&p.Symbol, &qty, &basis); err != nil {
			return nil, err
		}
		if p.Qty, err = parseMoney(qty); err != nil {
			return nil, err
		}
		if p.CostBasis, err = parseMoney(basis); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) fills(ctx context.Context, runID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, symbol, side, qty, price, realized_pnl, ts FROM run_fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Fill
	for rows.Next() {
		var (
			f               domain.Fill
			side            string
			qty, price, pnl string
			ts              int64
		)
		if err := rows.Scan(&f.Order.ID, &f.Order.Symbol, &side, &qty, &price, &pnl, &ts); err != nil {
			return nil, err
		}
		f.Order.Side = domain.OrderSide(side)
		f.Order.Type = domain.OrderTypeMarket
		if f.Qty, err = parseMoney(qty); err != nil {
			return nil, err
		}
		if f.Price, err = parseMoney(price); err != nil {
			return nil, err
		}
		if f.RealizedPnL, err = parseMoney(pnl); err != nil {
			return nil, err
		}
		f.Order.Qty = f.Qty
		f.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) equity(ctx context.Context, runID string) ([]EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, equity FROM run_equity WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var ts int64
		var eq string
		if err := rows.Scan(&ts, &eq); err != nil {
			return nil, err
		}
		v, err := parseMoney(eq)
		if err != nil {
			return nil, err
		}
		out = append(out, EquityPoint{Timestamp: time.UnixMilli(ts).UTC(), Equity: v})
	}
	return out, rows.Err()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseMoney(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}
