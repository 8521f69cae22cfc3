package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"screener/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore. Call Migrate before first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("applying sqlite schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteBounds renders r as inclusive text bounds.
func sqliteBounds(r Range) (string, string) {
	start, end := "0000-01-01", "9999-12-31"
	if !r.Start.IsZero() {
		start = r.Start.Format(domain.DateLayout)
	}
	if !r.End.IsZero() {
		end = r.End.Format(domain.DateLayout)
	}
	return start, end
}

// execBatch runs one prepared statement for every row in a transaction.
func (s *SQLiteStore) execBatch(ctx context.Context, query string, n int, args func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WriteBars inserts bars, leaving existing (ticker, trade_date) rows as-is.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	err := s.execBatch(ctx, `
		INSERT INTO prices_daily (ticker, trade_date, open, high, low, close, adj_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, trade_date) DO NOTHING`,
		len(bars), func(i int) []any {
			b := bars[i]
			return []any{
				b.Ticker, b.TradeDate.Format(domain.DateLayout),
				b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
				b.AdjClose.String(), b.Volume,
			}
		})
	if err != nil {
		return fmt.Errorf("writing %d bars: %w", len(bars), err)
	}
	return nil
}

// ReadBars returns bars for the ticker within r, ordered by trade date.
func (s *SQLiteStore) ReadBars(ctx context.Context, ticker string, r Range) ([]domain.Bar, error) {
	start, end := sqliteBounds(r)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, trade_date, open, high, low, close, adj_close, volume
		FROM prices_daily
		WHERE ticker = ? AND trade_date BETWEEN ? AND ?
		ORDER BY trade_date`, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b      domain.Bar
			date   string
			volume sql.NullInt64
		)
		if err := rows.Scan(&b.Ticker, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &volume); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		if b.TradeDate, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		b.Volume = volume.Int64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListTickers returns all distinct tickers in prices_daily.
func (s *SQLiteStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM prices_daily ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ReadPrices returns adjusted-close observations ordered by (ticker, trade_date).
func (s *SQLiteStore) ReadPrices(ctx context.Context, r Range) ([]domain.PriceObservation, error) {
	start, end := sqliteBounds(r)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, trade_date, adj_close
		FROM prices_daily
		WHERE trade_date BETWEEN ? AND ?
		ORDER BY ticker, trade_date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer rows.Close()

	var obs []domain.PriceObservation
	for rows.Next() {
		var (
			o    domain.PriceObservation
			date string
		)
		if err := rows.Scan(&o.Ticker, &date, &o.Price); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		if o.TradeDate, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// UpsertSignals inserts or replaces signal rows.
func (s *SQLiteStore) UpsertSignals(ctx context.Context, recs []domain.SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := s.execBatch(ctx, `
		INSERT INTO daily_signals (
			ticker, trade_date, momentum_12_1, sma_20, sma_50, sma_200,
			sma_stack_flag, rsi_14, rsi_band)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, trade_date) DO UPDATE SET
			momentum_12_1=excluded.momentum_12_1,
			sma_20=excluded.sma_20,
			sma_50=excluded.sma_50,
			sma_200=excluded.sma_200,
			sma_stack_flag=excluded.sma_stack_flag,
			rsi_14=excluded.rsi_14,
			rsi_band=excluded.rsi_band`,
		len(recs), func(i int) []any {
			r := recs[i]
			return []any{
				r.Ticker, r.TradeDate.Format(domain.DateLayout),
				r.Momentum12_1, r.SMA20, r.SMA50, r.SMA200,
				r.SMAStackFlag, r.RSI14, r.RSIBand,
			}
		})
	if err != nil {
		return fmt.Errorf("upserting %d signals: %w", len(recs), err)
	}
	return nil
}

// ReadSignals returns the signals of one ticker within r, ordered by date.
func (s *SQLiteStore) ReadSignals(ctx context.Context, ticker string, r Range) ([]domain.SignalRecord, error) {
	start, end := sqliteBounds(r)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, trade_date, momentum_12_1, sma_20, sma_50, sma_200,
		       sma_stack_flag, rsi_14, rsi_band
		FROM daily_signals
		WHERE ticker = ? AND trade_date BETWEEN ? AND ?
		ORDER BY trade_date`, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying signals for %s: %w", ticker, err)
	}
	defer rows.Close()

	var recs []domain.SignalRecord
	for rows.Next() {
		var (
			rec  domain.SignalRecord
			date string
		)
		if err := rows.Scan(&rec.Ticker, &date, &rec.Momentum12_1, &rec.SMA20, &rec.SMA50,
			&rec.SMA200, &rec.SMAStackFlag, &rec.RSI14, &rec.RSIBand); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		if rec.TradeDate, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ReadPriceSignals joins prices_daily and daily_signals.
func (s *SQLiteStore) ReadPriceSignals(ctx context.Context) ([]domain.PriceSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.ticker, p.trade_date, p.adj_close, s.momentum_12_1
		FROM prices_daily p
		JOIN daily_signals s ON p.ticker = s.ticker AND p.trade_date = s.trade_date
		ORDER BY p.ticker, p.trade_date`)
	if err != nil {
		return nil, fmt.Errorf("querying price signals: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceSignal
	for rows.Next() {
		var (
			ps   domain.PriceSignal
			date string
		)
		if err := rows.Scan(&ps.Ticker, &date, &ps.Price, &ps.Momentum12_1); err != nil {
			return nil, fmt.Errorf("scanning price signal: %w", err)
		}
		if ps.TradeDate, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// EquityStore implementation
// ---------------------------------------------------------------------------

// UpsertEquity inserts or replaces equity curve points.
func (s *SQLiteStore) UpsertEquity(ctx context.Context, points []domain.EquityCurvePoint) error {
	if len(points) == 0 {
		return nil
	}
	err := s.execBatch(ctx, `
		INSERT INTO backtest_equity (strategy_name, trade_date, portfolio_value, daily_return)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(strategy_name, trade_date) DO UPDATE SET
			portfolio_value=excluded.portfolio_value,
			daily_return=excluded.daily_return`,
		len(points), func(i int) []any {
			p := points[i]
			return []any{p.StrategyName, p.TradeDate.Format(domain.DateLayout), p.PortfolioValue, p.DailyReturn}
		})
	if err != nil {
		return fmt.Errorf("upserting %d equity points: %w", len(points), err)
	}
	return nil
}

// ReadEquity returns a strategy's equity curve ordered by trade date.
func (s *SQLiteStore) ReadEquity(ctx context.Context, strategy string) ([]domain.EquityCurvePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_name, trade_date, portfolio_value, daily_return
		FROM backtest_equity
		WHERE strategy_name = ?
		ORDER BY trade_date`, strategy)
	if err != nil {
		return nil, fmt.Errorf("querying equity for %s: %w", strategy, err)
	}
	defer rows.Close()

	var points []domain.EquityCurvePoint
	for rows.Next() {
		var (
			p    domain.EquityCurvePoint
			date string
		)
		if err := rows.Scan(&p.StrategyName, &date, &p.PortfolioValue, &p.DailyReturn); err != nil {
			return nil, fmt.Errorf("scanning equity point: %w", err)
		}
		if p.TradeDate, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a backtest run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			run_id, strategy_name, created_at, start_date, end_date,
			points, skipped_dates, final_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StrategyName, run.CreatedAt.UnixMilli(),
		nullDate(run.StartDate), nullDate(run.EndDate),
		run.Points, run.SkippedDates, run.FinalValue)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]domain.BacktestRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy_name, created_at, start_date, end_date,
		       points, skipped_dates, final_value
		FROM backtest_runs
		WHERE ? = '' OR strategy_name = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`, strategy, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		var (
			run        domain.BacktestRun
			createdMs  int64
			start, end sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.StrategyName, &createdMs, &start, &end,
			&run.Points, &run.SkippedDates, &run.FinalValue); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.CreatedAt = time.UnixMilli(createdMs).UTC()
		if start.Valid {
			if run.StartDate, err = domain.ParseDate(start.String); err != nil {
				return nil, err
			}
		}
		if end.Valid {
			if run.EndDate, err = domain.ParseDate(end.String); err != nil {
				return nil, err
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(domain.DateLayout), Valid: true}
}
