package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"screener/internal/domain"
)

// Compile-time interface checks.
var _ Store = (*PostgresStore)(nil)

// BatchPageSize is the number of rows sent per pgx batch.
const BatchPageSize = 1000

// PostgresStore implements Store on PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewPostgresStore connects to the database at dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool, tx: NewTxManager(pool)}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("applying postgres schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.tx.Close()
	return nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// TxManager runs functions inside read-committed transactions.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager wraps pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Close closes the pool.
func (m *TxManager) Close() {
	m.pool.Close()
}

// RunTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic.
func (m *TxManager) RunTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("committing tx: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}

// sendPaged queues one statement per row and flushes every BatchPageSize rows.
func sendPaged(ctx context.Context, tx pgx.Tx, query string, n int, args func(i int) []any) error {
	for lo := 0; lo < n; lo += BatchPageSize {
		hi := min(lo+BatchPageSize, n)
		batch := &pgx.Batch{}
		for i := lo; i < hi; i++ {
			batch.Queue(query, args(i)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("rows %d-%d: %w", lo, hi-1, err)
		}
	}
	return nil
}

// pgBounds renders r as inclusive date bounds.
func pgBounds(r Range) (time.Time, time.Time) {
	start := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if !r.Start.IsZero() {
		start = r.Start
	}
	if !r.End.IsZero() {
		end = r.End
	}
	return start, end
}

func nullPtr[T any](n sql.Null[T]) *T {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

func fromPtr[T any](p *T) sql.Null[T] {
	if p == nil {
		return sql.Null[T]{}
	}
	return domain.Valid(*p)
}

func bandPtr(b domain.RSIBand) *string {
	if !b.Valid() {
		return nil
	}
	s := string(b)
	return &s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing numeric %q: %w", s, err)
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WriteBars inserts bars, leaving existing (ticker, trade_date) rows as-is.
func (s *PostgresStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const q = `
		INSERT INTO prices_daily (ticker, trade_date, open, high, low, close, adj_close, volume)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8)
		ON CONFLICT (ticker, trade_date) DO NOTHING`
	err := s.tx.RunTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return sendPaged(ctx, tx, q, len(bars), func(i int) []any {
			b := bars[i]
			return []any{
				b.Ticker, b.TradeDate,
				b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
				b.AdjClose.String(), b.Volume,
			}
		})
	})
	if err != nil {
		return fmt.Errorf("writing %d bars: %w", len(bars), err)
	}
	return nil
}

// ReadBars returns bars for the ticker within r, ordered by trade date.
func (s *PostgresStore) ReadBars(ctx context.Context, ticker string, r Range) ([]domain.Bar, error) {
	start, end := pgBounds(r)
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, trade_date,
		       COALESCE(open, 0)::text, COALESCE(high, 0)::text,
		       COALESCE(low, 0)::text, COALESCE(close, 0)::text,
		       adj_close::text, COALESCE(volume, 0)
		FROM prices_daily
		WHERE ticker = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date`, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b                         domain.Bar
			open, high, low, cl, adjC string
		)
		if err := rows.Scan(&b.Ticker, &b.TradeDate, &open, &high, &low, &cl, &adjC, &b.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, cl}, {&b.AdjClose, adjC}} {
			if *f.dst, err = parseDecimal(f.src); err != nil {
				return nil, err
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListTickers returns all distinct tickers in prices_daily.
func (s *PostgresStore) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ticker FROM prices_daily ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	return tickers, nil
}

// ReadPrices returns adjusted-close observations ordered by (ticker, trade_date).
func (s *PostgresStore) ReadPrices(ctx context.Context, r Range) ([]domain.PriceObservation, error) {
	start, end := pgBounds(r)
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, trade_date, adj_close::text
		FROM prices_daily
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY ticker, trade_date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying prices: %w", err)
	}
	defer rows.Close()

	var obs []domain.PriceObservation
	for rows.Next() {
		var (
			o     domain.PriceObservation
			price string
		)
		if err := rows.Scan(&o.Ticker, &o.TradeDate, &price); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}
		if o.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// UpsertSignals inserts or replaces signal rows in pages of BatchPageSize.
func (s *PostgresStore) UpsertSignals(ctx context.Context, recs []domain.SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO daily_signals (
			ticker, trade_date, momentum_12_1, sma_20, sma_50, sma_200,
			sma_stack_flag, rsi_14, rsi_band)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			momentum_12_1 = EXCLUDED.momentum_12_1,
			sma_20 = EXCLUDED.sma_20,
			sma_50 = EXCLUDED.sma_50,
			sma_200 = EXCLUDED.sma_200,
			sma_stack_flag = EXCLUDED.sma_stack_flag,
			rsi_14 = EXCLUDED.rsi_14,
			rsi_band = EXCLUDED.rsi_band`
	err := s.tx.RunTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return sendPaged(ctx, tx, q, len(recs), func(i int) []any {
			r := recs[i]
			return []any{
				r.Ticker, r.TradeDate,
				nullPtr(r.Momentum12_1), nullPtr(r.SMA20), nullPtr(r.SMA50), nullPtr(r.SMA200),
				nullPtr(r.SMAStackFlag), nullPtr(r.RSI14), bandPtr(r.RSIBand),
			}
		})
	})
	if err != nil {
		return fmt.Errorf("upserting %d signals: %w", len(recs), err)
	}
	return nil
}

// ReadSignals returns the signals of one ticker within r, ordered by date.
func (s *PostgresStore) ReadSignals(ctx context.Context, ticker string, r Range) ([]domain.SignalRecord, error) {
	start, end := pgBounds(r)
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, trade_date, momentum_12_1, sma_20, sma_50, sma_200,
		       sma_stack_flag, rsi_14, rsi_band
		FROM daily_signals
		WHERE ticker = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date`, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying signals for %s: %w", ticker, err)
	}
	defer rows.Close()

	var recs []domain.SignalRecord
	for rows.Next() {
		var (
			rec                        domain.SignalRecord
			mom, s20, s50, s200, rsi14 *float64
			stack                      *bool
			band                       *string
		)
		if err := rows.Scan(&rec.Ticker, &rec.TradeDate, &mom, &s20, &s50, &s200, &stack, &rsi14, &band); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		rec.Momentum12_1 = fromPtr(mom)
		rec.SMA20, rec.SMA50, rec.SMA200 = fromPtr(s20), fromPtr(s50), fromPtr(s200)
		rec.SMAStackFlag = fromPtr(stack)
		rec.RSI14 = fromPtr(rsi14)
		if band != nil {
			if err := rec.RSIBand.Scan(*band); err != nil {
				return nil, err
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ReadPriceSignals joins prices_daily and daily_signals.
func (s *PostgresStore) ReadPriceSignals(ctx context.Context) ([]domain.PriceSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.ticker, p.trade_date, p.adj_close::text, s.momentum_12_1
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
			ps    domain.PriceSignal
			price string
			mom   *float64
		)
		if err := rows.Scan(&ps.Ticker, &ps.TradeDate, &price, &mom); err != nil {
			return nil, fmt.Errorf("scanning price signal: %w", err)
		}
		if ps.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		ps.Momentum12_1 = fromPtr(mom)
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// EquityStore implementation
// ---------------------------------------------------------------------------

// UpsertEquity inserts or replaces equity curve points.
func (s *PostgresStore) UpsertEquity(ctx context.Context, points []domain.EquityCurvePoint) error {
	if len(points) == 0 {
		return nil
	}
	const q = `
		INSERT INTO backtest_equity (strategy_name, trade_date, portfolio_value, daily_return)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strategy_name, trade_date) DO UPDATE SET
			portfolio_value = EXCLUDED.portfolio_value,
			daily_return = EXCLUDED.daily_return`
	err := s.tx.RunTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return sendPaged(ctx, tx, q, len(points), func(i int) []any {
			p := points[i]
			return []any{p.StrategyName, p.TradeDate, p.PortfolioValue, p.DailyReturn}
		})
	})
	if err != nil {
		return fmt.Errorf("upserting %d equity points: %w", len(points), err)
	}
	return nil
}

// ReadEquity returns a strategy's equity curve ordered by trade date.
func (s *PostgresStore) ReadEquity(ctx context.Context, strategy string) ([]domain.EquityCurvePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT strategy_name, trade_date, portfolio_value, daily_return
		FROM backtest_equity
		WHERE strategy_name = $1
		ORDER BY trade_date`, strategy)
	if err != nil {
		return nil, fmt.Errorf("querying equity for %s: %w", strategy, err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EquityCurvePoint, error) {
		var p domain.EquityCurvePoint
		err := row.Scan(&p.StrategyName, &p.TradeDate, &p.PortfolioValue, &p.DailyReturn)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning equity: %w", err)
	}
	return points, nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a backtest run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *domain.BacktestRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtest_runs (
			run_id, strategy_name, created_at, start_date, end_date,
			points, skipped_dates, final_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.RunID, run.StrategyName, run.CreatedAt,
		datePtr(run.StartDate), datePtr(run.EndDate),
		run.Points, run.SkippedDates, run.FinalValue)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, strategy string, limit int) ([]domain.BacktestRun, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, strategy_name, created_at, start_date, end_date,
		       points, skipped_dates, final_value
		FROM backtest_runs
		WHERE $1 = '' OR strategy_name = $1
		ORDER BY created_at DESC, run_id DESC
		LIMIT $2`, strategy, lim)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BacktestRun, error) {
		var (
			run        domain.BacktestRun
			start, end *time.Time
		)
		if err := row.Scan(&run.RunID, &run.StrategyName, &run.CreatedAt, &start, &end,
			&run.Points, &run.SkippedDates, &run.FinalValue); err != nil {
			return run, err
		}
		if start != nil {
			run.StartDate = *start
		}
		if end != nil {
			run.EndDate = *end
		}
		run.CreatedAt = run.CreatedAt.UTC()
		return run, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning runs: %w", err)
	}
	return runs, nil
}

func datePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
