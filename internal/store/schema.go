package store

// sqliteSchema stores dates as YYYY-MM-DD text and prices as decimal text.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prices_daily (
    ticker      TEXT    NOT NULL,
    trade_date  TEXT    NOT NULL,
    open        TEXT,
    high        TEXT,
    low         TEXT,
    close       TEXT,
    adj_close   TEXT    NOT NULL,
    volume      INTEGER,
    PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS daily_signals (
    ticker          TEXT    NOT NULL,
    trade_date      TEXT    NOT NULL,
    momentum_12_1   REAL,
    sma_20          REAL,
    sma_50          REAL,
    sma_200         REAL,
    sma_stack_flag  INTEGER,
    rsi_14          REAL,
    rsi_band        TEXT,
    PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS backtest_equity (
    strategy_name    TEXT   NOT NULL,
    trade_date       TEXT   NOT NULL,
    portfolio_value  REAL   NOT NULL,
    daily_return     REAL   NOT NULL,
    PRIMARY KEY (strategy_name, trade_date)
);

CREATE TABLE IF NOT EXISTS backtest_runs (
    run_id         TEXT     PRIMARY KEY,
    strategy_name  TEXT     NOT NULL,
    created_at     INTEGER  NOT NULL,
    start_date     TEXT,
    end_date       TEXT,
    points         INTEGER  NOT NULL,
    skipped_dates  INTEGER  NOT NULL,
    final_value    REAL     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_strategy ON backtest_runs (strategy_name, created_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS prices_daily (
    ticker      TEXT            NOT NULL,
    trade_date  DATE            NOT NULL,
    open        NUMERIC(18, 6),
    high        NUMERIC(18, 6),
    low         NUMERIC(18, 6),
    close       NUMERIC(18, 6),
    adj_close   NUMERIC(18, 6)  NOT NULL,
    volume      BIGINT,
    PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS daily_signals (
    ticker          TEXT              NOT NULL,
    trade_date      DATE              NOT NULL,
    momentum_12_1   DOUBLE PRECISION,
    sma_20          DOUBLE PRECISION,
    sma_50          DOUBLE PRECISION,
    sma_200         DOUBLE PRECISION,
    sma_stack_flag  BOOLEAN,
    rsi_14          DOUBLE PRECISION,
    rsi_band        TEXT,
    PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS backtest_equity (
    strategy_name    TEXT              NOT NULL,
    trade_date       DATE              NOT NULL,
    portfolio_value  DOUBLE PRECISION  NOT NULL,
    daily_return     DOUBLE PRECISION  NOT NULL,
    PRIMARY KEY (strategy_name, trade_date)
);

CREATE TABLE IF NOT EXISTS backtest_runs (
    run_id         TEXT              PRIMARY KEY,
    strategy_name  TEXT              NOT NULL,
    created_at     TIMESTAMPTZ       NOT NULL,
    start_date     DATE,
    end_date       DATE,
    points         INTEGER           NOT NULL,
    skipped_dates  INTEGER           NOT NULL,
    final_value    DOUBLE PRECISION  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_strategy ON backtest_runs (strategy_name, created_at);
`
