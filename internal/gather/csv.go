package gather

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"screener/internal/domain"
)

// Compile-time interface check.
var _ Gatherer = (*CSVGatherer)(nil)

// CSVGatherer imports daily bars from a CSV file with a header row. The
// ticker, trade_date and adj_close columns are required; open, high, low,
// close and volume are optional. A missing close falls back to adj_close.
type CSVGatherer struct {
	path      string
	sink      Sinks
	batchSize int
	log       *slog.Logger
}

// NewCSVGatherer creates a CSVGatherer reading path and writing batches of
// batchSize bars to sink.
func NewCSVGatherer(path string, sink Sinks, batchSize int) *CSVGatherer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &CSVGatherer{
		path:      path,
		sink:      sink,
		batchSize: batchSize,
		log:       slog.Default().With("gatherer", "csv"),
	}
}

// Name returns the gatherer identifier.
func (g *CSVGatherer) Name() string { return "csv" }

// Run imports the whole file.
func (g *CSVGatherer) Run(ctx context.Context) error {
	f, err := os.Open(g.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", g.path, err)
	}
	defer f.Close()

	n, err := g.Import(ctx, f)
	if err != nil {
		return err
	}
	g.log.Info("import complete", "path", g.path, "bars", n)
	return nil
}

// Import reads bars from r and writes them in batches. It returns the number
// of bars written.
func (g *CSVGatherer) Import(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return 0, err
	}

	var (
		batch   []domain.Bar
		written int
		line    = 1
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := g.sink.WriteBars(ctx, batch); err != nil {
			return fmt.Errorf("writing bars: %w", err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return written, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}

		bar, err := parseBar(rec, cols)
		if err != nil {
			return written, fmt.Errorf("csv line %d: %w", line, err)
		}
		batch = append(batch, bar)
		if len(batch) >= g.batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

var requiredColumns = []string{"ticker", "trade_date", "adj_close"}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", c)
		}
	}
	return cols, nil
}

func parseBar(rec []string, cols map[string]int) (domain.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(name string) (decimal.Decimal, error) {
		v := field(name)
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("column %s: %w", name, err)
		}
		return d, nil
	}

	var (
		b   domain.Bar
		err error
	)
	b.Ticker = strings.ToUpper(field("ticker"))
	if b.Ticker == "" {
		return b, errors.New("empty ticker")
	}
	if b.TradeDate, err = domain.ParseDate(field("trade_date")); err != nil {
		return b, err
	}
	if field("adj_close") == "" {
		return b, errors.New("empty adj_close")
	}
	for _, p := range []struct {
		dst  *decimal.Decimal
		name string
	}{{&b.Open, "open"}, {&b.High, "high"}, {&b.Low, "low"}, {&b.Close, "close"}, {&b.AdjClose, "adj_close"}} {
		if *p.dst, err = num(p.name); err != nil {
			return b, err
		}
	}
	if field("close") == "" {
		b.Close = b.AdjClose
	}
	if v := field("volume"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return b, fmt.Errorf("column volume: %w", err)
		}
		b.Volume = int64(f)
	}
	return b, nil
}
