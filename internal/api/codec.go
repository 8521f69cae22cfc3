package api

import (
	"database/sql"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"screener/internal/domain"
)

// Wire encoding of domain values as google.protobuf.Struct. Dates travel as
// YYYY-MM-DD strings, undefined indicators as null.

func nullable[T any](v sql.Null[T]) any {
	if !v.Valid {
		return nil
	}
	return v.V
}

func toNull[T any](v *structpb.Value, get func(*structpb.Value) T) sql.Null[T] {
	if v == nil {
		return sql.Null[T]{}
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return sql.Null[T]{}
	}
	return domain.Valid(get(v))
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func date(s *structpb.Struct, key string) (time.Time, error) {
	v := str(s, key)
	if v == "" {
		return time.Time{}, nil
	}
	return domain.ParseDate(v)
}

func list(s *structpb.Struct, key string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if sv := v.GetStructValue(); sv != nil {
			out = append(out, sv)
		}
	}
	return out
}

// EncodeEquity builds the GetEquityCurve response.
func EncodeEquity(strategy string, points []domain.EquityCurvePoint) (*structpb.Struct, error) {
	rows := make([]any, len(points))
	for i, p := range points {
		rows[i] = map[string]any{
			"trade_date":      p.TradeDate.Format(domain.DateLayout),
			"daily_return":    p.DailyReturn,
			"portfolio_value": p.PortfolioValue,
		}
	}
	return structpb.NewStruct(map[string]any{"strategy": strategy, "points": rows})
}

// DecodeEquity parses a GetEquityCurve response.
func DecodeEquity(s *structpb.Struct) ([]domain.EquityCurvePoint, error) {
	strategy := str(s, "strategy")
	rows := list(s, "points")
	out := make([]domain.EquityCurvePoint, 0, len(rows))
	for _, r := range rows {
		d, err := date(r, "trade_date")
		if err != nil {
			return nil, err
		}
		out = append(out, domain.EquityCurvePoint{
			StrategyName:   strategy,
			TradeDate:      d,
			DailyReturn:    num(r, "daily_return"),
			PortfolioValue: num(r, "portfolio_value"),
		})
	}
	return out, nil
}

// EncodeSignals builds the ListSignals response.
func EncodeSignals(ticker string, recs []domain.SignalRecord) (*structpb.Struct, error) {
	rows := make([]any, len(recs))
	for i, r := range recs {
		var band any
		if r.RSIBand.Valid() {
			band = string(r.RSIBand)
		}
		rows[i] = map[string]any{
			"trade_date":     r.TradeDate.Format(domain.DateLayout),
			"momentum_12_1":  nullable(r.Momentum12_1),
			"sma_20":         nullable(r.SMA20),
			"sma_50":         nullable(r.SMA50),
			"sma_200":        nullable(r.SMA200),
			"sma_stack_flag": nullable(r.SMAStackFlag),
			"rsi_14":         nullable(r.RSI14),
			"rsi_band":       band,
		}
	}
	return structpb.NewStruct(map[string]any{"ticker": ticker, "signals": rows})
}

// DecodeSignals parses a ListSignals response.
func DecodeSignals(s *structpb.Struct) ([]domain.SignalRecord, error) {
	ticker := str(s, "ticker")
	rows := list(s, "signals")
	out := make([]domain.SignalRecord, 0, len(rows))
	for _, r := range rows {
		d, err := date(r, "trade_date")
		if err != nil {
			return nil, err
		}
		f := r.GetFields()
		rec := domain.SignalRecord{
			Ticker:       ticker,
			TradeDate:    d,
			Momentum12_1: toNull(f["momentum_12_1"], (*structpb.Value).GetNumberValue),
			SMA20:        toNull(f["sma_20"], (*structpb.Value).GetNumberValue),
			SMA50:        toNull(f["sma_50"], (*structpb.Value).GetNumberValue),
			SMA200:       toNull(f["sma_200"], (*structpb.Value).GetNumberValue),
			SMAStackFlag: toNull(f["sma_stack_flag"], (*structpb.Value).GetBoolValue),
			RSI14:        toNull(f["rsi_14"], (*structpb.Value).GetNumberValue),
		}
		if err := rec.RSIBand.Scan(str(r, "rsi_band")); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeRuns builds the ListRuns response.
func EncodeRuns(runs []domain.BacktestRun) (*structpb.Struct, error) {
	rows := make([]any, len(runs))
	for i, r := range runs {
		rows[i] = map[string]any{
			"run_id":        r.RunID,
			"strategy":      r.StrategyName,
			"created_at":    r.CreatedAt.UTC().Format(time.RFC3339Nano),
			"start_date":    formatOptionalDate(r.StartDate),
			"end_date":      formatOptionalDate(r.EndDate),
			"points":        float64(r.Points),
			"skipped_dates": float64(r.SkippedDates),
			"final_value":   r.FinalValue,
		}
	}
	return structpb.NewStruct(map[string]any{"runs": rows})
}

// DecodeRuns parses a ListRuns response.
func DecodeRuns(s *structpb.Struct) ([]domain.BacktestRun, error) {
	rows := list(s, "runs")
	out := make([]domain.BacktestRun, 0, len(rows))
	for _, r := range rows {
		created, err := time.Parse(time.RFC3339Nano, str(r, "created_at"))
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		start, err := date(r, "start_date")
		if err != nil {
			return nil, err
		}
		end, err := date(r, "end_date")
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BacktestRun{
			RunID:        str(r, "run_id"),
			StrategyName: str(r, "strategy"),
			CreatedAt:    created,
			StartDate:    start,
			EndDate:      end,
			Points:       int(num(r, "points")),
			SkippedDates: int(num(r, "skipped_dates")),
			FinalValue:   num(r, "final_value"),
		})
	}
	return out, nil
}

func formatOptionalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
