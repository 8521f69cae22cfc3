package api

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"screener/internal/store"
)

// DefaultRunLimit bounds ListRuns when the request sets no limit.
const DefaultRunLimit = 20

// Stores is the read side of the relational store used by the service.
type Stores interface {
	store.SignalStore
	store.EquityStore
	store.RunStore
}

var _ InspectionServer = (*Service)(nil)

// Service implements InspectionServer over a Stores.
type Service struct {
	store Stores
	log   *slog.Logger
}

// NewService creates a Service reading from s.
func NewService(s Stores, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, log: log.With("component", "inspection")}
}

// GetEquityCurve returns the equity curve of req.strategy.
func (s *Service) GetEquityCurve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	strategy := str(req, "strategy")
	if strategy == "" {
		return nil, status.Error(codes.InvalidArgument, "strategy is required")
	}
	points, err := s.store.ReadEquity(ctx, strategy)
	if err != nil {
		return nil, s.internal("reading equity", err)
	}
	if len(points) == 0 {
		return nil, status.Errorf(codes.NotFound, "no equity curve for strategy %q", strategy)
	}
	return EncodeEquity(strategy, points)
}

// ListSignals returns the signals of req.ticker, optionally bounded by
// req.start and req.end.
func (s *Service) ListSignals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker := strings.ToUpper(str(req, "ticker"))
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}
	start, err := date(req, "start")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	end, err := date(req, "end")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, status.Error(codes.InvalidArgument, "end before start")
	}

	recs, err := s.store.ReadSignals(ctx, ticker, store.Range{Start: start, End: end})
	if err != nil {
		return nil, s.internal("reading signals", err)
	}
	return EncodeSignals(ticker, recs)
}

// ListRuns returns recent backtest runs, newest first.
func (s *Service) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := num(req, "limit")
	if limit < 0 || limit != math.Trunc(limit) {
		return nil, status.Error(codes.InvalidArgument, "limit must be a non-negative integer")
	}
	n := int(limit)
	if n == 0 {
		n = DefaultRunLimit
	}
	runs, err := s.store.ListRuns(ctx, str(req, "strategy"), n)
	if err != nil {
		return nil, s.internal("listing runs", err)
	}
	return EncodeRuns(runs)
}

func (s *Service) internal(what string, err error) error {
	if code := status.FromContextError(err).Code(); code == codes.Canceled || code == codes.DeadlineExceeded {
		return status.Error(code, err.Error())
	}
	s.log.Error(what+" failed", "err", err)
	return status.Error(codes.Internal, what+" failed")
}
