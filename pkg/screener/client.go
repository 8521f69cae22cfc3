// Package screener is a Go client for the screener inspection service.
package screener

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"screener/internal/api"
	"screener/internal/domain"
)

// Client calls the inspection service over gRPC.
type Client struct {
	conn *grpc.ClientConn
	// owned is set when Close should close conn.
	owned bool
}

// NewClient connects to the server at addr without transport security.
// Extra dial options are appended.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn, owned: true}, nil
}

// NewClientFromConn wraps an existing connection. Close leaves it open.
func NewClientFromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close releases the connection if the client created it.
func (c *Client) Close() error {
	if c.owned {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// EquityCurve returns the stored equity curve of a strategy.
func (c *Client) EquityCurve(ctx context.Context, strategy string) ([]domain.EquityCurvePoint, error) {
	out, err := c.call(ctx, api.MethodGetEquityCurve, map[string]any{"strategy": strategy})
	if err != nil {
		return nil, err
	}
	return api.DecodeEquity(out)
}

// Signals returns a ticker's signals between start and end inclusive. Zero
// bounds are open.
func (c *Client) Signals(ctx context.Context, ticker string, start, end time.Time) ([]domain.SignalRecord, error) {
	req := map[string]any{"ticker": ticker}
	if !start.IsZero() {
		req["start"] = start.Format(domain.DateLayout)
	}
	if !end.IsZero() {
		req["end"] = end.Format(domain.DateLayout)
	}
	out, err := c.call(ctx, api.MethodListSignals, req)
	if err != nil {
		return nil, err
	}
	return api.DecodeSignals(out)
}

// Runs returns up to limit recent backtest runs, newest first. An empty
// strategy matches all; limit 0 uses the server default.
func (c *Client) Runs(ctx context.Context, strategy string, limit int) ([]domain.BacktestRun, error) {
	req := map[string]any{"limit": limit}
	if strategy != "" {
		req["strategy"] = strategy
	}
	out, err := c.call(ctx, api.MethodListRuns, req)
	if err != nil {
		return nil, err
	}
	return api.DecodeRuns(out)
}
