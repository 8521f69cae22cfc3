package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"screener/internal/metrics"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "screener.v1.Inspection"

// RPC method names.
const (
	MethodGetEquityCurve = "GetEquityCurve"
	MethodListSignals    = "ListSignals"
	MethodListRuns       = "ListRuns"
)

// FullMethod returns the invocation path of a method, e.g.
// "/screener.v1.Inspection/ListRuns".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// InspectionServer is the server API of the inspection service. Requests
// and responses are google.protobuf.Struct messages.
type InspectionServer interface {
	GetEquityCurve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSignals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(InspectionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InspectionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(InspectionServer), ctx, req.(*structpb.Struct))
		})
	}
}

// InspectionServiceDesc describes the inspection service for registration.
var InspectionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodGetEquityCurve, Handler: unaryHandler(MethodGetEquityCurve, InspectionServer.GetEquityCurve)},
		{MethodName: MethodListSignals, Handler: unaryHandler(MethodListSignals, InspectionServer.ListSignals)},
		{MethodName: MethodListRuns, Handler: unaryHandler(MethodListRuns, InspectionServer.ListRuns)},
	},
	Metadata: "screener/v1/inspection.proto",
}

// RegisterInspectionServer registers srv on s.
func RegisterInspectionServer(s grpc.ServiceRegistrar, srv InspectionServer) {
	s.RegisterService(&InspectionServiceDesc, srv)
}

// countRequests is a unary interceptor recording every RPC by method and
// status code.
func countRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	metrics.RPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}
