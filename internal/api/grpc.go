package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tradelab/internal/store"
)

// Full method names of tradelab.v1.BacktestService. Requests and responses
// are google.protobuf.Struct messages carrying the same JSON shapes as the
// HTTP API.
const (
	BacktestServiceName  = "tradelab.v1.BacktestService"
	RunBacktestMethod    = "/" + BacktestServiceName + "/RunBacktest"
	ListStrategiesMethod = "/" + BacktestServiceName + "/ListStrategies"
)

// BacktestServiceServer is the server API for tradelab.v1.BacktestService.
type BacktestServiceServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBacktest", Handler: runBacktestHandler},
		{MethodName: "ListStrategies", Handler: listStrategiesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradelab/v1/backtest.proto",
}

// RegisterBacktestService registers srv on gs.
func RegisterBacktestService(gs grpc.ServiceRegistrar, srv BacktestServiceServer) {
	gs.RegisterService(&backtestServiceDesc, srv)
}

func runBacktestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).RunBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunBacktestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).RunBacktest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listStrategiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).ListStrategies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListStrategiesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).ListStrategies(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// backtestService implements BacktestServiceServer on top of the Server's
// Backtester.
type backtestService struct {
	s *Server
}

var _ BacktestServiceServer = backtestService{}

func (g backtestService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	wire, err := decodeRequestMap(in.AsMap())
	if err != nil {
		return nil, grpcError(err)
	}
	rec, err := g.s.runBacktest(ctx, wire)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := toStruct(rec)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding run: %v", err)
	}
	return out, nil
}

func (g backtestService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := g.s.backtester.Strategies()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	out, err := structpb.NewStruct(map[string]any{"strategies": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding strategies: %v", err)
	}
	return out, nil
}

// toStruct converts a run record to a Struct through its JSON form so both
// surfaces share one field naming.
func toStruct(rec *store.RunRecord) (*structpb.Struct, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func grpcError(err error) error {
	if isInvalidRequest(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// unaryLogger logs every unary call with its duration and status code.
func unaryLogger(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}

// BacktestService returns the gRPC service backed by s, for registration on
// an externally managed grpc.Server.
func (s *Server) BacktestService() BacktestServiceServer {
	return backtestService{s: s}
}
