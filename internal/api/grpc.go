package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"quantdesk/internal/backtest"
	"quantdesk/internal/domain"
	"quantdesk/internal/heatmap"
)

// Messages travel as google.protobuf.Struct holding the same JSON objects
// the HTTP API uses, so no generated message types are needed.

const backtestServiceName = "quantdesk.v1.Backtest"

// Full method names.
const (
	MethodRun     = "/" + backtestServiceName + "/Run"
	MethodHeatmap = "/" + backtestServiceName + "/Heatmap"
	MethodHealth  = "/" + backtestServiceName + "/Health"
)

// BacktestServer is the server API for the quantdesk.v1.Backtest service.
type BacktestServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Heatmap streams progress events followed by one result event.
	Heatmap(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterBacktestServer registers srv on s.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&backtestServiceDesc, srv)
}

func unaryHandler(method string, call func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func heatmapHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BacktestServer).Heatmap(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: backtestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unaryHandler(MethodRun, BacktestServer.Run)},
		{MethodName: "Health", Handler: unaryHandler(MethodHealth, BacktestServer.Health)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Heatmap", Handler: heatmapHandler, ServerStreams: true},
	},
	Metadata: "quantdesk/v1/backtest.proto",
}

// grpcService implements BacktestServer on top of the same collaborators
// as the HTTP handlers.
type grpcService struct {
	deps Deps
	log  *slog.Logger
}

func (g *grpcService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req backtest.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	res, err := g.deps.Backtester.Run(ctx, req)
	if err != nil {
		return nil, g.statusError(MethodRun, err)
	}
	return toStruct(res)
}

func (g *grpcService) Heatmap(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var req heatmap.Request
	if err := fromStruct(in, &req); err != nil {
		return err
	}

	var sendErr error
	res, err := g.deps.Aggregator.Scan(stream.Context(), g.deps.Provider, req, func(p heatmap.Progress) {
		if sendErr != nil {
			return
		}
		msg, err := toStruct(WSMessage{Type: EventProgress, Progress: &p})
		if err == nil {
			err = stream.Send(msg)
		}
		sendErr = err
	})
	if err != nil {
		return g.statusError(MethodHeatmap, err)
	}
	if sendErr != nil {
		return sendErr
	}
	msg, err := toStruct(WSMessage{Type: EventResult, Result: res})
	if err != nil {
		return err
	}
	return stream.Send(msg)
}

func (g *grpcService) Health(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req HealthRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return toStruct(g.deps.Provider.Health(ctx, req.Credentials))
}

func (g *grpcService) statusError(method string, err error) error {
	level := slog.LevelInfo
	if domain.Kind(err) == "Internal" {
		level = slog.LevelError
	}
	g.log.Log(context.Background(), level, "grpc call failed", "method", method, "kind", domain.Kind(err), "err", err)
	return status.Error(GRPCCode(err), err.Error())
}

// GRPCCode maps an error kind to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch domain.Kind(err) {
	case "":
		return codes.OK
	case "InvalidRequest", "UnknownStrategy", "UnknownIndicator", "InvalidParameter", "InvalidHorizon":
		return codes.InvalidArgument
	case "InsufficientData":
		return codes.FailedPrecondition
	case "DataUnavailable":
		return codes.Unavailable
	case "Cancelled":
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}

// toStruct encodes v as a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// GRPCClient calls the quantdesk.v1.Backtest service.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Run executes a backtest.
func (c *GRPCClient) Run(ctx context.Context, req backtest.Request, opts ...grpc.CallOption) (*backtest.Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRun, in, out, opts...); err != nil {
		return nil, err
	}
	var res backtest.Result
	if err := fromStruct(out, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health checks market-data credentials.
func (c *GRPCClient) Health(ctx context.Context, creds domain.Credentials, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := toStruct(HealthRequest{Credentials: creds})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodHealth, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Heatmap runs a heatmap scan, calling progress for every progress event.
func (c *GRPCClient) Heatmap(ctx context.Context, req heatmap.Request, progress heatmap.ProgressFunc, opts ...grpc.CallOption) (*heatmap.Result, error) {
	stream, err := c.cc.NewStream(ctx, &backtestServiceDesc.Streams[0], MethodHeatmap, opts...)
	if err != nil {
		return nil, err
	}
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			return nil, err
		}
		var msg WSMessage
		if err := fromStruct(out, &msg); err != nil {
			return nil, err
		}
		switch {
		case msg.Type == EventProgress && msg.Progress != nil:
			if progress != nil {
				progress(*msg.Progress)
			}
		case msg.Type == EventResult && msg.Result != nil:
			return msg.Result, nil
		default:
			return nil, fmt.Errorf("unexpected heatmap message %q", msg.Type)
		}
	}
}
