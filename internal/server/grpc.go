package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
)

// GateServiceName is the fully qualified gRPC service name.
const GateServiceName = "stagegate.v1.GateService"

// Full method names of the GateService RPCs.
const (
	MethodGetGateStatus = "/" + GateServiceName + "/GetGateStatus"
	MethodCanAdvance    = "/" + GateServiceName + "/CanAdvance"
	MethodGetBlockers   = "/" + GateServiceName + "/GetBlockers"
	MethodEvaluateGate  = "/" + GateServiceName + "/EvaluateGate"
	MethodHealth        = "/" + GateServiceName + "/Health"
)

// GateServiceServer is the server API of stagegate.v1.GateService. Requests
// and responses are google.protobuf.Struct messages carrying the same JSON
// shapes as the HTTP API.
type GateServiceServer interface {
	// GetGateStatus takes {project_id, dry_run?}.
	GetGateStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// CanAdvance takes {project_id}.
	CanAdvance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetBlockers takes {project_id}.
	GetBlockers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// EvaluateGate takes {project_id, gate_key, evaluation_type?, evaluated_by?, dry_run?}.
	EvaluateGate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ GateServiceServer = (*GateServer)(nil)

func unaryHandler(method string, call func(GateServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GateServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(GateServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// GateServiceDesc describes stagegate.v1.GateService for grpc.ServiceRegistrar.
var GateServiceDesc = grpc.ServiceDesc{
	ServiceName: GateServiceName,
	HandlerType: (*GateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetGateStatus", Handler: unaryHandler(MethodGetGateStatus, GateServiceServer.GetGateStatus)},
		{MethodName: "CanAdvance", Handler: unaryHandler(MethodCanAdvance, GateServiceServer.CanAdvance)},
		{MethodName: "GetBlockers", Handler: unaryHandler(MethodGetBlockers, GateServiceServer.GetBlockers)},
		{MethodName: "EvaluateGate", Handler: unaryHandler(MethodEvaluateGate, GateServiceServer.EvaluateGate)},
		{MethodName: "Health", Handler: unaryHandler(MethodHealth, GateServiceServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stagegate/v1/gates.proto",
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the GateService, the standard health service and reflection, and returns
// the server ready to serve.
func NewGRPCServer(gateServer *GateServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			ActorInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&GateServiceDesc, gateServer)

	hs := health.NewServer()
	hs.SetServingStatus(GateServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)
	return srv
}

// GetGateStatus evaluates every gate of the project's current stage.
func (s *GateServer) GetGateStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.projectReport(ctx, stringArg(in, "project_id"), boolArg(in, "dry_run"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(report)
}

// CanAdvance reports whether the project may leave its current stage.
func (s *GateServer) CanAdvance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.projectCanAdvance(ctx, stringArg(in, "project_id"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// GetBlockers returns the failing blocking gates of the project's stage.
func (s *GateServer) GetBlockers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.projectBlockers(ctx, stringArg(in, "project_id"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// EvaluateGate evaluates one gate of the project's current stage.
func (s *GateServer) EvaluateGate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	evalType := model.EvalManual
	if v := stringArg(in, "evaluation_type"); v != "" {
		evalType = model.EvaluationType(v)
		if !evalType.IsValid() {
			return nil, grpcError(inputError(fmt.Sprintf("invalid evaluation_type %q", v)))
		}
	}
	if actor := stringArg(in, "evaluated_by"); actor != "" {
		ctx = gates.WithActor(ctx, actor)
	}
	resp, err := s.evaluateProjectGate(ctx, stringArg(in, "project_id"), stringArg(in, "gate_key"), evalType, boolArg(in, "dry_run"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// Health reports that the service is up.
func (s *GateServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func stringArg(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func boolArg(in *structpb.Struct, name string) bool {
	return in.GetFields()[name].GetBoolValue()
}

// toStruct converts a JSON-encodable value to a Struct via its JSON form, so
// gRPC and HTTP responses share one shape.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, grpcError(fmt.Errorf("encoding response: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, grpcError(fmt.Errorf("encoding response: %w", err))
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcError(fmt.Errorf("encoding response: %w", err))
	}
	return st, nil
}
