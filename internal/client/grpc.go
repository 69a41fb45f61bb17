package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/stagegate/internal/gates"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names of stagegate.v1.GateService.
const (
	grpcGetGateStatus = "/stagegate.v1.GateService/GetGateStatus"
	grpcCanAdvance    = "/stagegate.v1.GateService/CanAdvance"
	grpcGetBlockers   = "/stagegate.v1.GateService/GetBlockers"
	grpcEvaluateGate  = "/stagegate.v1.GateService/EvaluateGate"
	grpcHealth        = "/stagegate.v1.GateService/Health"
)

// GRPCClient implements GateClient using the gRPC transport.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
	actor string
}

var _ GateClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// Extra dial options are applied after the insecure transport default.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

// WithActor sets the actor sent as x-actor metadata on every call.
func (c *GRPCClient) WithActor(actor string) *GRPCClient {
	c.actor = actor
	return c
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) GateStatus(ctx context.Context, projectID string, dryRun bool) (*gates.StageReport, error) {
	var report gates.StageReport
	if err := c.invoke(ctx, grpcGetGateStatus, map[string]any{"project_id": projectID, "dry_run": dryRun}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *GRPCClient) CanAdvance(ctx context.Context, projectID string) (*CanAdvanceResponse, error) {
	var resp CanAdvanceResponse
	if err := c.invoke(ctx, grpcCanAdvance, map[string]any{"project_id": projectID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Blockers(ctx context.Context, projectID string) (*BlockersResponse, error) {
	var resp BlockersResponse
	if err := c.invoke(ctx, grpcGetBlockers, map[string]any{"project_id": projectID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	args := map[string]any{
		"project_id": req.ProjectID,
		"gate_key":   req.GateKey,
		"dry_run":    req.DryRun,
	}
	if req.EvaluationType != "" {
		args["evaluation_type"] = string(req.EvaluationType)
	}
	if req.EvaluatedBy != "" {
		args["evaluated_by"] = req.EvaluatedBy
	}
	var resp EvaluateResponse
	if err := c.invoke(ctx, grpcEvaluateGate, args, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.invoke(ctx, grpcHealth, map[string]any{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// invoke sends args as a Struct and decodes the Struct reply into result
// through its JSON form.
func (c *GRPCClient) invoke(ctx context.Context, method string, args map[string]any, result any) error {
	in, err := structpb.NewStruct(args)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	if c.actor != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-actor", c.actor)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	data, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
