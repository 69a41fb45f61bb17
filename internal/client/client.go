// Package client provides a transport-agnostic interface for the stagegate
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
)

// GateClient is what the sg CLI uses to query gate state. It is implemented
// by HTTPClient (default) and GRPCClient.
type GateClient interface {
	GateStatus(ctx context.Context, projectID string, dryRun bool) (*gates.StageReport, error)
	CanAdvance(ctx context.Context, projectID string) (*CanAdvanceResponse, error)
	Blockers(ctx context.Context, projectID string) (*BlockersResponse, error)
	Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// CanAdvanceResponse reports whether a project may leave its current stage.
type CanAdvanceResponse struct {
	ProjectID  string `json:"project_id"`
	StageID    string `json:"stage_id"`
	CanAdvance bool   `json:"can_advance"`
}

// BlockersResponse lists the failing blocking gates keyed by gate_key.
type BlockersResponse struct {
	ProjectID  string                    `json:"project_id"`
	StageID    string                    `json:"stage_id"`
	CanAdvance bool                      `json:"can_advance"`
	Blockers   map[string]*gates.Blocker `json:"blockers"`
}

// EvaluateRequest holds parameters for evaluating one gate.
type EvaluateRequest struct {
	ProjectID      string
	GateKey        string
	EvaluationType model.EvaluationType // empty means manual
	EvaluatedBy    string
	DryRun         bool
}

// EvaluateResponse is the outcome of a single gate evaluation.
type EvaluateResponse struct {
	gates.GateStatus
	ProjectID          string                             `json:"project_id"`
	RequirementResults map[string]model.RequirementResult `json:"requirement_results"`
	DryRun             bool                               `json:"dry_run"`
}

// ListEvaluationsRequest filters the evaluation audit trail of a project.
type ListEvaluationsRequest struct {
	ProjectID string
	GateID    string
	Limit     int
}
