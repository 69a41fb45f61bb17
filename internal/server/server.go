package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GateServer serves gate configuration, project data and gate evaluation over
// HTTP and gRPC.
type GateServer struct {
	store     store.Store
	evaluator *gates.Evaluator
	publisher events.Publisher
	stream    *EventStream
}

// NewGateServer returns a GateServer backed by the given store, evaluator and
// publisher. Configuration and project events go to p and to stream; build the
// evaluator with events.Fanout{p, stream} so evaluations are streamed too. A
// nil stream gets a private one.
func NewGateServer(s store.Store, ev *gates.Evaluator, p events.Publisher, stream *EventStream) *GateServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if stream == nil {
		stream = NewEventStream()
	}
	return &GateServer{
		store:     s,
		evaluator: ev,
		publisher: p,
		stream:    stream,
	}
}

// publish sends a configuration or project event to the bus and the SSE
// stream. Failures are logged and never block the caller.
func (s *GateServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
	if err := s.stream.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to stream event", "topic", topic, "error", err)
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

func isInputError(err error) bool {
	var ie inputError
	var ve *model.ValidationError
	return errors.As(err, &ie) || errors.As(err, &ve)
}

// httpStatus maps a service error to an HTTP status code.
func httpStatus(err error) int {
	switch {
	case isInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// grpcError maps a service error to a gRPC status error.
func grpcError(err error) error {
	switch {
	case isInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// loadProject fetches a project with its relations, rejecting blank IDs.
func (s *GateServer) loadProject(ctx context.Context, id string) (*model.Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, inputError("project_id is required")
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// projectReport evaluates every active gate of the project's current stage.
func (s *GateServer) projectReport(ctx context.Context, projectID string, dryRun bool) (*gates.StageReport, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	subj := gates.ProjectSubject(p)
	if dryRun {
		return s.evaluator.DryReport(ctx, subj, p.StageID)
	}
	return s.evaluator.Report(ctx, subj, p.StageID)
}

// blockersResponse is the body of the blockers endpoint.
type blockersResponse struct {
	ProjectID  string                    `json:"project_id"`
	StageID    string                    `json:"stage_id"`
	CanAdvance bool                      `json:"can_advance"`
	Blockers   map[string]*gates.Blocker `json:"blockers"`
}

func (s *GateServer) projectBlockers(ctx context.Context, projectID string) (*blockersResponse, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	blockers, err := s.evaluator.Blockers(ctx, gates.ProjectSubject(p), p.StageID)
	if err != nil {
		return nil, err
	}
	return &blockersResponse{
		ProjectID:  p.ID,
		StageID:    p.StageID,
		CanAdvance: len(blockers) == 0,
		Blockers:   blockers,
	}, nil
}

// canAdvanceResponse is the result of the CanAdvance RPC.
type canAdvanceResponse struct {
	ProjectID  string `json:"project_id"`
	StageID    string `json:"stage_id"`
	CanAdvance bool   `json:"can_advance"`
}

func (s *GateServer) projectCanAdvance(ctx context.Context, projectID string) (*canAdvanceResponse, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ok, err := s.evaluator.CanAdvance(ctx, gates.ProjectSubject(p), p.StageID)
	if err != nil {
		return nil, err
	}
	return &canAdvanceResponse{ProjectID: p.ID, StageID: p.StageID, CanAdvance: ok}, nil
}

// evaluateResponse is the body of the evaluate endpoint.
type evaluateResponse struct {
	*gates.GateStatus
	ProjectID          string                             `json:"project_id"`
	RequirementResults map[string]model.RequirementResult `json:"requirement_results"`
	DryRun             bool                               `json:"dry_run"`
}

// evaluateProjectGate evaluates one gate of the project's current stage,
// looked up by key.
func (s *GateServer) evaluateProjectGate(ctx context.Context, projectID, gateKey string, evalType model.EvaluationType, dryRun bool) (*evaluateResponse, error) {
	if strings.TrimSpace(gateKey) == "" {
		return nil, inputError("gate_key is required")
	}
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	gate, err := s.store.GetGateByKey(ctx, p.StageID, gateKey)
	if err != nil {
		return nil, err
	}

	subj := gates.ProjectSubject(p)
	var res *gates.Result
	if dryRun {
		res, err = s.evaluator.DryEvaluate(ctx, subj, gate)
	} else {
		res, err = s.evaluator.Evaluate(ctx, subj, gate, evalType)
	}
	if err != nil {
		return nil, err
	}
	return &evaluateResponse{
		GateStatus:         res.Status(),
		ProjectID:          p.ID,
		RequirementResults: res.RequirementResults,
		DryRun:             dryRun,
	}, nil
}
