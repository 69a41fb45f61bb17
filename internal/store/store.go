package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// Store defines the persistence interface for stages, gates and evaluations.
type Store interface {
	// Stages
	CreateStage(ctx context.Context, stage *model.Stage) error
	GetStage(ctx context.Context, id string) (*model.Stage, error)
	GetStageByKey(ctx context.Context, stageKey string) (*model.Stage, error)
	ListStages(ctx context.Context) ([]*model.Stage, error)

	// Gates. Gates are ordered by sequence, then gate key.
	CreateGate(ctx context.Context, gate *model.Gate) error
	GetGate(ctx context.Context, id string) (*model.Gate, error)
	GetGateByKey(ctx context.Context, stageID, gateKey string) (*model.Gate, error)
	ListGates(ctx context.Context, filter model.GateFilter) ([]*model.Gate, error)
	UpdateGate(ctx context.Context, gate *model.Gate) error
	// DeactivateGate marks the gate and all of its requirements inactive.
	DeactivateGate(ctx context.Context, id string) error
	// DeleteGate removes the gate and its requirements. Evaluations are kept.
	DeleteGate(ctx context.Context, id string) error

	// Requirements. With activeOnly set, only active requirements of an
	// active gate are returned.
	CreateRequirement(ctx context.Context, req *model.Requirement) error
	GetRequirement(ctx context.Context, id string) (*model.Requirement, error)
	ListRequirements(ctx context.Context, gateID string, activeOnly bool) ([]*model.Requirement, error)
	UpdateRequirement(ctx context.Context, req *model.Requirement) error
	DeleteRequirement(ctx context.Context, id string) error

	// Projects. GetProject loads every relation.
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, stageID string) ([]*model.Project, error)
	UpdateProject(ctx context.Context, project *model.Project) error
	AddRecord(ctx context.Context, rec *model.Record) error

	// Evaluations are append-only.
	RecordEvaluation(ctx context.Context, ev *model.Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error)
	ListEvaluations(ctx context.Context, filter model.EvaluationFilter) ([]*model.Evaluation, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
