package events

import (
	"context"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// Event topic constants
const (
	TopicEvaluationRecorded = "gates.evaluation.recorded"
	TopicGatePassed         = "gates.gate.passed"
	TopicGateFailed         = "gates.gate.failed"

	// Gate configuration changes.
	TopicGateCreated     = "gates.gate.created"
	TopicGateDeactivated = "gates.gate.deactivated"
	TopicGateDeleted     = "gates.gate.deleted"

	// Project changes (emitted by the host application or the HTTP API,
	// consumed by the re-evaluation handler).
	TopicProjectChanged      = "gates.project.changed"
	TopicProjectUpdated      = "gates.project.updated"
	TopicProjectRecordAdded  = "gates.project.record_added"
	TopicProjectStageChanged = "gates.project.stage_changed"

	// TopicProjectAll matches every project topic.
	TopicProjectAll = "gates.project.>"
)

// Event types

type EvaluationRecorded struct {
	Evaluation *model.Evaluation `json:"evaluation"`
}

// GateOutcome is published on TopicGatePassed or TopicGateFailed after an
// evaluation is recorded.
type GateOutcome struct {
	ProjectID     string               `json:"project_id"`
	GateID        string               `json:"gate_id"`
	GateKey       string               `json:"gate_key"`
	EvaluationID  string               `json:"evaluation_id"`
	Passed        bool                 `json:"passed"`
	IsBlocking    bool                 `json:"is_blocking"`
	LockTypes     []model.LockType     `json:"lock_types"`
	TaskTemplates []model.TaskTemplate `json:"task_templates,omitempty"`
}

type GateCreated struct {
	Gate *model.Gate `json:"gate"`
}

type GateDeactivated struct {
	GateID string `json:"gate_id"`
}

type GateDeleted struct {
	GateID string `json:"gate_id"`
}

// ProjectChanged is the payload of every gates.project.* topic.
type ProjectChanged struct {
	ProjectID string `json:"project_id"`
	Relation  string `json:"relation,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
