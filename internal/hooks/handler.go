// Package hooks reacts to project changes on the event bus: it re-evaluates
// the project's current stage and creates the follow-up tasks of gates that
// pass.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/idgen"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

// Task fields written on follow-up tasks.
const (
	TaskTypeGateFollowup = "gate_followup"
	TaskStateOpen        = "open"
)

// Handler re-evaluates projects when they change.
type Handler struct {
	store     store.Store
	evaluator *gates.Evaluator
	logger    *slog.Logger
}

// NewHandler creates a handler backed by the given store and evaluator.
func NewHandler(s store.Store, ev *gates.Evaluator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, evaluator: ev, logger: logger}
}

// Outcome summarizes one handled project change.
type Outcome struct {
	ProjectID    string
	Results      map[string]*gates.Result // by gate key
	TasksCreated int
}

// HandleProjectChanged evaluates every gate of the project's current stage
// with type automatic and creates follow-up tasks for passing gates that
// declare them. Unknown projects are ignored.
func (h *Handler) HandleProjectChanged(ctx context.Context, event events.ProjectChanged) (*Outcome, error) {
	if event.ProjectID == "" {
		return nil, nil
	}
	p, err := h.store.GetProject(ctx, event.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Info("hooks: project not found", "project_id", event.ProjectID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", event.ProjectID, err)
	}

	results, err := h.evaluator.EvaluateCurrentStage(ctx, gates.ProjectSubject(p), model.EvalAutomatic)
	if err != nil {
		return nil, fmt.Errorf("evaluating project %s: %w", p.ID, err)
	}
	out := &Outcome{ProjectID: p.ID, Results: results}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		r := results[k]
		if !r.Passed || !r.Gate.CreatesTasksOnPass {
			continue
		}
		n, err := h.createTasks(ctx, p, r.Gate)
		out.TasksCreated += n
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// createTasks adds a task record for each template of gate that has no task
// yet. A task matches a template when it carries the gate ID and the title.
func (h *Handler) createTasks(ctx context.Context, p *model.Project, gate *model.Gate) (int, error) {
	existing := p.Records(model.RelTasks)
	created := 0
	for _, tmpl := range gate.TaskTemplates {
		if tmpl.Title == "" || hasTask(existing, gate.ID, tmpl.Title) {
			continue
		}
		id, err := idgen.New(idgen.PrefixRecord)
		if err != nil {
			return created, err
		}
		rec := &model.Record{
			ID:        id,
			ProjectID: p.ID,
			Relation:  model.RelTasks,
			Fields: map[string]any{
				"title":       tmpl.Title,
				"description": tmpl.Description,
				"task_type":   TaskTypeGateFollowup,
				"state":       TaskStateOpen,
				"gate_id":     gate.ID,
				"gate_key":    gate.GateKey,
			},
		}
		if err := h.store.AddRecord(ctx, rec); err != nil {
			return created, fmt.Errorf("creating task %q for gate %s: %w", tmpl.Title, gate.GateKey, err)
		}
		existing = append(existing, rec)
		created++
		h.logger.Info("hooks: created follow-up task", "project_id", p.ID, "gate", gate.GateKey, "title", tmpl.Title)
	}
	return created, nil
}

func hasTask(tasks []*model.Record, gateID, title string) bool {
	for _, t := range tasks {
		if t.Fields["gate_id"] == gateID && t.Fields["title"] == title {
			return true
		}
	}
	return false
}

// StartSubscriber listens for project changes on the event bus and handles
// each one. It blocks until ctx is cancelled.
func (h *Handler) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicProjectAll)
	if err != nil {
		return fmt.Errorf("hooks: subscribe: %w", err)
	}
	defer cancel()

	h.logger.Info("hooks: subscriber started", "topic", events.TopicProjectAll)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hooks: subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				h.logger.Info("hooks: subscription channel closed")
				return nil
			}

			var event events.ProjectChanged
			if err := json.Unmarshal(raw, &event); err != nil {
				h.logger.Warn("hooks: bad event payload", "err", err)
				continue
			}

			out, err := h.HandleProjectChanged(ctx, event)
			if err != nil {
				h.logger.Error("hooks: re-evaluation failed", "project_id", event.ProjectID, "err", err)
				continue
			}
			if out != nil {
				h.logger.Info("hooks: re-evaluated project",
					"project_id", out.ProjectID, "gates", len(out.Results), "tasks_created", out.TasksCreated)
			}
		}
	}
}
