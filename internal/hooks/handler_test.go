package hooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setup stores a stage whose only gate passes once the project has a partner
// and creates two follow-up tasks.
func setup(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(st.CreateStage(ctx, &model.Stage{ID: "st-design", StageKey: "design", Name: "Design"}))
	must(st.CreateGate(ctx, &model.Gate{
		ID: "gt-lock", StageID: "st-design", GateKey: "design_lock", Name: "Design lock",
		IsBlocking: true, IsActive: true, CreatesTasksOnPass: true,
		TaskTemplates: []model.TaskTemplate{
			{Title: "Order sheet goods", Description: "Plywood and MDF"},
			{Title: "Schedule CNC"},
		},
	}))
	must(st.CreateRequirement(ctx, &model.Requirement{
		ID: "rq-partner", GateID: "gt-lock", RequirementType: model.ReqFieldNotNull, TargetField: "partner_id", IsActive: true,
	}))
	must(st.CreateProject(ctx, &model.Project{ID: "pj-1", Name: "Kitchen", StageID: "st-design"}))

	ev := gates.NewEvaluator(st, gates.NewChecker(testLogger()), nil, testLogger())
	return NewHandler(st, ev, testLogger()), st
}

func tasksOf(t *testing.T, st *memory.Store, projectID string) []*model.Record {
	t.Helper()
	p, err := st.GetProject(context.Background(), projectID)
	if err != nil {
		t.Fatal(err)
	}
	return p.Records(model.RelTasks)
}

func TestHandleProjectChanged_FailingGateCreatesNothing(t *testing.T) {
	h, st := setup(t)

	out, err := h.HandleProjectChanged(context.Background(), events.ProjectChanged{ProjectID: "pj-1"})
	if err != nil {
		t.Fatalf("HandleProjectChanged: %v", err)
	}
	if r := out.Results["design_lock"]; r == nil || r.Passed {
		t.Fatalf("design_lock result = %+v, want failed", r)
	}
	if out.TasksCreated != 0 || len(tasksOf(t, st, "pj-1")) != 0 {
		t.Error("tasks created for a failing gate")
	}

	evals, _ := st.ListEvaluations(context.Background(), model.EvaluationFilter{ProjectID: "pj-1"})
	if len(evals) != 1 || evals[0].EvaluationType != model.EvalAutomatic {
		t.Errorf("evaluations = %+v, want one automatic", evals)
	}
}

func TestHandleProjectChanged_PassingGateCreatesTasksOnce(t *testing.T) {
	h, st := setup(t)
	ctx := context.Background()
	p, _ := st.GetProject(ctx, "pj-1")
	p.PartnerID = "pt-1"
	if err := st.UpdateProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	out, err := h.HandleProjectChanged(ctx, events.ProjectChanged{ProjectID: "pj-1"})
	if err != nil {
		t.Fatalf("HandleProjectChanged: %v", err)
	}
	if out.TasksCreated != 2 {
		t.Fatalf("tasks created = %d, want 2", out.TasksCreated)
	}
	tasks := tasksOf(t, st, "pj-1")
	if len(tasks) != 2 {
		t.Fatalf("stored tasks = %d, want 2", len(tasks))
	}
	first := tasks[0].Fields
	if first["title"] != "Order sheet goods" || first["gate_key"] != "design_lock" || first["state"] != TaskStateOpen {
		t.Errorf("task fields = %v", first)
	}

	out, err = h.HandleProjectChanged(ctx, events.ProjectChanged{ProjectID: "pj-1"})
	if err != nil {
		t.Fatalf("second HandleProjectChanged: %v", err)
	}
	if out.TasksCreated != 0 || len(tasksOf(t, st, "pj-1")) != 2 {
		t.Errorf("second run created %d tasks", out.TasksCreated)
	}
}

func TestHandleProjectChanged_UnknownProject(t *testing.T) {
	h, _ := setup(t)
	for _, id := range []string{"", "pj-missing"} {
		out, err := h.HandleProjectChanged(context.Background(), events.ProjectChanged{ProjectID: id})
		if err != nil || out != nil {
			t.Errorf("project %q: out=%v err=%v, want nil, nil", id, out, err)
		}
	}
}

// chanSubscriber delivers whatever is sent on ch for any topic.
type chanSubscriber struct {
	ch    chan []byte
	topic string
}

func (s *chanSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	s.topic = topic
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestStartSubscriber(t *testing.T) {
	h, st := setup(t)
	sub := &chanSubscriber{ch: make(chan []byte, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.StartSubscriber(ctx, sub) }()

	sub.ch <- []byte("{not json")
	payload, _ := json.Marshal(events.ProjectChanged{ProjectID: "pj-1", Relation: model.RelRooms})
	sub.ch <- payload

	deadline := time.Now().Add(2 * time.Second)
	for {
		evals, _ := st.ListEvaluations(context.Background(), model.EvaluationFilter{ProjectID: "pj-1"})
		if len(evals) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("evaluations = %d, want 1", len(evals))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("StartSubscriber: %v", err)
	}
	if sub.topic != events.TopicProjectAll {
		t.Errorf("subscribed to %q, want %q", sub.topic, events.TopicProjectAll)
	}
}

func TestStartSubscriber_ChannelClosed(t *testing.T) {
	h, _ := setup(t)
	sub := &chanSubscriber{ch: make(chan []byte)}
	close(sub.ch)
	if err := h.StartSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("StartSubscriber: %v", err)
	}
}
