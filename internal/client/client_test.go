package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/seed"
	"github.com/alfredjeanlab/stagegate/internal/server"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
)

// newGateServer returns a server backed by a memory store holding the
// default gate set and one fresh project in the design stage.
func newGateServer(t *testing.T) (*server.GateServer, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	defs, err := seed.Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Apply(ctx, st, defs); err != nil {
		t.Fatal(err)
	}
	design, err := st.GetStageByKey(ctx, "design")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.CreateProject(ctx, &model.Project{ID: "pj-1", Name: "Kitchen", StageID: design.ID}); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ev := gates.NewEvaluator(st, gates.NewChecker(logger), nil, logger)
	return server.NewGateServer(st, ev, nil, nil), st
}

func newHTTPTestClient(t *testing.T, token string) (*HTTPClient, *memory.Store) {
	t.Helper()
	srv, st := newGateServer(t)
	ts := httptest.NewServer(srv.NewHTTPHandler(token))
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL+"/", token), st
}

// exerciseGateClient runs the same checks against any transport.
func exerciseGateClient(t *testing.T, c GateClient, st *memory.Store) {
	t.Helper()
	ctx := context.Background()

	status, err := c.Health(ctx)
	if err != nil || status != "ok" {
		t.Fatalf("Health = %q, %v", status, err)
	}

	report, err := c.GateStatus(ctx, "pj-1", true)
	if err != nil {
		t.Fatalf("GateStatus: %v", err)
	}
	if report.CanAdvance || len(report.Gates) != 1 || report.Gates[0].GateKey != "design_lock" {
		t.Fatalf("report = %+v", report)
	}
	if g := report.Gates[0]; g.RequirementsTotal != 4 || g.EvaluationID != "" {
		t.Errorf("dry status = %+v", g)
	}

	adv, err := c.CanAdvance(ctx, "pj-1")
	if err != nil || adv.CanAdvance || adv.ProjectID != "pj-1" {
		t.Fatalf("CanAdvance = %+v, %v", adv, err)
	}

	blockers, err := c.Blockers(ctx, "pj-1")
	if err != nil {
		t.Fatalf("Blockers: %v", err)
	}
	if b := blockers.Blockers["design_lock"]; b == nil || len(b.Blockers) != 4 {
		t.Fatalf("blockers = %+v", blockers.Blockers)
	}

	before, _ := st.ListEvaluations(ctx, model.EvaluationFilter{ProjectID: "pj-1"})
	resp, err := c.Evaluate(ctx, &EvaluateRequest{
		ProjectID:      "pj-1",
		GateKey:        "design_lock",
		EvaluationType: model.EvalScheduled,
		EvaluatedBy:    "nightly",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Passed || resp.DryRun || resp.EvaluationID == "" || len(resp.RequirementResults) != 4 {
		t.Fatalf("evaluate = %+v", resp)
	}
	after, _ := st.ListEvaluations(ctx, model.EvaluationFilter{ProjectID: "pj-1"})
	if len(after) != len(before)+1 {
		t.Fatalf("evaluations %d -> %d, want one more", len(before), len(after))
	}
	if latest := after[0]; latest.EvaluatedBy != "nightly" || latest.EvaluationType != model.EvalScheduled {
		t.Errorf("latest evaluation = %+v", latest)
	}
}
