package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

func TestHTTPClient_GateClient(t *testing.T) {
	c, st := newHTTPTestClient(t, "secret")
	exerciseGateClient(t, c, st)
}

func TestHTTPClient_ListEvaluations(t *testing.T) {
	c, _ := newHTTPTestClient(t, "")
	c.WithActor("alice")
	ctx := context.Background()

	for range 3 {
		if _, err := c.Evaluate(ctx, &EvaluateRequest{ProjectID: "pj-1", GateKey: "design_lock"}); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	evals, err := c.ListEvaluations(ctx, &ListEvaluationsRequest{ProjectID: "pj-1", Limit: 2})
	if err != nil {
		t.Fatalf("ListEvaluations: %v", err)
	}
	if len(evals) != 2 {
		t.Fatalf("evaluations = %d, want 2", len(evals))
	}
	if evals[0].EvaluatedBy != "alice" || evals[0].EvaluationType != model.EvalManual {
		t.Errorf("evaluation = %+v", evals[0])
	}
}

func TestHTTPClient_CanAdvanceRecordsEvaluations(t *testing.T) {
	c, st := newHTTPTestClient(t, "")
	ctx := context.Background()

	resp, err := c.CanAdvance(ctx, "pj-1")
	if err != nil {
		t.Fatalf("CanAdvance: %v", err)
	}
	if resp.CanAdvance {
		t.Error("empty project can advance past design")
	}
	evals, err := st.ListEvaluations(ctx, model.EvaluationFilter{ProjectID: "pj-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 1 || evals[0].GateKey != "design_lock" || evals[0].EvaluationType != model.EvalAutomatic {
		t.Errorf("evaluations = %+v, want one automatic design_lock evaluation", evals)
	}
}

func TestHTTPClient_Configuration(t *testing.T) {
	c, _ := newHTTPTestClient(t, "")
	ctx := context.Background()

	stages, err := c.ListStages(ctx)
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	if len(stages) != 5 {
		t.Fatalf("stages = %d, want 5", len(stages))
	}

	p, err := c.GetProject(ctx, "pj-1")
	if err != nil || p.Name != "Kitchen" {
		t.Fatalf("GetProject = %+v, %v", p, err)
	}
	gates, err := c.ListGates(ctx, p.StageID, true)
	if err != nil {
		t.Fatalf("ListGates: %v", err)
	}
	if len(gates) != 1 || gates[0].GateKey != "design_lock" || !gates[0].AppliesDesignLock {
		t.Errorf("gates = %+v", gates)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	c, _ := newHTTPTestClient(t, "")
	ctx := context.Background()

	_, err := c.GateStatus(ctx, "pj-missing", false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 APIError", err)
	}

	_, err = c.Evaluate(ctx, &EvaluateRequest{ProjectID: "pj-1", GateKey: "design_lock", EvaluationType: "cron"})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 APIError", err)
	}

	authed, _ := newHTTPTestClient(t, "secret")
	noAuth := NewHTTPClient(authed.baseURL, "")
	_, err = noAuth.Blockers(ctx, "pj-1")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
}

func TestHTTPClient_Headers(t *testing.T) {
	var got http.Header
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.EscapedPath() + "?" + r.URL.RawQuery
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"passed":true,"gate_key":"qc passed","dry_run":true}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "tok").WithActor("alice")
	resp, err := c.Evaluate(context.Background(), &EvaluateRequest{ProjectID: "pj/1", GateKey: "qc passed", DryRun: true, EvaluatedBy: "bob"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !resp.Passed || !resp.DryRun || resp.GateKey != "qc passed" {
		t.Errorf("resp = %+v", resp)
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get(ActorHeader) != "bob" {
		t.Errorf("%s = %q, want per-request actor", ActorHeader, got.Get(ActorHeader))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Get("Content-Type"))
	}
	if want := "/v1/projects/pj%2F1/gates/qc%20passed/evaluate?dry_run=true"; path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 409, Message: "already exists"}
	if err.Error() != "HTTP 409: already exists" {
		t.Errorf("Error() = %q", err.Error())
	}
}
