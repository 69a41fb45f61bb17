package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
)

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// seedEvaluations records n evaluations one minute apart, newest last.
func seedEvaluations(t *testing.T, s *memory.Store, n int) {
	t.Helper()
	for i := range n {
		ev := &model.Evaluation{
			ID:             "ev-" + string(rune('a'+i)),
			ProjectID:      "pj-1",
			GateID:         "gt-lock",
			GateKey:        "design_lock",
			Passed:         i%2 == 0,
			EvaluationType: model.EvalManual,
			EvaluatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordEvaluation(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), memory.New(), time.Time{}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != FormatVersion || h.Type != "header" || h.EvaluationCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if strings.Contains(lines[0], `"since"`) {
		t.Errorf("zero since should be omitted: %s", lines[0])
	}
}

func TestExportJSONL_OldestFirst(t *testing.T) {
	ms := memory.New()
	seedEvaluations(t, ms, 3)

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), ms, time.Time{}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if n != 3 || len(lines) != 4 {
		t.Fatalf("count=%d lines=%d, want 3 and 4", n, len(lines))
	}

	var ids []string
	for _, line := range lines[1:] {
		var rec struct {
			Type string           `json:"type"`
			Data model.Evaluation `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal %s: %v", line, err)
		}
		if rec.Type != "evaluation" {
			t.Fatalf("type = %q, want evaluation", rec.Type)
		}
		ids = append(ids, rec.Data.ID)
	}
	if strings.Join(ids, ",") != "ev-a,ev-b,ev-c" {
		t.Errorf("order = %v", ids)
	}
}

func TestExportJSONL_Since(t *testing.T) {
	ms := memory.New()
	seedEvaluations(t, ms, 3)

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), ms, base.Add(time.Minute), &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	lines := nonEmptyLines(buf.String())
	if !strings.Contains(lines[1], `"id":"ev-c"`) {
		t.Errorf("exported %s, want ev-c", lines[1])
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatal(err)
	}
	if !h.Since.Equal(base.Add(time.Minute)) || h.EvaluationCount != 1 {
		t.Errorf("header = %+v", h)
	}
}
