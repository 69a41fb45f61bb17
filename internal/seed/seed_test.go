package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
)

const sampleTOML = `
[[stage]]
key = "design"
name = "Design"
sequence = 2

  [[stage.gate]]
  key = "design_lock"
  name = "Design Lock"
  locks = ["design", "Procurement"]

    [[stage.gate.task]]
    title = "Generate BOM"

    [[stage.gate.requirement]]
    type = "field_not_null"
    field = "design_approved_at"
    error_message = "Design not approved"

  [[stage.gate]]
  key = "rooms_listed"
  name = "Rooms listed"
  blocking = false

    [[stage.gate.requirement]]
    type = "relation_count"
    relation = "rooms"
    value = "1"
    operator = ">="
`

const sampleYAML = `
stages:
  - key: design
    name: Design
    sequence: 2
    gates:
      - key: design_lock
        name: Design Lock
        locks: [design, Procurement]
        tasks:
          - title: Generate BOM
        requirements:
          - type: field_not_null
            field: design_approved_at
            error_message: Design not approved
      - key: rooms_listed
        name: Rooms listed
        blocking: false
        requirements:
          - type: relation_count
            relation: rooms
            value: "1"
            operator: ">="
`

func TestParse_TOMLAndYAMLAgree(t *testing.T) {
	for _, tc := range []struct {
		format Format
		data   string
	}{
		{FormatTOML, sampleTOML},
		{FormatYAML, sampleYAML},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			f, err := Parse([]byte(tc.data), tc.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(f.Stages) != 1 || len(f.Stages[0].Gates) != 2 {
				t.Fatalf("parsed %+v", f)
			}
			lock, err := f.Stages[0].Gates[0].gate("st-1")
			if err != nil {
				t.Fatal(err)
			}
			if !lock.IsBlocking || !lock.IsActive || !lock.CreatesTasksOnPass {
				t.Errorf("design_lock flags = %+v", lock)
			}
			if !lock.AppliesDesignLock || !lock.AppliesProcurementLock || lock.AppliesProductionLock {
				t.Errorf("design_lock locks = %v", lock.LockTypes())
			}
			rooms, _ := f.Stages[0].Gates[1].gate("st-1")
			if rooms.IsBlocking || rooms.CreatesTasksOnPass {
				t.Errorf("rooms_listed flags = %+v", rooms)
			}
			req := f.Stages[0].Gates[1].Requirements[0].requirement("gt-1")
			if req.ComparisonOperator != model.OpGreaterOrEqual || req.TargetValue != "1" || !req.IsActive {
				t.Errorf("requirement = %+v", req)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		data    string
		wantErr string
	}{
		{"empty", FormatTOML, "  \n", "empty"},
		{"no stages", FormatYAML, "stages: []", "no stages"},
		{"bad toml", FormatTOML, "[[stage", "decode toml"},
		{"missing stage name", FormatYAML, "stages:\n  - key: design\n", "stage 1"},
		{"duplicate stage", FormatYAML, "stages:\n  - {key: a, name: A}\n  - {key: a, name: B}\n", "duplicate stage key"},
		{"duplicate gate", FormatYAML, "stages:\n  - key: a\n    name: A\n    gates:\n      - {key: g, name: G}\n      - {key: g, name: H}\n", "duplicate gate key"},
		{"unknown lock", FormatYAML, "stages:\n  - key: a\n    name: A\n    gates:\n      - {key: g, name: G, locks: [paint]}\n", "unknown lock"},
		{"bad operator", FormatYAML, "stages:\n  - key: a\n    name: A\n    gates:\n      - key: g\n        name: G\n        requirements:\n          - {type: relation_count, operator: \"=>\"}\n", "comparison_operator"},
		{"unknown format", Format("ini"), "x", "unknown format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data), tc.format)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]Format{"gates.toml": FormatTOML, "gates.YAML": FormatYAML, "g.yml": FormatYAML} {
		if got, err := FormatFor(path); err != nil || got != want {
			t.Errorf("FormatFor(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := FormatFor("gates.json"); err == nil {
		t.Error("expected error for .json")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Stages[0].Key != "design" {
		t.Errorf("stage key = %q", f.Stages[0].Key)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	var keys []string
	for _, sd := range f.Stages {
		for _, gd := range sd.Gates {
			keys = append(keys, gd.Key)
		}
	}
	want := "discovery_complete,design_lock,procurement_locked,receiving_complete,production_complete,qc_passed,delivery_scheduled,delivered_closed"
	if got := strings.Join(keys, ","); got != want {
		t.Errorf("gate keys = %s", got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	sum, err := Apply(ctx, st, f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sum.StagesCreated != 5 || sum.GatesCreated != 8 || sum.RequirementsCreated != 21 {
		t.Fatalf("first apply = %+v", sum)
	}

	sum, err = Apply(ctx, st, f)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if sum.StagesCreated != 0 || sum.GatesCreated != 0 || sum.RequirementsCreated != 0 {
		t.Fatalf("second apply created rows: %+v", sum)
	}
	if sum.GatesUpdated != 8 || sum.RequirementsUpdated != 21 {
		t.Fatalf("second apply = %+v", sum)
	}

	design, err := st.GetStageByKey(ctx, "design")
	if err != nil {
		t.Fatal(err)
	}
	lock, err := st.GetGateByKey(ctx, design.ID, "design_lock")
	if err != nil {
		t.Fatal(err)
	}
	if !lock.AppliesDesignLock || len(lock.TaskTemplates) != 2 {
		t.Errorf("design_lock = %+v", lock)
	}
	reqs, err := st.ListRequirements(ctx, lock.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 4 {
		t.Errorf("design_lock requirements = %d, want 4", len(reqs))
	}
}

func TestApply_UpdatesChangedDefinition(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f, err := Parse([]byte(sampleTOML), FormatTOML)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(ctx, st, f); err != nil {
		t.Fatal(err)
	}

	f.Stages[0].Gates[0].Name = "Design Frozen"
	f.Stages[0].Gates[0].Requirements[0].HelpText = "Ask the client"
	if _, err := Apply(ctx, st, f); err != nil {
		t.Fatal(err)
	}

	stage, _ := st.GetStageByKey(ctx, "design")
	lock, err := st.GetGateByKey(ctx, stage.ID, "design_lock")
	if err != nil {
		t.Fatal(err)
	}
	if lock.Name != "Design Frozen" {
		t.Errorf("name = %q", lock.Name)
	}
	reqs, _ := st.ListRequirements(ctx, lock.ID, false)
	if len(reqs) != 1 || reqs[0].HelpText != "Ask the client" {
		t.Errorf("requirements = %+v", reqs)
	}
}
