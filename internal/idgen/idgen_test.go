package idgen

import (
	"regexp"
	"testing"
)

func TestNew_Format(t *testing.T) {
	for _, prefix := range []string{
		PrefixStage, PrefixGate, PrefixRequirement,
		PrefixEvaluation, PrefixProject, PrefixRecord,
	} {
		id, err := New(prefix)
		if err != nil {
			t.Fatalf("New(%q) error: %v", prefix, err)
		}
		if len(id) != len(prefix)+Length {
			t.Errorf("New(%q) length = %d, want %d (id=%q)", prefix, len(id), len(prefix)+Length, id)
		}
		pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[a-zA-Z0-9]+$`)
		if !pattern.MatchString(id) {
			t.Errorf("New(%q) = %q, does not match expected pattern", prefix, id)
		}
	}
}

func TestNew_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := New(PrefixEvaluation)
		if err != nil {
			t.Fatalf("New() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestEnsure(t *testing.T) {
	id, err := Ensure("gt-fixed", PrefixGate)
	if err != nil || id != "gt-fixed" {
		t.Errorf("Ensure(set) = %q, %v; want %q", id, err, "gt-fixed")
	}
	id, err = Ensure("", PrefixGate)
	if err != nil {
		t.Fatalf("Ensure(empty) error: %v", err)
	}
	if len(id) != len(PrefixGate)+Length || id[:len(PrefixGate)] != PrefixGate {
		t.Errorf("Ensure(empty) = %q, want fresh %q ID", id, PrefixGate)
	}
}
