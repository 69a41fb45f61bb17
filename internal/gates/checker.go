package gates

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// CheckResult is the outcome of a single requirement check.
type CheckResult struct {
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func pass(msg string, details map[string]any) CheckResult {
	return CheckResult{Passed: true, Message: msg, Details: details}
}

func fail(msg string, details map[string]any) CheckResult {
	return CheckResult{Passed: false, Message: msg, Details: details}
}

// CustomCheck is a named predicate that custom_check requirements refer to.
type CustomCheck func(subj Subject, req *model.Requirement) CheckResult

// Checker evaluates requirements. Check never panics and never returns an
// error: unknown types, unresolvable names and internal failures all become a
// failed CheckResult with a diagnostic message.
//
// Register custom checks before sharing a Checker between goroutines.
type Checker struct {
	custom map[string]CustomCheck
	logger *slog.Logger
}

// NewChecker returns a Checker with the built-in custom checks registered.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{
		custom: make(map[string]CustomCheck),
		logger: logger,
	}
	registerBuiltins(c)
	return c
}

// Register adds or replaces a named custom check.
func (c *Checker) Register(name string, fn CustomCheck) {
	c.custom[name] = fn
}

// Check evaluates req against subj.
func (c *Checker) Check(subj Subject, req *model.Requirement) (res CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("gate requirement check failed",
				"requirement_id", req.ID,
				"subject_id", subj.SubjectID(),
				"panic", fmt.Sprintf("%v", r),
			)
			res = fail(fmt.Sprintf("Error checking requirement: %v", r), map[string]any{
				"exception": fmt.Sprintf("%v", r),
			})
		}
	}()
	return c.compile(req).evaluate(subj)
}

// targetAliases maps target_model names to the relation that holds the target.
var targetAliases = map[string]string{
	"salesorder": model.RelOrders,
	"order":      model.RelOrders,
	"orders":     model.RelOrders,
	"partner":    model.RelPartner,
}

// resolveTarget returns the record a field requirement reads from: the subject
// itself, or the first record of the relation named by target_model.
func resolveTarget(subj Subject, targetModel string) (Fields, bool) {
	name := strings.ToLower(strings.TrimSpace(targetModel))
	if name == "" || name == "project" {
		return subj, true
	}
	if alias, ok := targetAliases[name]; ok {
		name = alias
	}
	records, ok := subj.Relation(name)
	if !ok || len(records) == 0 {
		return nil, false
	}
	return records[0], true
}

// field reads a field, treating an unknown field as null.
func field(f Fields, name string) any {
	v, _ := f.Field(name)
	return v
}

// countMatching returns how many records satisfy match.
func countMatching(records []Fields, match func(Fields) bool) int {
	n := 0
	for _, r := range records {
		if match(r) {
			n++
		}
	}
	return n
}

func relationMissing(relation string) CheckResult {
	return fail(fmt.Sprintf("Relation '%s' does not exist on subject", relation), map[string]any{
		"relation": relation,
	})
}
