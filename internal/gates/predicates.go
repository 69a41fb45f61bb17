package gates

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// predicate is a requirement compiled to one variant per requirement type.
type predicate interface {
	evaluate(subj Subject) CheckResult
}

// compile selects the predicate for req. Missing configuration compiles to an
// invalid predicate instead of an error so that evaluation stays total.
func (c *Checker) compile(req *model.Requirement) predicate {
	t := model.RequirementType(strings.ToLower(strings.TrimSpace(string(req.RequirementType))))
	switch t {
	case model.ReqFieldNotNull:
		if req.TargetField == "" {
			return misconfigured(t, "target_field")
		}
		return fieldNotNull{target: req.TargetModel, field: req.TargetField}
	case model.ReqFieldEquals:
		if req.TargetField == "" {
			return misconfigured(t, "target_field")
		}
		return fieldEquals{target: req.TargetModel, field: req.TargetField, expected: req.TargetValue}
	case model.ReqFieldGreaterThan:
		if req.TargetField == "" {
			return misconfigured(t, "target_field")
		}
		threshold, ok := parseFinite(strings.TrimSpace(req.TargetValue))
		if !ok {
			return notANumber(req.TargetValue)
		}
		return fieldGreaterThan{target: req.TargetModel, field: req.TargetField, threshold: threshold}
	case model.ReqRelationExists:
		if req.TargetRelation == "" {
			return misconfigured(t, "target_relation")
		}
		return relationExists{relation: req.TargetRelation}
	case model.ReqRelationCount:
		if req.TargetRelation == "" {
			return misconfigured(t, "target_relation")
		}
		if req.ComparisonOperator == "" {
			return misconfigured(t, "comparison_operator")
		}
		want, ok := parseFinite(strings.TrimSpace(req.TargetValue))
		if !ok {
			return notANumber(req.TargetValue)
		}
		return relationCount{relation: req.TargetRelation, op: req.ComparisonOperator, want: want}
	case model.ReqAllChildrenPass:
		if req.TargetRelation == "" {
			return misconfigured(t, "target_relation")
		}
		if req.TargetField == "" {
			return misconfigured(t, "target_field")
		}
		return allChildrenPass{relation: req.TargetRelation, field: req.TargetField, expected: req.TargetValue}
	case model.ReqTaskCompleted:
		taskType := req.TargetValue
		if taskType == "" {
			taskType = req.TargetField
		}
		if taskType == "" {
			return misconfigured(t, "target_value")
		}
		return taskCompleted{taskType: taskType}
	case model.ReqDocumentUploaded:
		collection := strings.TrimSpace(req.TargetValue)
		if collection == "" {
			return misconfigured(t, "target_value")
		}
		return documentUploaded{collection: collection}
	case model.ReqPaymentReceived:
		switch kind := strings.ToLower(strings.TrimSpace(req.TargetValue)); kind {
		case paymentDeposit, paymentFinal:
			return paymentReceived{kind: kind}
		case "":
			return misconfigured(t, "target_value")
		default:
			return invalid{message: fmt.Sprintf("Unknown payment type: %s", req.TargetValue)}
		}
	case model.ReqCustomCheck:
		if req.CustomCheck == "" {
			return misconfigured(t, "custom_check")
		}
		return c.customPredicate(req.CustomCheck, req)
	case model.ReqAllCNCComplete:
		return c.customPredicate(CheckAllCNCProgramsComplete, req)
	}
	return invalid{message: fmt.Sprintf("Unknown requirement type: %s", req.RequirementType)}
}

func (c *Checker) customPredicate(name string, req *model.Requirement) predicate {
	fn, ok := c.custom[name]
	if !ok {
		return invalid{message: fmt.Sprintf("Custom check '%s' not found", name)}
	}
	return customCheck{fn: fn, req: req}
}

// invalid always fails with a fixed diagnostic.
type invalid struct {
	message string
}

func (p invalid) evaluate(Subject) CheckResult {
	return fail(p.message, nil)
}

func misconfigured(t model.RequirementType, missing string) invalid {
	return invalid{message: fmt.Sprintf("Requirement %s is missing %s", t, missing)}
}

func fieldMissing(name string, details map[string]any) CheckResult {
	return fail(fmt.Sprintf("Field '%s' does not exist", name), details)
}

func notANumber(v string) invalid {
	return invalid{message: fmt.Sprintf("Comparison value '%s' is not a number", v)}
}

type fieldNotNull struct {
	target string
	field  string
}

func (p fieldNotNull) evaluate(subj Subject) CheckResult {
	target, ok := resolveTarget(subj, p.target)
	if !ok {
		return fail("Target model not found", map[string]any{"target_model": p.target})
	}
	v := field(target, p.field)
	details := map[string]any{"field": p.field, "value": v}
	if isEmpty(v) {
		return fail(fmt.Sprintf("Field '%s' is empty", p.field), details)
	}
	return pass(fmt.Sprintf("Field '%s' has value", p.field), details)
}

type fieldEquals struct {
	target   string
	field    string
	expected string
}

func (p fieldEquals) evaluate(subj Subject) CheckResult {
	target, ok := resolveTarget(subj, p.target)
	if !ok {
		return fail("Target model not found", map[string]any{"target_model": p.target})
	}
	v, exists := target.Field(p.field)
	details := map[string]any{"field": p.field, "expected": p.expected, "actual": v}
	if !exists {
		return fieldMissing(p.field, details)
	}
	actual := canonical(v)
	want := canonical(p.expected)
	if actual == want {
		return pass(fmt.Sprintf("Field '%s' equals '%s'", p.field, want), details)
	}
	return fail(fmt.Sprintf("Field '%s' is '%s', expected '%s'", p.field, actual, want), details)
}

type fieldGreaterThan struct {
	target    string
	field     string
	threshold float64
}

func (p fieldGreaterThan) evaluate(subj Subject) CheckResult {
	target, ok := resolveTarget(subj, p.target)
	if !ok {
		return fail("Target model not found", map[string]any{"target_model": p.target})
	}
	v, exists := target.Field(p.field)
	details := map[string]any{"field": p.field, "threshold": p.threshold, "actual": v}
	if !exists {
		return fieldMissing(p.field, details)
	}
	actual, ok := toFloat(v)
	if !ok {
		return fail(fmt.Sprintf("Field '%s' is not a number", p.field), details)
	}
	if actual > p.threshold {
		return pass(fmt.Sprintf("Field '%s' (%s) is greater than %s",
			p.field, formatNumber(actual), formatNumber(p.threshold)), details)
	}
	return fail(fmt.Sprintf("Field '%s' (%s) is not greater than %s",
		p.field, formatNumber(actual), formatNumber(p.threshold)), details)
}

type relationExists struct {
	relation string
}

func (p relationExists) evaluate(subj Subject) CheckResult {
	records, ok := subj.Relation(p.relation)
	if !ok {
		return relationMissing(p.relation)
	}
	details := map[string]any{"relation": p.relation, "count": len(records)}
	if len(records) == 0 {
		return fail(fmt.Sprintf("No %s found", p.relation), details)
	}
	return pass(fmt.Sprintf("Found %d %s", len(records), p.relation), details)
}

type relationCount struct {
	relation string
	op       model.Operator
	want     float64
}

func (p relationCount) evaluate(subj Subject) CheckResult {
	records, ok := subj.Relation(p.relation)
	if !ok {
		return relationMissing(p.relation)
	}
	n := len(records)
	details := map[string]any{
		"relation": p.relation,
		"operator": string(p.op),
		"required": p.want,
		"actual":   n,
	}
	ok, known := p.op.Compare(float64(n), p.want)
	if !known {
		return fail(fmt.Sprintf("Unknown comparison operator: %s", p.op), details)
	}
	want := formatNumber(p.want)
	if ok {
		return pass(fmt.Sprintf("Relation '%s' count %d %s %s (%d/%s)", p.relation, n, p.op, want, n, want), details)
	}
	return fail(fmt.Sprintf("Relation '%s' count %d does not satisfy %s %s (%d/%s)", p.relation, n, p.op, want, n, want), details)
}

type allChildrenPass struct {
	relation string
	field    string
	expected string
}

func (p allChildrenPass) evaluate(subj Subject) CheckResult {
	records, ok := subj.Relation(p.relation)
	if !ok {
		return relationMissing(p.relation)
	}
	total := len(records)
	if total == 0 {
		return fail(fmt.Sprintf("No %s found to check", p.relation), map[string]any{
			"relation": p.relation,
			"total":    0,
		})
	}
	want := canonical(p.expected)
	missing := 0
	passing := countMatching(records, func(r Fields) bool {
		v, exists := r.Field(p.field)
		if !exists {
			missing++
			return false
		}
		return canonical(v) == want
	})
	details := map[string]any{
		"relation": p.relation,
		"field":    p.field,
		"expected": p.expected,
		"passing":  passing,
		"missing":  missing,
		"total":    total,
	}
	if missing == total {
		return fail(fmt.Sprintf("Field '%s' does not exist on %s (0/%d)", p.field, p.relation, total), details)
	}
	if passing == total {
		return pass(fmt.Sprintf("All %d %s have %s = %s", total, p.relation, p.field, want), details)
	}
	return fail(fmt.Sprintf("%d/%d %s have %s = %s", passing, total, p.relation, p.field, want), details)
}

type taskCompleted struct {
	taskType string
}

func (p taskCompleted) evaluate(subj Subject) CheckResult {
	tasks, ok := subj.Relation(model.RelTasks)
	if !ok {
		return relationMissing(model.RelTasks)
	}
	var found bool
	for _, t := range tasks {
		if canonical(field(t, "task_type")) != canonical(p.taskType) {
			continue
		}
		found = true
		if canonical(field(t, "state")) == model.TaskStateDone {
			return pass(fmt.Sprintf("Task '%s' completed", p.taskType), map[string]any{
				"task_type": p.taskType,
				"task_id":   field(t, "id"),
			})
		}
	}
	details := map[string]any{"task_type": p.taskType}
	if !found {
		return fail(fmt.Sprintf("Task '%s' not found", p.taskType), details)
	}
	return fail(fmt.Sprintf("Task '%s' not completed", p.taskType), details)
}

type documentUploaded struct {
	collection string
}

func (p documentUploaded) evaluate(subj Subject) CheckResult {
	docs, ok := subj.Relation(model.RelDocuments)
	if !ok {
		return relationMissing(model.RelDocuments)
	}
	n := countMatching(docs, func(d Fields) bool {
		return canonical(field(d, "collection")) == canonical(p.collection)
	})
	details := map[string]any{"collection": p.collection, "count": n}
	label := fmt.Sprintf("Document '%s'", p.collection)
	if n == 0 {
		return fail(label+" not uploaded", details)
	}
	return pass(label+" uploaded", details)
}

// Payment types accepted by payment_received.
const (
	paymentDeposit = "deposit"
	paymentFinal   = "final"
)

type paymentReceived struct {
	kind string
}

func (p paymentReceived) evaluate(subj Subject) CheckResult {
	order, ok := resolveTarget(subj, model.RelOrders)
	if !ok {
		return fail("No sales order found", nil)
	}
	column := "deposit_paid_at"
	label := "Deposit"
	if p.kind == paymentFinal {
		column = "final_paid_at"
		label = "Final payment"
	}
	paidAt := field(order, column)
	details := map[string]any{"order_id": field(order, "id"), column: paidAt}
	if isEmpty(paidAt) {
		return fail(label+" not received", details)
	}
	return pass(label+" received", details)
}

type customCheck struct {
	fn  CustomCheck
	req *model.Requirement
}

func (p customCheck) evaluate(subj Subject) CheckResult {
	return p.fn(subj, p.req)
}
