package model

import "time"

// RequirementType is the predicate vocabulary a requirement can use.
type RequirementType string

const (
	ReqFieldNotNull     RequirementType = "field_not_null"
	ReqFieldEquals      RequirementType = "field_equals"
	ReqFieldGreaterThan RequirementType = "field_greater_than"
	ReqRelationExists   RequirementType = "relation_exists"
	ReqRelationCount    RequirementType = "relation_count"
	ReqAllChildrenPass  RequirementType = "all_children_pass"
	ReqTaskCompleted    RequirementType = "task_completed"
	ReqDocumentUploaded RequirementType = "document_uploaded"
	ReqPaymentReceived  RequirementType = "payment_received"
	ReqCustomCheck      RequirementType = "custom_check"
	ReqAllCNCComplete   RequirementType = "all_cnc_complete"
)

// String returns the string representation of the requirement type.
func (t RequirementType) String() string {
	return string(t)
}

// IsValid checks whether the requirement type is a known value.
func (t RequirementType) IsValid() bool {
	switch t {
	case ReqFieldNotNull, ReqFieldEquals, ReqFieldGreaterThan,
		ReqRelationExists, ReqRelationCount, ReqAllChildrenPass,
		ReqTaskCompleted, ReqDocumentUploaded, ReqPaymentReceived,
		ReqCustomCheck, ReqAllCNCComplete:
		return true
	}
	return false
}

// Operator is a numeric comparison used by count-based requirements.
type Operator string

const (
	OpGreaterOrEqual Operator = ">="
	OpGreater        Operator = ">"
	OpEqual          Operator = "=="
	OpEqualAlt       Operator = "="
	OpNotEqual       Operator = "!="
	OpLessOrEqual    Operator = "<="
	OpLess           Operator = "<"
)

// Compare applies the operator to actual and expected. The second result is
// false when the operator is not recognised.
func (op Operator) Compare(actual, expected float64) (bool, bool) {
	switch op {
	case OpGreaterOrEqual:
		return actual >= expected, true
	case OpGreater:
		return actual > expected, true
	case OpEqual, OpEqualAlt:
		return actual == expected, true
	case OpNotEqual:
		return actual != expected, true
	case OpLessOrEqual:
		return actual <= expected, true
	case OpLess:
		return actual < expected, true
	}
	return false, false
}

// Requirement is one predicate configured on a gate.
//
// TargetValue holds the expected value (field_equals, all_children_pass), the
// comparison value (relation_count, field_greater_than), the task type
// (task_completed), the document collection (document_uploaded) or the payment
// type (payment_received), depending on RequirementType.
type Requirement struct {
	ID                 string          `json:"id"`
	GateID             string          `json:"gate_id"`
	RequirementType    RequirementType `json:"requirement_type"`
	TargetModel        string          `json:"target_model,omitempty"`
	TargetField        string          `json:"target_field,omitempty"`
	TargetRelation     string          `json:"target_relation,omitempty"`
	TargetValue        string          `json:"target_value,omitempty"`
	ComparisonOperator Operator        `json:"comparison_operator,omitempty"`
	CustomCheck        string          `json:"custom_check,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	HelpText           string          `json:"help_text,omitempty"`
	ActionLabel        string          `json:"action_label,omitempty"`
	ActionRoute        string          `json:"action_route,omitempty"`
	Sequence           int             `json:"sequence"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
