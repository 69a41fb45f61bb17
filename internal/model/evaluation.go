package model

import "time"

// EvaluationType records what triggered an evaluation.
type EvaluationType string

const (
	EvalManual    EvaluationType = "manual"
	EvalAutomatic EvaluationType = "automatic"
	EvalScheduled EvaluationType = "scheduled"
)

// IsValid checks whether the evaluation type is a known value.
func (t EvaluationType) IsValid() bool {
	switch t {
	case EvalManual, EvalAutomatic, EvalScheduled:
		return true
	}
	return false
}

// RequirementResult is the outcome of one requirement inside an evaluation.
type RequirementResult struct {
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// FailureReason explains one failed requirement.
type FailureReason struct {
	RequirementID   string          `json:"requirement_id"`
	RequirementType RequirementType `json:"requirement_type"`
	ErrorMessage    string          `json:"error_message"`
	HelpText        string          `json:"help_text,omitempty"`
	ActionLabel     string          `json:"action_label,omitempty"`
	ActionRoute     string          `json:"action_route,omitempty"`
	Details         string          `json:"details"`
}

// Message returns the human-facing text for the failure: the configured error
// message, then the generated details, then a generic fallback.
func (f FailureReason) Message() string {
	if f.ErrorMessage != "" {
		return f.ErrorMessage
	}
	if f.Details != "" {
		return f.Details
	}
	return "Unknown blocker"
}

// Evaluation is an append-only audit record of one gate evaluation.
type Evaluation struct {
	ID                 string                       `json:"id"`
	ProjectID          string                       `json:"project_id"`
	GateID             string                       `json:"gate_id"`
	GateKey            string                       `json:"gate_key"`
	Passed             bool                         `json:"passed"`
	EvaluationType     EvaluationType               `json:"evaluation_type"`
	EvaluatedBy        string                       `json:"evaluated_by,omitempty"`
	RequirementResults map[string]RequirementResult `json:"requirement_results"`
	FailureReasons     []FailureReason              `json:"failure_reasons"`
	Context            map[string]any               `json:"context"`
	EvaluatedAt        time.Time                    `json:"evaluated_at"`
}
