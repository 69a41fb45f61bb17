package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateStage checks the fields a stage must carry before it is stored.
func ValidateStage(st *Stage) error {
	var ve ValidationError

	if strings.TrimSpace(st.StageKey) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "stage_key", Message: "is required"})
	}
	if strings.TrimSpace(st.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateGate checks the fields a gate must carry before it is stored.
func ValidateGate(g *Gate) error {
	var ve ValidationError

	if strings.TrimSpace(g.StageID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "stage_id", Message: "is required"})
	}
	key := strings.TrimSpace(g.GateKey)
	if key == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "gate_key", Message: "is required"})
	} else if len(key) > 100 {
		ve.Errors = append(ve.Errors, FieldError{Field: "gate_key", Message: "must be 100 characters or fewer"})
	}
	if strings.TrimSpace(g.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateRequirement checks the structural fields of a requirement.
//
// The requirement type itself is not checked here: unknown or malformed
// requirements are accepted and fail at evaluation time, so a bad row can
// never unblock a stage.
func ValidateRequirement(r *Requirement) error {
	var ve ValidationError

	if strings.TrimSpace(r.GateID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "gate_id", Message: "is required"})
	}
	if strings.TrimSpace(string(r.RequirementType)) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "requirement_type", Message: "is required"})
	}
	if r.ComparisonOperator != "" {
		if _, ok := r.ComparisonOperator.Compare(0, 0); !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "comparison_operator",
				Message: fmt.Sprintf("invalid value %q", r.ComparisonOperator),
			})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateProject checks a project before it is stored.
func ValidateProject(p *Project) error {
	var ve ValidationError

	if strings.TrimSpace(p.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(p.StageID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "stage_id", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
