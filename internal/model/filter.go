package model

import "time"

// GateFilter holds criteria for listing gates.
type GateFilter struct {
	StageID    string `json:"stage_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// EvaluationFilter holds criteria for querying the evaluation audit trail.
// Results are newest first unless OldestFirst is set.
type EvaluationFilter struct {
	ProjectID   string    `json:"project_id,omitempty"`
	GateID      string    `json:"gate_id,omitempty"`
	Since       time.Time `json:"since,omitempty"` // evaluated_at strictly after
	OldestFirst bool      `json:"oldest_first,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}
