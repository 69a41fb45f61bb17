package model

import (
	"slices"
	"time"
)

// Well-known project relations.
const (
	RelRooms       = "rooms"
	RelTasks       = "tasks"
	RelOrders      = "orders"
	RelDocuments   = "documents"
	RelCabinets    = "cabinets"
	RelBOMLines    = "bom_lines"
	RelCNCPrograms = "cnc_programs"
	RelPartner     = "partner"
	RelDefects     = "defects"
)

// ProjectRelations is the closed set of relation names a project exposes.
// Requirements naming anything else do not resolve.
var ProjectRelations = []string{
	RelRooms, RelTasks, RelOrders, RelDocuments, RelCabinets,
	RelBOMLines, RelCNCPrograms, RelPartner, RelDefects,
}

// IsProjectRelation reports whether name is a declared project relation.
func IsProjectRelation(name string) bool {
	return slices.Contains(ProjectRelations, name)
}

// TaskStateDone is the task state that counts as completed.
const TaskStateDone = "done"

// Project is the subject gates are evaluated against.
type Project struct {
	ID            string               `json:"id"`
	ProjectNumber string               `json:"project_number,omitempty"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	StageID       string               `json:"stage_id"`
	PartnerID     string               `json:"partner_id,omitempty"`
	Fields        map[string]any       `json:"fields,omitempty"`
	Relations     map[string][]*Record `json:"relations,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Records returns the loaded records of a relation (nil when none are loaded).
func (p *Project) Records(relation string) []*Record {
	if p.Relations == nil {
		return nil
	}
	return p.Relations[relation]
}

// AddRecord appends r to the named relation.
func (p *Project) AddRecord(r *Record) {
	if p.Relations == nil {
		p.Relations = make(map[string][]*Record)
	}
	p.Relations[r.Relation] = append(p.Relations[r.Relation], r)
}

// Record is a child row of a project relation (a room, task, order, ...).
type Record struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Relation  string         `json:"relation"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// Field returns a record field. "id" resolves to the record ID.
func (r *Record) Field(name string) (any, bool) {
	if name == "id" {
		return r.ID, true
	}
	v, ok := r.Fields[name]
	return v, ok
}
