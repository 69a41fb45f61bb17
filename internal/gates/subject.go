// Package gates evaluates stage gates and their requirements against a subject.
//
// A Checker decides a single requirement; an Evaluator runs every active
// requirement of a gate, records one audit Evaluation per call and answers
// stage-level questions (can the subject advance, what blocks it).
package gates

import (
	"github.com/alfredjeanlab/stagegate/internal/model"
)

// Fields exposes scalar field access by name.
type Fields interface {
	// Field returns the value of the named field and whether the field exists.
	Field(name string) (any, bool)
}

// Subject is the entity gates are evaluated against.
type Subject interface {
	Fields

	// SubjectID identifies the subject in audit records.
	SubjectID() string

	// CurrentStage returns the stage the subject is in.
	CurrentStage() string

	// Relation returns the named child collection. ok is false when the
	// relation is not defined on the subject at all.
	Relation(name string) (records []Fields, ok bool)
}

// Snapshotter is implemented by subjects that provide their own audit context.
// The returned map must not alias subject state.
type Snapshotter interface {
	Snapshot() map[string]any
}

// ProjectSubject adapts a project (with its relations loaded) to Subject.
func ProjectSubject(p *model.Project) Subject {
	return &projectSubject{p: p}
}

type projectSubject struct {
	p *model.Project
}

func (s *projectSubject) SubjectID() string    { return s.p.ID }
func (s *projectSubject) CurrentStage() string { return s.p.StageID }

func (s *projectSubject) Field(name string) (any, bool) {
	switch name {
	case "id":
		return s.p.ID, true
	case "project_number":
		return nullable(s.p.ProjectNumber), true
	case "name":
		return s.p.Name, true
	case "description":
		return nullable(s.p.Description), true
	case "stage_id":
		return nullable(s.p.StageID), true
	case "partner_id":
		return nullable(s.p.PartnerID), true
	case "created_at":
		return s.p.CreatedAt, true
	case "updated_at":
		return s.p.UpdatedAt, true
	}
	v, ok := s.p.Fields[name]
	return v, ok
}

func (s *projectSubject) Relation(name string) ([]Fields, bool) {
	if !model.IsProjectRelation(name) {
		return nil, false
	}
	records := s.p.Records(name)
	out := make([]Fields, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out, true
}

func (s *projectSubject) Snapshot() map[string]any {
	return map[string]any{
		"project_id":     s.p.ID,
		"project_number": s.p.ProjectNumber,
		"stage_id":       s.p.StageID,
		"partner_id":     nullable(s.p.PartnerID),
		"room_count":     len(s.p.Records(model.RelRooms)),
	}
}

// nullable maps the empty string to nil so optional columns read as null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
