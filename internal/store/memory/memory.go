// Package memory implements store.Store in process memory.
//
// It backs `sg serve --memory` and the server tests. Stored values are copied
// on the way in and out, and never mutated in place once stored.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

type state struct {
	stages   map[string]*model.Stage
	gates    map[string]*model.Gate
	reqs     map[string]*model.Requirement
	projects map[string]*model.Project
	records  map[string][]*model.Record // by project ID
	evals    []*model.Evaluation
}

func newState() *state {
	return &state{
		stages:   make(map[string]*model.Stage),
		gates:    make(map[string]*model.Gate),
		reqs:     make(map[string]*model.Requirement),
		projects: make(map[string]*model.Project),
		records:  make(map[string][]*model.Record),
	}
}

// clone copies the indexes. Stored values are copy-on-write, so the pointers
// can be shared.
func (st *state) clone() *state {
	c := &state{
		stages:   maps.Clone(st.stages),
		gates:    maps.Clone(st.gates),
		reqs:     maps.Clone(st.reqs),
		projects: maps.Clone(st.projects),
		records:  make(map[string][]*model.Record, len(st.records)),
		evals:    slices.Clone(st.evals),
	}
	for k, v := range st.records {
		c.records[k] = slices.Clone(v)
	}
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// RunInTransaction runs fn against a private copy of the store and publishes
// the copy only when fn succeeds. Other callers wait until it finishes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{st: s.st.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Stages

func (s *Store) CreateStage(_ context.Context, stage *model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.stages[stage.ID]; ok {
		return store.ErrConflict
	}
	for _, existing := range s.st.stages {
		if existing.StageKey == stage.StageKey {
			return store.ErrConflict
		}
	}
	if stage.CreatedAt.IsZero() {
		stage.CreatedAt = s.stamp()
	}
	c := *stage
	s.st.stages[stage.ID] = &c
	return nil
}

func (s *Store) GetStage(_ context.Context, id string) (*model.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stage, ok := s.st.stages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *stage
	return &c, nil
}

func (s *Store) GetStageByKey(_ context.Context, stageKey string) (*model.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, stage := range s.st.stages {
		if stage.StageKey == stageKey {
			c := *stage
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListStages(_ context.Context) ([]*model.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Stage, 0, len(s.st.stages))
	for _, stage := range s.st.stages {
		c := *stage
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *model.Stage) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.StageKey, b.StageKey))
	})
	return out, nil
}

// Gates

func copyGate(g *model.Gate) *model.Gate {
	c := *g
	c.TaskTemplates = slices.Clone(g.TaskTemplates)
	return &c
}

func (s *Store) gateKeyTaken(stageID, gateKey, exceptID string) bool {
	for _, g := range s.st.gates {
		if g.ID != exceptID && g.StageID == stageID && g.GateKey == gateKey {
			return true
		}
	}
	return false
}

func (s *Store) CreateGate(_ context.Context, gate *model.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.gates[gate.ID]; ok || s.gateKeyTaken(gate.StageID, gate.GateKey, "") {
		return store.ErrConflict
	}
	now := s.stamp()
	if gate.CreatedAt.IsZero() {
		gate.CreatedAt = now
	}
	gate.UpdatedAt = now
	s.st.gates[gate.ID] = copyGate(gate)
	return nil
}

func (s *Store) GetGate(_ context.Context, id string) (*model.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.st.gates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyGate(g), nil
}

func (s *Store) GetGateByKey(_ context.Context, stageID, gateKey string) (*model.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.st.gates {
		if g.StageID == stageID && g.GateKey == gateKey {
			return copyGate(g), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListGates(_ context.Context, filter model.GateFilter) ([]*model.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Gate
	for _, g := range s.st.gates {
		if filter.StageID != "" && g.StageID != filter.StageID {
			continue
		}
		if filter.ActiveOnly && !g.IsActive {
			continue
		}
		out = append(out, copyGate(g))
	}
	slices.SortFunc(out, func(a, b *model.Gate) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.GateKey, b.GateKey))
	})
	return out, nil
}

func (s *Store) UpdateGate(_ context.Context, gate *model.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.gates[gate.ID]
	if !ok {
		return store.ErrNotFound
	}
	if s.gateKeyTaken(gate.StageID, gate.GateKey, gate.ID) {
		return store.ErrConflict
	}
	gate.CreatedAt = existing.CreatedAt
	gate.UpdatedAt = s.stamp()
	s.st.gates[gate.ID] = copyGate(gate)
	return nil
}

func (s *Store) DeactivateGate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.st.gates[id]
	if !ok {
		return store.ErrNotFound
	}
	now := s.stamp()
	ng := copyGate(g)
	ng.IsActive = false
	ng.UpdatedAt = now
	s.st.gates[id] = ng
	for rid, r := range s.st.reqs {
		if r.GateID == id && r.IsActive {
			nr := *r
			nr.IsActive = false
			nr.UpdatedAt = now
			s.st.reqs[rid] = &nr
		}
	}
	return nil
}

func (s *Store) DeleteGate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.gates[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.gates, id)
	maps.DeleteFunc(s.st.reqs, func(_ string, r *model.Requirement) bool {
		return r.GateID == id
	})
	return nil
}

// Requirements

func (s *Store) CreateRequirement(_ context.Context, req *model.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.gates[req.GateID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.st.reqs[req.ID]; ok {
		return store.ErrConflict
	}
	now := s.stamp()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	c := *req
	s.st.reqs[req.ID] = &c
	return nil
}

func (s *Store) GetRequirement(_ context.Context, id string) (*model.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.st.reqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *Store) ListRequirements(_ context.Context, gateID string, activeOnly bool) ([]*model.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if activeOnly {
		if g, ok := s.st.gates[gateID]; !ok || !g.IsActive {
			return nil, nil
		}
	}
	var out []*model.Requirement
	for _, r := range s.st.reqs {
		if r.GateID != gateID || (activeOnly && !r.IsActive) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *model.Requirement) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) UpdateRequirement(_ context.Context, req *model.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.reqs[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = s.stamp()
	c := *req
	s.st.reqs[req.ID] = &c
	return nil
}

func (s *Store) DeleteRequirement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.reqs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.reqs, id)
	return nil
}

// Projects

func copyRecord(r *model.Record) *model.Record {
	c := *r
	c.Fields = maps.Clone(r.Fields)
	return &c
}

func (s *Store) loadProject(p *model.Project) *model.Project {
	c := *p
	c.Fields = maps.Clone(p.Fields)
	c.Relations = nil
	for _, r := range s.st.records[p.ID] {
		c.AddRecord(copyRecord(r))
	}
	return &c
}

func (s *Store) CreateProject(_ context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.projects[project.ID]; ok {
		return store.ErrConflict
	}
	now := s.stamp()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	c := *project
	c.Fields = maps.Clone(project.Fields)
	c.Relations = nil
	s.st.projects[project.ID] = &c
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.loadProject(p), nil
}

func (s *Store) ListProjects(_ context.Context, stageID string) ([]*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Project
	for _, p := range s.st.projects {
		if stageID != "" && p.StageID != stageID {
			continue
		}
		out = append(out, s.loadProject(p))
	}
	slices.SortFunc(out, func(a, b *model.Project) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) UpdateProject(_ context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.projects[project.ID]
	if !ok {
		return store.ErrNotFound
	}
	project.CreatedAt = existing.CreatedAt
	project.UpdatedAt = s.stamp()
	c := *project
	c.Fields = maps.Clone(project.Fields)
	c.Relations = nil
	s.st.projects[project.ID] = &c
	return nil
}

func (s *Store) AddRecord(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.projects[rec.ProjectID]; !ok {
		return store.ErrNotFound
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.stamp()
	}
	// Append to a fresh slice so clones taken by transactions stay untouched.
	recs := slices.Clone(s.st.records[rec.ProjectID])
	s.st.records[rec.ProjectID] = append(recs, copyRecord(rec))
	return nil
}

// Evaluations

func copyEvaluation(ev *model.Evaluation) *model.Evaluation {
	c := *ev
	c.RequirementResults = maps.Clone(ev.RequirementResults)
	c.FailureReasons = slices.Clone(ev.FailureReasons)
	c.Context = maps.Clone(ev.Context)
	return &c
}

func (s *Store) RecordEvaluation(_ context.Context, ev *model.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.evals {
		if existing.ID == ev.ID {
			return store.ErrConflict
		}
	}
	if ev.EvaluatedAt.IsZero() {
		ev.EvaluatedAt = s.stamp()
	}
	s.st.evals = append(s.st.evals, copyEvaluation(ev))
	return nil
}

func (s *Store) GetEvaluation(_ context.Context, id string) (*model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.st.evals {
		if ev.ID == id {
			return copyEvaluation(ev), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEvaluations(_ context.Context, filter model.EvaluationFilter) ([]*model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Evaluation
	for _, ev := range s.st.evals {
		if filter.ProjectID != "" && ev.ProjectID != filter.ProjectID {
			continue
		}
		if filter.GateID != "" && ev.GateID != filter.GateID {
			continue
		}
		if !filter.Since.IsZero() && !ev.EvaluatedAt.After(filter.Since) {
			continue
		}
		out = append(out, copyEvaluation(ev))
	}
	// Insertion order breaks timestamp ties.
	slices.SortStableFunc(out, func(a, b *model.Evaluation) int {
		return a.EvaluatedAt.Compare(b.EvaluatedAt)
	})
	if !filter.OldestFirst {
		slices.Reverse(out)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
