package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/idgen"
	"github.com/alfredjeanlab/stagegate/internal/model"
)

const (
	defaultEvaluationLimit = 50
	maxEvaluationLimit     = 500
)

type createProjectInput struct {
	ID            string         `json:"id"`
	ProjectNumber string         `json:"project_number"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	StageID       string         `json:"stage_id"`
	PartnerID     string         `json:"partner_id"`
	Fields        map[string]any `json:"fields"`
}

// handleCreateProject handles POST /v1/projects.
func (s *GateServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in createProjectInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p := &model.Project{
		ID:            in.ID,
		ProjectNumber: in.ProjectNumber,
		Name:          in.Name,
		Description:   in.Description,
		StageID:       in.StageID,
		PartnerID:     in.PartnerID,
		Fields:        in.Fields,
	}
	if err := model.ValidateProject(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.store.GetStage(r.Context(), p.StageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := idgen.Ensure(p.ID, idgen.PrefixProject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p.ID = id
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProject handles GET /v1/projects/{id}.
func (s *GateServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.loadProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updateProjectInput is a partial update. Nil fields are left unchanged;
// Fields entries are merged into the existing fields.
type updateProjectInput struct {
	ProjectNumber *string        `json:"project_number"`
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	StageID       *string        `json:"stage_id"`
	PartnerID     *string        `json:"partner_id"`
	Fields        map[string]any `json:"fields"`
}

// handleUpdateProject handles PATCH /v1/projects/{id}.
func (s *GateServer) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var in updateProjectInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.loadProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	prevStage := p.StageID
	if in.ProjectNumber != nil {
		p.ProjectNumber = *in.ProjectNumber
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.StageID != nil {
		p.StageID = *in.StageID
	}
	if in.PartnerID != nil {
		p.PartnerID = *in.PartnerID
	}
	if len(in.Fields) > 0 {
		if p.Fields == nil {
			p.Fields = make(map[string]any, len(in.Fields))
		}
		for k, v := range in.Fields {
			p.Fields[k] = v
		}
	}

	if err := model.ValidateProject(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if p.StageID != prevStage {
		if _, err := s.store.GetStage(r.Context(), p.StageID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}

	topic := events.TopicProjectUpdated
	if p.StageID != prevStage {
		topic = events.TopicProjectStageChanged
	}
	s.publish(r.Context(), topic, events.ProjectChanged{ProjectID: p.ID})
	writeJSON(w, http.StatusOK, p)
}

type addRecordInput struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// handleAddRecord handles POST /v1/projects/{id}/records/{relation}.
func (s *GateServer) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	relation := strings.ToLower(r.PathValue("relation"))
	if !model.IsProjectRelation(relation) {
		writeError(w, http.StatusBadRequest, "unknown relation "+strconv.Quote(relation))
		return
	}
	var in addRecordInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := idgen.Ensure(in.ID, idgen.PrefixRecord)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	rec := &model.Record{
		ID:        id,
		ProjectID: projectID,
		Relation:  relation,
		Fields:    in.Fields,
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if err := s.store.AddRecord(r.Context(), rec); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.publish(r.Context(), events.TopicProjectRecordAdded, events.ProjectChanged{ProjectID: projectID, Relation: relation})
	writeJSON(w, http.StatusCreated, rec)
}

// handleGateStatus handles GET /v1/projects/{id}/gate-status.
// Each gate is evaluated and recorded unless ?dry_run=true.
func (s *GateServer) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := s.projectReport(r.Context(), r.PathValue("id"), dryRun)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleBlockers handles GET /v1/projects/{id}/blockers.
func (s *GateServer) handleBlockers(w http.ResponseWriter, r *http.Request) {
	resp, err := s.projectBlockers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type evaluateInput struct {
	EvaluationType model.EvaluationType `json:"evaluation_type"`
}

// handleEvaluate handles POST /v1/projects/{id}/gates/{gate_key}/evaluate.
func (s *GateServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	in := evaluateInput{EvaluationType: model.EvalManual}
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !in.EvaluationType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid evaluation_type "+strconv.Quote(string(in.EvaluationType)))
		return
	}

	resp, err := s.evaluateProjectGate(r.Context(), r.PathValue("id"), r.PathValue("gate_key"), in.EvaluationType, dryRun)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListEvaluations handles GET /v1/projects/{id}/evaluations.
// Results are newest first; ?gate_id narrows to one gate.
func (s *GateServer) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	limit := defaultEvaluationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = min(n, maxEvaluationLimit)
	}
	if _, err := s.loadProject(r.Context(), projectID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	evals, err := s.store.ListEvaluations(r.Context(), model.EvaluationFilter{
		ProjectID: projectID,
		GateID:    r.URL.Query().Get("gate_id"),
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if evals == nil {
		evals = []*model.Evaluation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": evals})
}
