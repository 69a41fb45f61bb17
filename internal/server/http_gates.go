package server

import (
	"net/http"
	"strings"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/idgen"
	"github.com/alfredjeanlab/stagegate/internal/model"
)

// handleListStages handles GET /v1/stages.
func (s *GateServer) handleListStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.store.ListStages(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

type createStageInput struct {
	ID       string `json:"id"`
	StageKey string `json:"stage_key"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

// handleCreateStage handles POST /v1/stages.
func (s *GateServer) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	var in createStageInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	stage := &model.Stage{
		ID:       in.ID,
		StageKey: strings.TrimSpace(in.StageKey),
		Name:     in.Name,
		Sequence: in.Sequence,
	}
	if err := model.ValidateStage(stage); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := idgen.Ensure(stage.ID, idgen.PrefixStage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	stage.ID = id
	if err := s.store.CreateStage(r.Context(), stage); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stage)
}

// handleListStageGates handles GET /v1/stages/{id}/gates.
// Inactive gates are included unless ?active=true.
func (s *GateServer) handleListStageGates(w http.ResponseWriter, r *http.Request) {
	stageID := r.PathValue("id")
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.store.GetStage(r.Context(), stageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.store.ListGates(r.Context(), model.GateFilter{StageID: stageID, ActiveOnly: activeOnly})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gates": list})
}

type createGateInput struct {
	ID                     string               `json:"id"`
	GateKey                string               `json:"gate_key"`
	Name                   string               `json:"name"`
	Description            string               `json:"description"`
	Sequence               int                  `json:"sequence"`
	IsBlocking             *bool                `json:"is_blocking"`
	IsActive               *bool                `json:"is_active"`
	AppliesDesignLock      bool                 `json:"applies_design_lock"`
	AppliesProcurementLock bool                 `json:"applies_procurement_lock"`
	AppliesProductionLock  bool                 `json:"applies_production_lock"`
	CreatesTasksOnPass     bool                 `json:"creates_tasks_on_pass"`
	TaskTemplates          []model.TaskTemplate `json:"task_templates"`
}

// boolOr returns *p, or def when p is nil.
func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// handleCreateGate handles POST /v1/stages/{id}/gates.
// Gates are blocking and active unless the body says otherwise.
func (s *GateServer) handleCreateGate(w http.ResponseWriter, r *http.Request) {
	stageID := r.PathValue("id")
	var in createGateInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.store.GetStage(r.Context(), stageID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	gate := &model.Gate{
		ID:                     in.ID,
		StageID:                stageID,
		GateKey:                strings.TrimSpace(in.GateKey),
		Name:                   in.Name,
		Description:            in.Description,
		Sequence:               in.Sequence,
		IsBlocking:             boolOr(in.IsBlocking, true),
		IsActive:               boolOr(in.IsActive, true),
		AppliesDesignLock:      in.AppliesDesignLock,
		AppliesProcurementLock: in.AppliesProcurementLock,
		AppliesProductionLock:  in.AppliesProductionLock,
		CreatesTasksOnPass:     in.CreatesTasksOnPass,
		TaskTemplates:          in.TaskTemplates,
	}
	if err := model.ValidateGate(gate); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := idgen.Ensure(gate.ID, idgen.PrefixGate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	gate.ID = id
	if err := s.store.CreateGate(r.Context(), gate); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.publish(r.Context(), events.TopicGateCreated, events.GateCreated{Gate: gate})
	writeJSON(w, http.StatusCreated, gate)
}

// handleGetGate handles GET /v1/gates/{id}. The response includes every
// requirement of the gate, active or not.
func (s *GateServer) handleGetGate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	gate, err := s.store.GetGate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	reqs, err := s.store.ListRequirements(r.Context(), id, false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*model.Gate
		Requirements []*model.Requirement `json:"requirements"`
	}{gate, reqs})
}

// handleDeactivateGate handles POST /v1/gates/{id}/deactivate.
func (s *GateServer) handleDeactivateGate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeactivateGate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	gate, err := s.store.GetGate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.publish(r.Context(), events.TopicGateDeactivated, events.GateDeactivated{GateID: id})
	writeJSON(w, http.StatusOK, gate)
}

// handleDeleteGate handles DELETE /v1/gates/{id}.
func (s *GateServer) handleDeleteGate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteGate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.publish(r.Context(), events.TopicGateDeleted, events.GateDeleted{GateID: id})
	w.WriteHeader(http.StatusNoContent)
}

// handleListRequirements handles GET /v1/gates/{id}/requirements.
func (s *GateServer) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.store.GetGate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	reqs, err := s.store.ListRequirements(r.Context(), id, activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
}

type createRequirementInput struct {
	ID                 string                `json:"id"`
	RequirementType    model.RequirementType `json:"requirement_type"`
	TargetModel        string                `json:"target_model"`
	TargetField        string                `json:"target_field"`
	TargetRelation     string                `json:"target_relation"`
	TargetValue        string                `json:"target_value"`
	ComparisonOperator model.Operator        `json:"comparison_operator"`
	CustomCheck        string                `json:"custom_check"`
	ErrorMessage       string                `json:"error_message"`
	HelpText           string                `json:"help_text"`
	ActionLabel        string                `json:"action_label"`
	ActionRoute        string                `json:"action_route"`
	Sequence           int                   `json:"sequence"`
	IsActive           *bool                 `json:"is_active"`
}

// handleCreateRequirement handles POST /v1/gates/{id}/requirements.
func (s *GateServer) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	var in createRequirementInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := s.store.GetGate(r.Context(), gateID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	req := &model.Requirement{
		ID:                 in.ID,
		GateID:             gateID,
		RequirementType:    in.RequirementType,
		TargetModel:        in.TargetModel,
		TargetField:        in.TargetField,
		TargetRelation:     in.TargetRelation,
		TargetValue:        in.TargetValue,
		ComparisonOperator: in.ComparisonOperator,
		CustomCheck:        in.CustomCheck,
		ErrorMessage:       in.ErrorMessage,
		HelpText:           in.HelpText,
		ActionLabel:        in.ActionLabel,
		ActionRoute:        in.ActionRoute,
		Sequence:           in.Sequence,
		IsActive:           boolOr(in.IsActive, true),
	}
	if err := model.ValidateRequirement(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id, err := idgen.Ensure(req.ID, idgen.PrefixRequirement)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	req.ID = id
	if err := s.store.CreateRequirement(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}
