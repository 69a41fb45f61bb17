package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAll collects every row of rows with scan.
func scanAll[T any](rows *sql.Rows, scan func(scannable) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStage(row scannable) (*model.Stage, error) {
	var st model.Stage
	if err := row.Scan(&st.ID, &st.StageKey, &st.Name, &st.Sequence, &st.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

// scanGate scans a row with columns in gateColumns order.
func scanGate(row scannable) (*model.Gate, error) {
	var (
		g           model.Gate
		description sql.NullString
		templates   []byte
	)
	err := row.Scan(
		&g.ID,
		&g.StageID,
		&g.GateKey,
		&g.Name,
		&description,
		&g.Sequence,
		&g.IsBlocking,
		&g.IsActive,
		&g.AppliesDesignLock,
		&g.AppliesProcurementLock,
		&g.AppliesProductionLock,
		&g.CreatesTasksOnPass,
		&templates,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	g.Description = description.String
	if err := unmarshalJSONB(templates, &g.TaskTemplates); err != nil {
		return nil, fmt.Errorf("gate %s task_templates: %w", g.ID, err)
	}
	return &g, nil
}

// scanRequirement scans a row with columns in requirementColumns order.
func scanRequirement(row scannable) (*model.Requirement, error) {
	var r model.Requirement
	var targetModel, targetField, targetRelation, targetValue sql.NullString
	var operator, customCheck, errorMessage, helpText sql.NullString
	var actionLabel, actionRoute sql.NullString
	err := row.Scan(
		&r.ID,
		&r.GateID,
		&r.RequirementType,
		&targetModel,
		&targetField,
		&targetRelation,
		&targetValue,
		&operator,
		&customCheck,
		&errorMessage,
		&helpText,
		&actionLabel,
		&actionRoute,
		&r.Sequence,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	r.TargetModel = targetModel.String
	r.TargetField = targetField.String
	r.TargetRelation = targetRelation.String
	r.TargetValue = targetValue.String
	r.ComparisonOperator = model.Operator(operator.String)
	r.CustomCheck = customCheck.String
	r.ErrorMessage = errorMessage.String
	r.HelpText = helpText.String
	r.ActionLabel = actionLabel.String
	r.ActionRoute = actionRoute.String
	return &r, nil
}

// scanProject scans a row with columns in projectColumns order.
func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var number, description, partnerID sql.NullString
	var fields []byte
	err := row.Scan(
		&p.ID,
		&number,
		&p.Name,
		&description,
		&p.StageID,
		&partnerID,
		&fields,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	p.ProjectNumber = number.String
	p.Description = description.String
	p.PartnerID = partnerID.String
	if err := unmarshalJSONB(fields, &p.Fields); err != nil {
		return nil, fmt.Errorf("project %s fields: %w", p.ID, err)
	}
	return &p, nil
}

func scanRecord(row scannable) (*model.Record, error) {
	var (
		r      model.Record
		fields []byte
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Relation, &fields, &r.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := unmarshalJSONB(fields, &r.Fields); err != nil {
		return nil, fmt.Errorf("record %s fields: %w", r.ID, err)
	}
	return &r, nil
}

// scanEvaluation scans a row with columns in evaluationColumns order.
func scanEvaluation(row scannable) (*model.Evaluation, error) {
	var ev model.Evaluation
	var evaluatedBy sql.NullString
	var results, reasons, snapshot []byte
	err := row.Scan(
		&ev.ID,
		&ev.ProjectID,
		&ev.GateID,
		&ev.GateKey,
		&ev.Passed,
		&ev.EvaluationType,
		&evaluatedBy,
		&results,
		&reasons,
		&snapshot,
		&ev.EvaluatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	ev.EvaluatedBy = evaluatedBy.String
	if err := unmarshalJSONB(results, &ev.RequirementResults); err != nil {
		return nil, fmt.Errorf("evaluation %s requirement_results: %w", ev.ID, err)
	}
	if err := unmarshalJSONB(reasons, &ev.FailureReasons); err != nil {
		return nil, fmt.Errorf("evaluation %s failure_reasons: %w", ev.ID, err)
	}
	if err := unmarshalJSONB(snapshot, &ev.Context); err != nil {
		return nil, fmt.Errorf("evaluation %s context: %w", ev.ID, err)
	}
	return &ev, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes encodes v for a JSONB column. Nil maps and slices are stored as NULL.
func jsonbBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return nil, nil
		}
	case []model.TaskTemplate:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// unmarshalJSONB decodes a JSONB column, leaving dst untouched for NULL.
func unmarshalJSONB(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
