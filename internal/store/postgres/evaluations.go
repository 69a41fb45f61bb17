package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

const evaluationColumns = `id, project_id, gate_id, gate_key, passed,
	evaluation_type, evaluated_by, requirement_results, failure_reasons,
	context, evaluated_at`

func queryRecordEvaluation(ctx context.Context, db executor, ev *model.Evaluation) error {
	if ev.EvaluatedAt.IsZero() {
		ev.EvaluatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(ev.RequirementResults)
	if err != nil {
		return fmt.Errorf("encoding requirement_results: %w", err)
	}
	reasons, err := json.Marshal(ev.FailureReasons)
	if err != nil {
		return fmt.Errorf("encoding failure_reasons: %w", err)
	}
	snapshot, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("encoding context: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO gate_evaluations (
			id, project_id, gate_id, gate_key, passed,
			evaluation_type, evaluated_by, requirement_results, failure_reasons,
			context, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID,
		ev.ProjectID,
		ev.GateID,
		ev.GateKey,
		ev.Passed,
		string(ev.EvaluationType),
		nullString(ev.EvaluatedBy),
		results,
		reasons,
		snapshot,
		ev.EvaluatedAt,
	)
	return mapErr(err)
}

func queryGetEvaluation(ctx context.Context, db executor, id string) (*model.Evaluation, error) {
	return scanEvaluation(db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM gate_evaluations WHERE id = $1`, id))
}

func queryListEvaluations(ctx context.Context, db executor, filter model.EvaluationFilter) ([]*model.Evaluation, error) {
	var (
		where []string
		args  []any
	)
	nextArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = "+nextArg(filter.ProjectID))
	}
	if filter.GateID != "" {
		where = append(where, "gate_id = "+nextArg(filter.GateID))
	}
	if !filter.Since.IsZero() {
		where = append(where, "evaluated_at > "+nextArg(filter.Since))
	}

	q := `SELECT ` + evaluationColumns + ` FROM gate_evaluations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.OldestFirst {
		q += ` ORDER BY evaluated_at ASC, id ASC`
	} else {
		q += ` ORDER BY evaluated_at DESC, id DESC`
	}
	if filter.Limit > 0 {
		q += ` LIMIT ` + nextArg(filter.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanEvaluation)
}
