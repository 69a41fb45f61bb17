package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

const stageColumns = `id, stage_key, name, sequence, created_at`

const gateColumns = `id, stage_id, gate_key, name, description, sequence,
	is_blocking, is_active, applies_design_lock, applies_procurement_lock,
	applies_production_lock, creates_tasks_on_pass, task_templates,
	created_at, updated_at`

const requirementColumns = `id, gate_id, requirement_type, target_model,
	target_field, target_relation, target_value, comparison_operator,
	custom_check, error_message, help_text, action_label, action_route,
	sequence, is_active, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapErr translates driver errors into store sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", store.ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

// stamp fills in creation and modification times for a new row.
func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// execOne runs a statement that must affect exactly one row.
func execOne(ctx context.Context, db executor, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Stages

func queryCreateStage(ctx context.Context, db executor, st *model.Stage) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO stages (id, stage_key, name, sequence, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.StageKey, st.Name, st.Sequence, st.CreatedAt,
	)
	return mapErr(err)
}

func queryGetStage(ctx context.Context, db executor, id string) (*model.Stage, error) {
	return scanStage(db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id))
}

func queryGetStageByKey(ctx context.Context, db executor, key string) (*model.Stage, error) {
	return scanStage(db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE stage_key = $1`, key))
}

func queryListStages(ctx context.Context, db executor) ([]*model.Stage, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages ORDER BY sequence, stage_key`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanStage)
}

// Gates

func queryCreateGate(ctx context.Context, db executor, g *model.Gate) error {
	stamp(&g.CreatedAt, &g.UpdatedAt)
	templates, err := jsonbBytes(g.TaskTemplates)
	if err != nil {
		return fmt.Errorf("encoding task_templates: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO gates (
			id, stage_id, gate_key, name, description, sequence,
			is_blocking, is_active, applies_design_lock, applies_procurement_lock,
			applies_production_lock, creates_tasks_on_pass, task_templates,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15
		)`,
		g.ID,
		g.StageID,
		g.GateKey,
		g.Name,
		nullString(g.Description),
		g.Sequence,
		g.IsBlocking,
		g.IsActive,
		g.AppliesDesignLock,
		g.AppliesProcurementLock,
		g.AppliesProductionLock,
		g.CreatesTasksOnPass,
		templates,
		g.CreatedAt,
		g.UpdatedAt,
	)
	return mapErr(err)
}

func queryGetGate(ctx context.Context, db executor, id string) (*model.Gate, error) {
	return scanGate(db.QueryRowContext(ctx, `SELECT `+gateColumns+` FROM gates WHERE id = $1`, id))
}

func queryGetGateByKey(ctx context.Context, db executor, stageID, key string) (*model.Gate, error) {
	return scanGate(db.QueryRowContext(ctx,
		`SELECT `+gateColumns+` FROM gates WHERE stage_id = $1 AND gate_key = $2`, stageID, key))
}

func queryListGates(ctx context.Context, db executor, filter model.GateFilter) ([]*model.Gate, error) {
	var (
		where []string
		args  []any
	)
	if filter.StageID != "" {
		args = append(args, filter.StageID)
		where = append(where, fmt.Sprintf("stage_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	q := `SELECT ` + gateColumns + ` FROM gates`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY sequence, gate_key`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanGate)
}

func queryUpdateGate(ctx context.Context, db executor, g *model.Gate) error {
	g.UpdatedAt = time.Now().UTC()
	templates, err := jsonbBytes(g.TaskTemplates)
	if err != nil {
		return fmt.Errorf("encoding task_templates: %w", err)
	}
	return execOne(ctx, db, `
		UPDATE gates SET
			stage_id = $2, gate_key = $3, name = $4, description = $5, sequence = $6,
			is_blocking = $7, is_active = $8, applies_design_lock = $9,
			applies_procurement_lock = $10, applies_production_lock = $11,
			creates_tasks_on_pass = $12, task_templates = $13, updated_at = $14
		WHERE id = $1`,
		g.ID,
		g.StageID,
		g.GateKey,
		g.Name,
		nullString(g.Description),
		g.Sequence,
		g.IsBlocking,
		g.IsActive,
		g.AppliesDesignLock,
		g.AppliesProcurementLock,
		g.AppliesProductionLock,
		g.CreatesTasksOnPass,
		templates,
		g.UpdatedAt,
	)
}

// queryDeactivateGate marks the gate and its requirements inactive. Callers
// run it inside a transaction so the two updates land together.
func queryDeactivateGate(ctx context.Context, db executor, id string) error {
	if err := execOne(ctx, db,
		`UPDATE gates SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE gate_requirements SET is_active = FALSE, updated_at = NOW() WHERE gate_id = $1 AND is_active`, id)
	return err
}

// queryDeleteGate relies on ON DELETE CASCADE for requirements.
func queryDeleteGate(ctx context.Context, db executor, id string) error {
	return execOne(ctx, db, `DELETE FROM gates WHERE id = $1`, id)
}

// Requirements

func queryCreateRequirement(ctx context.Context, db executor, r *model.Requirement) error {
	stamp(&r.CreatedAt, &r.UpdatedAt)
	_, err := db.ExecContext(ctx, `
		INSERT INTO gate_requirements (
			id, gate_id, requirement_type, target_model,
			target_field, target_relation, target_value, comparison_operator,
			custom_check, error_message, help_text, action_label, action_route,
			sequence, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`,
		r.ID,
		r.GateID,
		string(r.RequirementType),
		nullString(r.TargetModel),
		nullString(r.TargetField),
		nullString(r.TargetRelation),
		nullString(r.TargetValue),
		nullString(string(r.ComparisonOperator)),
		nullString(r.CustomCheck),
		nullString(r.ErrorMessage),
		nullString(r.HelpText),
		nullString(r.ActionLabel),
		nullString(r.ActionRoute),
		r.Sequence,
		r.IsActive,
		r.CreatedAt,
		r.UpdatedAt,
	)
	return mapErr(err)
}

func queryGetRequirement(ctx context.Context, db executor, id string) (*model.Requirement, error) {
	return scanRequirement(db.QueryRowContext(ctx,
		`SELECT `+requirementColumns+` FROM gate_requirements WHERE id = $1`, id))
}

// queryListRequirements with activeOnly also requires the parent gate to be
// active, so requirements of a deactivated gate are never evaluated.
func queryListRequirements(ctx context.Context, db executor, gateID string, activeOnly bool) ([]*model.Requirement, error) {
	q := `SELECT ` + requirementColumns + ` FROM gate_requirements WHERE gate_id = $1`
	if activeOnly {
		q += ` AND is_active AND EXISTS (SELECT 1 FROM gates WHERE gates.id = gate_requirements.gate_id AND gates.is_active)`
	}
	q += ` ORDER BY sequence, id`

	rows, err := db.QueryContext(ctx, q, gateID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanRequirement)
}

func queryUpdateRequirement(ctx context.Context, db executor, r *model.Requirement) error {
	r.UpdatedAt = time.Now().UTC()
	return execOne(ctx, db, `
		UPDATE gate_requirements SET
			requirement_type = $2, target_model = $3, target_field = $4,
			target_relation = $5, target_value = $6, comparison_operator = $7,
			custom_check = $8, error_message = $9, help_text = $10,
			action_label = $11, action_route = $12, sequence = $13,
			is_active = $14, updated_at = $15
		WHERE id = $1`,
		r.ID,
		string(r.RequirementType),
		nullString(r.TargetModel),
		nullString(r.TargetField),
		nullString(r.TargetRelation),
		nullString(r.TargetValue),
		nullString(string(r.ComparisonOperator)),
		nullString(r.CustomCheck),
		nullString(r.ErrorMessage),
		nullString(r.HelpText),
		nullString(r.ActionLabel),
		nullString(r.ActionRoute),
		r.Sequence,
		r.IsActive,
		r.UpdatedAt,
	)
}

func queryDeleteRequirement(ctx context.Context, db executor, id string) error {
	return execOne(ctx, db, `DELETE FROM gate_requirements WHERE id = $1`, id)
}
