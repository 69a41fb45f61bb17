package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

const projectColumns = `id, project_number, name, description, stage_id,
	partner_id, fields, created_at, updated_at`

const recordColumns = `id, project_id, relation, fields, created_at`

func queryCreateProject(ctx context.Context, db executor, p *model.Project) error {
	stamp(&p.CreatedAt, &p.UpdatedAt)
	fields, err := jsonbBytes(p.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO projects (
			id, project_number, name, description, stage_id,
			partner_id, fields, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID,
		nullString(p.ProjectNumber),
		p.Name,
		nullString(p.Description),
		p.StageID,
		nullString(p.PartnerID),
		fields,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return mapErr(err)
}

func queryGetProject(ctx context.Context, db executor, id string) (*model.Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := loadRecords(ctx, db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func queryListProjects(ctx context.Context, db executor, stageID string) ([]*model.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if stageID != "" {
		q += ` WHERE stage_id = $1`
		args = append(args, stageID)
	}
	q += ` ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	projects, err := scanAll(rows, scanProject)
	if err != nil {
		return nil, err
	}
	if err := loadRecords(ctx, db, projects...); err != nil {
		return nil, err
	}
	return projects, nil
}

// loadRecords fetches the relation records of every project in one query.
func loadRecords(ctx context.Context, db executor, projects ...*model.Project) error {
	if len(projects) == 0 {
		return nil
	}
	byID := make(map[string]*model.Project, len(projects))
	ids := make([]string, len(projects))
	for i, p := range projects {
		byID[p.ID] = p
		ids[i] = p.ID
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM project_records
		WHERE project_id = ANY($1)
		ORDER BY created_at, id`, pq.Array(ids))
	if err != nil {
		return err
	}
	records, err := scanAll(rows, scanRecord)
	if err != nil {
		return err
	}
	for _, r := range records {
		if p, ok := byID[r.ProjectID]; ok {
			p.AddRecord(r)
		}
	}
	return nil
}

func queryUpdateProject(ctx context.Context, db executor, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()
	fields, err := jsonbBytes(p.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	return execOne(ctx, db, `
		UPDATE projects SET
			project_number = $2, name = $3, description = $4, stage_id = $5,
			partner_id = $6, fields = $7, updated_at = $8
		WHERE id = $1`,
		p.ID,
		nullString(p.ProjectNumber),
		p.Name,
		nullString(p.Description),
		p.StageID,
		nullString(p.PartnerID),
		fields,
		p.UpdatedAt,
	)
}

func queryAddRecord(ctx context.Context, db executor, r *model.Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	fields, err := jsonbBytes(r.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO project_records (id, project_id, relation, fields, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.ProjectID, r.Relation, fields, r.CreatedAt,
	)
	return mapErr(err)
}
