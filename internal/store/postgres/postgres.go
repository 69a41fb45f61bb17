// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateStage(ctx context.Context, stage *model.Stage) error {
	return queryCreateStage(ctx, s.db, stage)
}

func (s *PostgresStore) GetStage(ctx context.Context, id string) (*model.Stage, error) {
	return queryGetStage(ctx, s.db, id)
}

func (s *PostgresStore) GetStageByKey(ctx context.Context, stageKey string) (*model.Stage, error) {
	return queryGetStageByKey(ctx, s.db, stageKey)
}

func (s *PostgresStore) ListStages(ctx context.Context) ([]*model.Stage, error) {
	return queryListStages(ctx, s.db)
}

func (s *PostgresStore) CreateGate(ctx context.Context, gate *model.Gate) error {
	return queryCreateGate(ctx, s.db, gate)
}

func (s *PostgresStore) GetGate(ctx context.Context, id string) (*model.Gate, error) {
	return queryGetGate(ctx, s.db, id)
}

func (s *PostgresStore) GetGateByKey(ctx context.Context, stageID, gateKey string) (*model.Gate, error) {
	return queryGetGateByKey(ctx, s.db, stageID, gateKey)
}

func (s *PostgresStore) ListGates(ctx context.Context, filter model.GateFilter) ([]*model.Gate, error) {
	return queryListGates(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateGate(ctx context.Context, gate *model.Gate) error {
	return queryUpdateGate(ctx, s.db, gate)
}

func (s *PostgresStore) DeleteGate(ctx context.Context, id string) error {
	return queryDeleteGate(ctx, s.db, id)
}

func (s *PostgresStore) CreateRequirement(ctx context.Context, req *model.Requirement) error {
	return queryCreateRequirement(ctx, s.db, req)
}

func (s *PostgresStore) GetRequirement(ctx context.Context, id string) (*model.Requirement, error) {
	return queryGetRequirement(ctx, s.db, id)
}

func (s *PostgresStore) ListRequirements(ctx context.Context, gateID string, activeOnly bool) ([]*model.Requirement, error) {
	return queryListRequirements(ctx, s.db, gateID, activeOnly)
}

func (s *PostgresStore) UpdateRequirement(ctx context.Context, req *model.Requirement) error {
	return queryUpdateRequirement(ctx, s.db, req)
}

func (s *PostgresStore) DeleteRequirement(ctx context.Context, id string) error {
	return queryDeleteRequirement(ctx, s.db, id)
}

func (s *PostgresStore) CreateProject(ctx context.Context, project *model.Project) error {
	return queryCreateProject(ctx, s.db, project)
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return queryGetProject(ctx, s.db, id)
}

func (s *PostgresStore) ListProjects(ctx context.Context, stageID string) ([]*model.Project, error) {
	return queryListProjects(ctx, s.db, stageID)
}

func (s *PostgresStore) UpdateProject(ctx context.Context, project *model.Project) error {
	return queryUpdateProject(ctx, s.db, project)
}

func (s *PostgresStore) AddRecord(ctx context.Context, rec *model.Record) error {
	return queryAddRecord(ctx, s.db, rec)
}

func (s *PostgresStore) RecordEvaluation(ctx context.Context, ev *model.Evaluation) error {
	return queryRecordEvaluation(ctx, s.db, ev)
}

func (s *PostgresStore) GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error) {
	return queryGetEvaluation(ctx, s.db, id)
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, filter model.EvaluationFilter) ([]*model.Evaluation, error) {
	return queryListEvaluations(ctx, s.db, filter)
}

// DeactivateGate deactivates the gate and its requirements in one transaction.
func (s *PostgresStore) DeactivateGate(ctx context.Context, id string) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.DeactivateGate(ctx, id)
	})
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateStage(ctx context.Context, stage *model.Stage) error {
	return queryCreateStage(ctx, s.tx, stage)
}

func (s *txStore) GetStage(ctx context.Context, id string) (*model.Stage, error) {
	return queryGetStage(ctx, s.tx, id)
}

func (s *txStore) GetStageByKey(ctx context.Context, stageKey string) (*model.Stage, error) {
	return queryGetStageByKey(ctx, s.tx, stageKey)
}

func (s *txStore) ListStages(ctx context.Context) ([]*model.Stage, error) {
	return queryListStages(ctx, s.tx)
}

func (s *txStore) CreateGate(ctx context.Context, gate *model.Gate) error {
	return queryCreateGate(ctx, s.tx, gate)
}

func (s *txStore) GetGate(ctx context.Context, id string) (*model.Gate, error) {
	return queryGetGate(ctx, s.tx, id)
}

func (s *txStore) GetGateByKey(ctx context.Context, stageID, gateKey string) (*model.Gate, error) {
	return queryGetGateByKey(ctx, s.tx, stageID, gateKey)
}

func (s *txStore) ListGates(ctx context.Context, filter model.GateFilter) ([]*model.Gate, error) {
	return queryListGates(ctx, s.tx, filter)
}

func (s *txStore) UpdateGate(ctx context.Context, gate *model.Gate) error {
	return queryUpdateGate(ctx, s.tx, gate)
}

func (s *txStore) DeleteGate(ctx context.Context, id string) error {
	return queryDeleteGate(ctx, s.tx, id)
}

func (s *txStore) CreateRequirement(ctx context.Context, req *model.Requirement) error {
	return queryCreateRequirement(ctx, s.tx, req)
}

func (s *txStore) GetRequirement(ctx context.Context, id string) (*model.Requirement, error) {
	return queryGetRequirement(ctx, s.tx, id)
}

func (s *txStore) ListRequirements(ctx context.Context, gateID string, activeOnly bool) ([]*model.Requirement, error) {
	return queryListRequirements(ctx, s.tx, gateID, activeOnly)
}

func (s *txStore) UpdateRequirement(ctx context.Context, req *model.Requirement) error {
	return queryUpdateRequirement(ctx, s.tx, req)
}

func (s *txStore) DeleteRequirement(ctx context.Context, id string) error {
	return queryDeleteRequirement(ctx, s.tx, id)
}

func (s *txStore) CreateProject(ctx context.Context, project *model.Project) error {
	return queryCreateProject(ctx, s.tx, project)
}

func (s *txStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return queryGetProject(ctx, s.tx, id)
}

func (s *txStore) ListProjects(ctx context.Context, stageID string) ([]*model.Project, error) {
	return queryListProjects(ctx, s.tx, stageID)
}

func (s *txStore) UpdateProject(ctx context.Context, project *model.Project) error {
	return queryUpdateProject(ctx, s.tx, project)
}

func (s *txStore) AddRecord(ctx context.Context, rec *model.Record) error {
	return queryAddRecord(ctx, s.tx, rec)
}

func (s *txStore) RecordEvaluation(ctx context.Context, ev *model.Evaluation) error {
	return queryRecordEvaluation(ctx, s.tx, ev)
}

func (s *txStore) GetEvaluation(ctx context.Context, id string) (*model.Evaluation, error) {
	return queryGetEvaluation(ctx, s.tx, id)
}

func (s *txStore) ListEvaluations(ctx context.Context, filter model.EvaluationFilter) ([]*model.Evaluation, error) {
	return queryListEvaluations(ctx, s.tx, filter)
}

func (s *txStore) DeactivateGate(ctx context.Context, id string) error {
	return queryDeactivateGate(ctx, s.tx, id)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
