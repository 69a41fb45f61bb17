package model

import "time"

// LockType names a downstream process area a gate can freeze.
type LockType string

const (
	LockDesign      LockType = "design"
	LockProcurement LockType = "procurement"
	LockProduction  LockType = "production"
)

// String returns the string representation of the lock type.
func (l LockType) String() string {
	return string(l)
}

// Stage is a step in the project workflow. Gates are bound to exactly one stage.
type Stage struct {
	ID        string    `json:"id"`
	StageKey  string    `json:"stage_key"`
	Name      string    `json:"name"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskTemplate describes a follow-up task the host should create when a gate passes.
type TaskTemplate struct {
	Title       string `json:"title" toml:"title" yaml:"title"`
	Description string `json:"description,omitempty" toml:"description" yaml:"description"`
}

// Gate is a configured checkpoint on a stage. gate_key is unique within its stage.
type Gate struct {
	ID                     string         `json:"id"`
	StageID                string         `json:"stage_id"`
	GateKey                string         `json:"gate_key"`
	Name                   string         `json:"name"`
	Description            string         `json:"description,omitempty"`
	Sequence               int            `json:"sequence"`
	IsBlocking             bool           `json:"is_blocking"`
	IsActive               bool           `json:"is_active"`
	AppliesDesignLock      bool           `json:"applies_design_lock"`
	AppliesProcurementLock bool           `json:"applies_procurement_lock"`
	AppliesProductionLock  bool           `json:"applies_production_lock"`
	CreatesTasksOnPass     bool           `json:"creates_tasks_on_pass"`
	TaskTemplates          []TaskTemplate `json:"task_templates,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// AppliesAnyLock reports whether the gate declares at least one lock.
func (g *Gate) AppliesAnyLock() bool {
	return g.AppliesDesignLock || g.AppliesProcurementLock || g.AppliesProductionLock
}

// LockTypes returns the declared locks, always in design, procurement, production order.
func (g *Gate) LockTypes() []LockType {
	locks := []LockType{}
	if g.AppliesDesignLock {
		locks = append(locks, LockDesign)
	}
	if g.AppliesProcurementLock {
		locks = append(locks, LockProcurement)
	}
	if g.AppliesProductionLock {
		locks = append(locks, LockProduction)
	}
	return locks
}
