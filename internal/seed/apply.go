package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/stagegate/internal/idgen"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/store"
)

// Summary counts what Apply changed.
type Summary struct {
	StagesCreated       int `json:"stages_created"`
	GatesCreated        int `json:"gates_created"`
	GatesUpdated        int `json:"gates_updated"`
	RequirementsCreated int `json:"requirements_created"`
	RequirementsUpdated int `json:"requirements_updated"`
}

// Apply upserts every definition in f inside one transaction.
//
// Stages are matched by stage_key and gates by gate_key within their stage.
// Requirements are matched by error message within their gate, falling back
// to type and sequence when no message is set. Existing rows not named in f
// are left alone, so applying the same file twice changes nothing.
func Apply(ctx context.Context, s store.Store, f *File) (*Summary, error) {
	var sum Summary
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		sum = Summary{}
		for _, sd := range f.Stages {
			stage, err := upsertStage(ctx, tx, sd, &sum)
			if err != nil {
				return err
			}
			for _, gd := range sd.Gates {
				gate, err := upsertGate(ctx, tx, stage.ID, gd, &sum)
				if err != nil {
					return err
				}
				if err := upsertRequirements(ctx, tx, gate.ID, gd.Requirements, &sum); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func upsertStage(ctx context.Context, tx store.Store, sd StageDef, sum *Summary) (*model.Stage, error) {
	stage, err := tx.GetStageByKey(ctx, sd.Key)
	if err == nil {
		return stage, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get stage %s: %w", sd.Key, err)
	}
	stage = sd.stage()
	if stage.ID, err = idgen.New(idgen.PrefixStage); err != nil {
		return nil, err
	}
	if err := tx.CreateStage(ctx, stage); err != nil {
		return nil, fmt.Errorf("create stage %s: %w", sd.Key, err)
	}
	sum.StagesCreated++
	return stage, nil
}

func upsertGate(ctx context.Context, tx store.Store, stageID string, gd GateDef, sum *Summary) (*model.Gate, error) {
	want, err := gd.gate(stageID)
	if err != nil {
		return nil, err
	}
	existing, err := tx.GetGateByKey(ctx, stageID, gd.Key)
	switch {
	case err == nil:
		want.ID = existing.ID
		if err := tx.UpdateGate(ctx, want); err != nil {
			return nil, fmt.Errorf("update gate %s: %w", gd.Key, err)
		}
		sum.GatesUpdated++
		return want, nil
	case errors.Is(err, store.ErrNotFound):
		if want.ID, err = idgen.New(idgen.PrefixGate); err != nil {
			return nil, err
		}
		if err := tx.CreateGate(ctx, want); err != nil {
			return nil, fmt.Errorf("create gate %s: %w", gd.Key, err)
		}
		sum.GatesCreated++
		return want, nil
	default:
		return nil, fmt.Errorf("get gate %s: %w", gd.Key, err)
	}
}

func upsertRequirements(ctx context.Context, tx store.Store, gateID string, defs []RequirementDef, sum *Summary) error {
	existing, err := tx.ListRequirements(ctx, gateID, false)
	if err != nil {
		return fmt.Errorf("list requirements for %s: %w", gateID, err)
	}
	for _, rd := range defs {
		want := rd.requirement(gateID)
		if match := findRequirement(existing, want); match != nil {
			want.ID = match.ID
			if err := tx.UpdateRequirement(ctx, want); err != nil {
				return fmt.Errorf("update requirement %s: %w", match.ID, err)
			}
			sum.RequirementsUpdated++
			continue
		}
		if want.ID, err = idgen.New(idgen.PrefixRequirement); err != nil {
			return err
		}
		if err := tx.CreateRequirement(ctx, want); err != nil {
			return fmt.Errorf("create requirement for %s: %w", gateID, err)
		}
		existing = append(existing, want)
		sum.RequirementsCreated++
	}
	return nil
}

func findRequirement(existing []*model.Requirement, want *model.Requirement) *model.Requirement {
	for _, r := range existing {
		if want.ErrorMessage != "" {
			if r.ErrorMessage == want.ErrorMessage {
				return r
			}
			continue
		}
		if r.ErrorMessage == "" && r.RequirementType == want.RequirementType && r.Sequence == want.Sequence {
			return r
		}
	}
	return nil
}
