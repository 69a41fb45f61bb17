// Package seed loads stage, gate and requirement definitions from TOML or
// YAML files and upserts them into a store.
package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

//go:embed defaults.toml
var defaultDefinitions []byte

// Format is a supported definition file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// File is a parsed definition file.
type File struct {
	Stages []StageDef `toml:"stage" yaml:"stages"`
}

// StageDef declares a stage and the gates bound to it.
type StageDef struct {
	Key      string    `toml:"key" yaml:"key"`
	Name     string    `toml:"name" yaml:"name"`
	Sequence int       `toml:"sequence" yaml:"sequence"`
	Gates    []GateDef `toml:"gate" yaml:"gates"`
}

// GateDef declares a gate. Blocking and Active default to true.
type GateDef struct {
	Key          string               `toml:"key" yaml:"key"`
	Name         string               `toml:"name" yaml:"name"`
	Description  string               `toml:"description" yaml:"description"`
	Sequence     int                  `toml:"sequence" yaml:"sequence"`
	Blocking     *bool                `toml:"blocking" yaml:"blocking"`
	Active       *bool                `toml:"active" yaml:"active"`
	Locks        []string             `toml:"locks" yaml:"locks"`
	Tasks        []model.TaskTemplate `toml:"task" yaml:"tasks"`
	Requirements []RequirementDef     `toml:"requirement" yaml:"requirements"`
}

// RequirementDef declares one requirement of a gate.
type RequirementDef struct {
	Type         string `toml:"type" yaml:"type"`
	Model        string `toml:"model" yaml:"model"`
	Field        string `toml:"field" yaml:"field"`
	Relation     string `toml:"relation" yaml:"relation"`
	Value        string `toml:"value" yaml:"value"`
	Operator     string `toml:"operator" yaml:"operator"`
	CustomCheck  string `toml:"custom_check" yaml:"custom_check"`
	ErrorMessage string `toml:"error_message" yaml:"error_message"`
	HelpText     string `toml:"help_text" yaml:"help_text"`
	ActionLabel  string `toml:"action_label" yaml:"action_label"`
	ActionRoute  string `toml:"action_route" yaml:"action_route"`
	Sequence     int    `toml:"sequence" yaml:"sequence"`
	Active       *bool  `toml:"active" yaml:"active"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("seed: unsupported file extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
}

// Parse decodes and validates a definition payload.
func Parse(data []byte, format Format) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("seed: definition payload is empty")
	}
	var f File
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("seed: decode toml: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("seed: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("seed: unknown format %q", format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and parses a definition file from disk.
func LoadFile(path string) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Default returns the built-in woodworking gate set.
func Default() (*File, error) {
	return Parse(defaultDefinitions, FormatTOML)
}

// Validate checks keys are present and unique and that every definition maps
// onto a valid model value.
func (f *File) Validate() error {
	if len(f.Stages) == 0 {
		return fmt.Errorf("seed: no stages defined")
	}
	stageKeys := make(map[string]bool)
	for i, sd := range f.Stages {
		if err := model.ValidateStage(sd.stage()); err != nil {
			return fmt.Errorf("seed: stage %d: %w", i+1, err)
		}
		if stageKeys[sd.Key] {
			return fmt.Errorf("seed: duplicate stage key %q", sd.Key)
		}
		stageKeys[sd.Key] = true

		gateKeys := make(map[string]bool)
		for _, gd := range sd.Gates {
			g, err := gd.gate("pending")
			if err != nil {
				return fmt.Errorf("seed: stage %s: %w", sd.Key, err)
			}
			if err := model.ValidateGate(g); err != nil {
				return fmt.Errorf("seed: stage %s gate %q: %w", sd.Key, gd.Key, err)
			}
			if gateKeys[gd.Key] {
				return fmt.Errorf("seed: stage %s: duplicate gate key %q", sd.Key, gd.Key)
			}
			gateKeys[gd.Key] = true

			for j, rd := range gd.Requirements {
				if err := model.ValidateRequirement(rd.requirement("pending")); err != nil {
					return fmt.Errorf("seed: gate %s requirement %d: %w", gd.Key, j+1, err)
				}
			}
		}
	}
	return nil
}

func (sd StageDef) stage() *model.Stage {
	return &model.Stage{StageKey: sd.Key, Name: sd.Name, Sequence: sd.Sequence}
}

func (gd GateDef) gate(stageID string) (*model.Gate, error) {
	g := &model.Gate{
		StageID:            stageID,
		GateKey:            gd.Key,
		Name:               gd.Name,
		Description:        gd.Description,
		Sequence:           gd.Sequence,
		IsBlocking:         boolOr(gd.Blocking, true),
		IsActive:           boolOr(gd.Active, true),
		CreatesTasksOnPass: len(gd.Tasks) > 0,
		TaskTemplates:      gd.Tasks,
	}
	for _, lock := range gd.Locks {
		switch model.LockType(strings.ToLower(lock)) {
		case model.LockDesign:
			g.AppliesDesignLock = true
		case model.LockProcurement:
			g.AppliesProcurementLock = true
		case model.LockProduction:
			g.AppliesProductionLock = true
		default:
			return nil, fmt.Errorf("gate %q: unknown lock %q", gd.Key, lock)
		}
	}
	return g, nil
}

func (rd RequirementDef) requirement(gateID string) *model.Requirement {
	return &model.Requirement{
		GateID:             gateID,
		RequirementType:    model.RequirementType(rd.Type),
		TargetModel:        rd.Model,
		TargetField:        rd.Field,
		TargetRelation:     rd.Relation,
		TargetValue:        rd.Value,
		ComparisonOperator: model.Operator(rd.Operator),
		CustomCheck:        rd.CustomCheck,
		ErrorMessage:       rd.ErrorMessage,
		HelpText:           rd.HelpText,
		ActionLabel:        rd.ActionLabel,
		ActionRoute:        rd.ActionRoute,
		Sequence:           rd.Sequence,
		IsActive:           boolOr(rd.Active, true),
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
