package gates

import (
	"fmt"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// Built-in custom check names.
const (
	CheckDepositReceived            = "deposit_received"
	CheckAllProductionTasksComplete = "all_production_tasks_complete"
	CheckNoBlockingDefects          = "no_blocking_defects"
	CheckAllCNCProgramsComplete     = "all_cnc_programs_complete"
	CheckAllCabinetsDimensioned     = "all_cabinets_dimensioned"
)

func registerBuiltins(c *Checker) {
	c.Register(CheckDepositReceived, depositReceived)
	c.Register(CheckAllProductionTasksComplete, allProductionTasksComplete)
	c.Register(CheckNoBlockingDefects, noBlockingDefects)
	c.Register(CheckAllCNCProgramsComplete, allCNCProgramsComplete)
	c.Register(CheckAllCabinetsDimensioned, allCabinetsDimensioned)
}

func depositReceived(subj Subject, _ *model.Requirement) CheckResult {
	return paymentReceived{kind: paymentDeposit}.evaluate(subj)
}

func allProductionTasksComplete(subj Subject, _ *model.Requirement) CheckResult {
	tasks, ok := subj.Relation(model.RelTasks)
	if !ok {
		return relationMissing(model.RelTasks)
	}
	var production []Fields
	for _, t := range tasks {
		if canonical(field(t, "task_type")) == "production" {
			production = append(production, t)
		}
	}
	if len(production) == 0 {
		return fail("No production tasks found", nil)
	}
	done := countMatching(production, func(t Fields) bool {
		return canonical(field(t, "state")) == model.TaskStateDone
	})
	details := map[string]any{"completed": done, "total": len(production)}
	if done == len(production) {
		return pass(fmt.Sprintf("All %d production tasks completed", done), details)
	}
	return fail(fmt.Sprintf("%d/%d production tasks completed", done, len(production)), details)
}

func noBlockingDefects(subj Subject, _ *model.Requirement) CheckResult {
	defects, ok := subj.Relation(model.RelDefects)
	if !ok {
		return relationMissing(model.RelDefects)
	}
	open := countMatching(defects, func(d Fields) bool {
		if !isTruthy(field(d, "blocking")) {
			return false
		}
		switch canonical(field(d, "state")) {
		case "resolved", "closed":
			return false
		}
		return true
	})
	details := map[string]any{"open_blocking": open}
	if open > 0 {
		return fail(fmt.Sprintf("%d blocking defects open", open), details)
	}
	return pass("No blocking defects", details)
}

func allCNCProgramsComplete(subj Subject, _ *model.Requirement) CheckResult {
	programs, ok := subj.Relation(model.RelCNCPrograms)
	if !ok {
		return relationMissing(model.RelCNCPrograms)
	}
	if len(programs) == 0 {
		return fail("No CNC programs found", nil)
	}
	done := countMatching(programs, func(p Fields) bool {
		return canonical(field(p, "state")) == "complete"
	})
	details := map[string]any{"completed": done, "total": len(programs)}
	if done == len(programs) {
		return pass(fmt.Sprintf("All %d CNC programs complete", done), details)
	}
	return fail(fmt.Sprintf("%d/%d CNC programs complete", done, len(programs)), details)
}

func allCabinetsDimensioned(subj Subject, _ *model.Requirement) CheckResult {
	cabinets, ok := subj.Relation(model.RelCabinets)
	if !ok {
		return relationMissing(model.RelCabinets)
	}
	if len(cabinets) == 0 {
		return fail("No cabinets found", nil)
	}
	dimensioned := countMatching(cabinets, func(c Fields) bool {
		for _, dim := range []string{"width", "height", "depth"} {
			if isEmpty(field(c, dim)) {
				return false
			}
		}
		return true
	})
	details := map[string]any{"dimensioned": dimensioned, "total": len(cabinets)}
	if dimensioned == len(cabinets) {
		return pass(fmt.Sprintf("All %d cabinets dimensioned", dimensioned), details)
	}
	return fail(fmt.Sprintf("%d/%d cabinets dimensioned", dimensioned, len(cabinets)), details)
}
