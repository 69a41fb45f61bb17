package gates

import (
	"math"

	"github.com/alfredjeanlab/stagegate/internal/model"
)

// Result is the outcome of evaluating one gate.
type Result struct {
	Gate               *model.Gate                        `json:"gate"`
	Passed             bool                               `json:"passed"`
	RequirementResults map[string]model.RequirementResult `json:"requirement_results"`
	FailureReasons     []model.FailureReason              `json:"failure_reasons"`

	// Evaluation is the audit record written for this result; nil for dry runs.
	Evaluation *model.Evaluation `json:"evaluation,omitempty"`
}

// TotalCount returns the number of requirements that were checked.
func (r *Result) TotalCount() int { return len(r.RequirementResults) }

// FailedCount returns the number of failed requirements.
func (r *Result) FailedCount() int { return len(r.FailureReasons) }

// PassedCount returns the number of passed requirements.
func (r *Result) PassedCount() int {
	n := 0
	for _, rr := range r.RequirementResults {
		if rr.Passed {
			n++
		}
	}
	return n
}

// ProgressPercentage returns passed/total as a percentage rounded to one
// decimal place. A gate with no requirements is 100% complete.
func (r *Result) ProgressPercentage() float64 {
	total := r.TotalCount()
	if total == 0 {
		return 100
	}
	return math.Round(float64(r.PassedCount())*1000/float64(total)) / 10
}

// BlockerMessages returns one human-facing message per failed requirement.
func (r *Result) BlockerMessages() []string {
	msgs := make([]string, len(r.FailureReasons))
	for i, f := range r.FailureReasons {
		msgs[i] = f.Message()
	}
	return msgs
}

// Blocker describes a blocking gate that did not pass.
type Blocker struct {
	Gate           *model.Gate           `json:"gate"`
	Blockers       []string              `json:"blockers"`
	FailureReasons []model.FailureReason `json:"failure_reasons"`
}

// GateStatus summarizes one gate for status displays.
type GateStatus struct {
	GateID             string                `json:"gate_id"`
	GateKey            string                `json:"gate_key"`
	Name               string                `json:"name"`
	Passed             bool                  `json:"passed"`
	IsBlocking         bool                  `json:"is_blocking"`
	LockTypes          []model.LockType      `json:"lock_types"`
	RequirementsTotal  int                   `json:"requirements_total"`
	RequirementsPassed int                   `json:"requirements_passed"`
	Progress           float64               `json:"progress"`
	Blockers           []string              `json:"blockers"`
	FailureReasons     []model.FailureReason `json:"failure_reasons"`
	EvaluationID       string                `json:"evaluation_id,omitempty"`
}

// Status converts the result to a GateStatus.
func (r *Result) Status() *GateStatus {
	s := &GateStatus{
		GateID:             r.Gate.ID,
		GateKey:            r.Gate.GateKey,
		Name:               r.Gate.Name,
		Passed:             r.Passed,
		IsBlocking:         r.Gate.IsBlocking,
		LockTypes:          r.Gate.LockTypes(),
		RequirementsTotal:  r.TotalCount(),
		RequirementsPassed: r.PassedCount(),
		Progress:           r.ProgressPercentage(),
		Blockers:           r.BlockerMessages(),
		FailureReasons:     r.FailureReasons,
	}
	if r.Evaluation != nil {
		s.EvaluationID = r.Evaluation.ID
	}
	return s
}

// StageReport is the combined status of every active gate of a stage.
type StageReport struct {
	SubjectID  string        `json:"project_id"`
	StageID    string        `json:"stage_id"`
	CanAdvance bool          `json:"can_advance"`
	Gates      []*GateStatus `json:"gates"`
}
