package gates

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/idgen"
	"github.com/alfredjeanlab/stagegate/internal/model"
)

// Store is the persistence the evaluator needs.
type Store interface {
	ListGates(ctx context.Context, filter model.GateFilter) ([]*model.Gate, error)
	ListRequirements(ctx context.Context, gateID string, activeOnly bool) ([]*model.Requirement, error)
	RecordEvaluation(ctx context.Context, ev *model.Evaluation) error
}

type actorKey struct{}

// WithActor returns a context that attributes evaluations to actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor set by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// Evaluator runs gates against subjects and records the outcome.
type Evaluator struct {
	store     Store
	checker   *Checker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEvaluator creates an evaluator. A nil publisher disables events and a nil
// logger uses slog.Default.
func NewEvaluator(s Store, checker *Checker, p events.Publisher, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = NewChecker(logger)
	}
	if p == nil {
		p = &events.NoopPublisher{}
	}
	return &Evaluator{
		store:     s,
		checker:   checker,
		publisher: p,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate checks every active requirement of gate against subj, writes one
// evaluation record and returns the result. The record is written even when
// the gate fails. A store failure is returned as an error; requirement
// failures never are.
func (e *Evaluator) Evaluate(ctx context.Context, subj Subject, gate *model.Gate, evalType model.EvaluationType) (*Result, error) {
	res, err := e.run(ctx, subj, gate)
	if err != nil {
		return nil, err
	}
	if !evalType.IsValid() {
		evalType = model.EvalManual
	}

	id, err := idgen.New(idgen.PrefixEvaluation)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	ev := &model.Evaluation{
		ID:                 id,
		ProjectID:          subj.SubjectID(),
		GateID:             gate.ID,
		GateKey:            gate.GateKey,
		Passed:             res.Passed,
		EvaluationType:     evalType,
		EvaluatedBy:        ActorFrom(ctx),
		RequirementResults: res.RequirementResults,
		FailureReasons:     res.FailureReasons,
		Context:            snapshot(subj, now),
		EvaluatedAt:        now,
	}
	if err := e.store.RecordEvaluation(ctx, ev); err != nil {
		return nil, fmt.Errorf("recording evaluation for gate %s: %w", gate.GateKey, err)
	}
	res.Evaluation = ev
	e.publish(ctx, gate, ev)
	return res, nil
}

// DryEvaluate computes the same result as Evaluate without writing an
// evaluation record or publishing events.
func (e *Evaluator) DryEvaluate(ctx context.Context, subj Subject, gate *model.Gate) (*Result, error) {
	return e.run(ctx, subj, gate)
}

func (e *Evaluator) run(ctx context.Context, subj Subject, gate *model.Gate) (*Result, error) {
	res := &Result{
		Gate:               gate,
		Passed:             true,
		RequirementResults: make(map[string]model.RequirementResult),
		FailureReasons:     []model.FailureReason{},
	}
	// An inactive gate checks nothing, whatever state its requirements are in.
	if !gate.IsActive {
		return res, nil
	}

	reqs, err := e.store.ListRequirements(ctx, gate.ID, true)
	if err != nil {
		return nil, fmt.Errorf("listing requirements for gate %s: %w", gate.GateKey, err)
	}
	slices.SortStableFunc(reqs, func(a, b *model.Requirement) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.ID, b.ID))
	})

	for _, req := range reqs {
		if !req.IsActive || req.GateID != gate.ID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cr := e.checker.Check(subj, req)
		res.RequirementResults[req.ID] = model.RequirementResult{
			Passed:  cr.Passed,
			Message: cr.Message,
			Details: cr.Details,
		}
		if cr.Passed {
			continue
		}
		res.Passed = false
		res.FailureReasons = append(res.FailureReasons, model.FailureReason{
			RequirementID:   req.ID,
			RequirementType: req.RequirementType,
			ErrorMessage:    req.ErrorMessage,
			HelpText:        req.HelpText,
			ActionLabel:     req.ActionLabel,
			ActionRoute:     req.ActionRoute,
			Details:         cr.Message,
		})
	}
	return res, nil
}

// publish emits the evaluation events. Failures are logged, not returned:
// the evaluation is already recorded.
func (e *Evaluator) publish(ctx context.Context, gate *model.Gate, ev *model.Evaluation) {
	if err := e.publisher.Publish(ctx, events.TopicEvaluationRecorded, events.EvaluationRecorded{Evaluation: ev}); err != nil {
		e.logger.Warn("failed to publish event", "topic", events.TopicEvaluationRecorded, "err", err)
	}
	outcome := events.GateOutcome{
		ProjectID:    ev.ProjectID,
		GateID:       gate.ID,
		GateKey:      gate.GateKey,
		EvaluationID: ev.ID,
		Passed:       ev.Passed,
		IsBlocking:   gate.IsBlocking,
		LockTypes:    gate.LockTypes(),
	}
	topic := events.TopicGateFailed
	if ev.Passed {
		topic = events.TopicGatePassed
		if gate.CreatesTasksOnPass {
			outcome.TaskTemplates = gate.TaskTemplates
		}
	}
	if err := e.publisher.Publish(ctx, topic, outcome); err != nil {
		e.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}

// StageGates returns the active gates of stageID in sequence order. Gates of
// any other stage are never returned.
func (e *Evaluator) StageGates(ctx context.Context, stageID string, blockingOnly bool) ([]*model.Gate, error) {
	all, err := e.store.ListGates(ctx, model.GateFilter{StageID: stageID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing gates for stage %s: %w", stageID, err)
	}
	out := make([]*model.Gate, 0, len(all))
	for _, g := range all {
		if g.StageID != stageID || !g.IsActive {
			continue
		}
		if blockingOnly && !g.IsBlocking {
			continue
		}
		out = append(out, g)
	}
	slices.SortStableFunc(out, func(a, b *model.Gate) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.GateKey, b.GateKey))
	})
	return out, nil
}

// EvaluateStage evaluates every active gate of stageID.
func (e *Evaluator) EvaluateStage(ctx context.Context, subj Subject, stageID string, evalType model.EvaluationType) ([]*Result, error) {
	return e.evaluateGates(ctx, subj, stageID, false, evalType)
}

// evaluateGates evaluates the selected gates of stageID in order. An empty
// evalType runs them dry.
func (e *Evaluator) evaluateGates(ctx context.Context, subj Subject, stageID string, blockingOnly bool, evalType model.EvaluationType) ([]*Result, error) {
	gates, err := e.StageGates(ctx, stageID, blockingOnly)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(gates))
	for _, g := range gates {
		var res *Result
		if evalType == "" {
			res, err = e.DryEvaluate(ctx, subj, g)
		} else {
			res, err = e.Evaluate(ctx, subj, g, evalType)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// CanAdvance reports whether every active blocking gate of stageID passes.
// A stage without blocking gates can always be advanced.
func (e *Evaluator) CanAdvance(ctx context.Context, subj Subject, stageID string) (bool, error) {
	results, err := e.evaluateGates(ctx, subj, stageID, true, model.EvalAutomatic)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if !r.Passed {
			return false, nil
		}
	}
	return true, nil
}

// Blockers returns the failing blocking gates of stageID keyed by gate key.
func (e *Evaluator) Blockers(ctx context.Context, subj Subject, stageID string) (map[string]*Blocker, error) {
	results, err := e.evaluateGates(ctx, subj, stageID, true, model.EvalAutomatic)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Blocker)
	for _, r := range results {
		if r.Passed {
			continue
		}
		out[r.Gate.GateKey] = &Blocker{
			Gate:           r.Gate,
			Blockers:       r.BlockerMessages(),
			FailureReasons: r.FailureReasons,
		}
	}
	return out, nil
}

// GateStatus evaluates every active gate of stageID and summarizes each.
func (e *Evaluator) GateStatus(ctx context.Context, subj Subject, stageID string) ([]*GateStatus, error) {
	report, err := e.Report(ctx, subj, stageID)
	if err != nil {
		return nil, err
	}
	return report.Gates, nil
}

// Report evaluates every active gate of stageID once and derives both the
// per-gate status and whether the subject can advance.
func (e *Evaluator) Report(ctx context.Context, subj Subject, stageID string) (*StageReport, error) {
	results, err := e.evaluateGates(ctx, subj, stageID, false, model.EvalAutomatic)
	if err != nil {
		return nil, err
	}
	return newStageReport(subj, stageID, results), nil
}

// DryReport is Report without evaluation records or events.
func (e *Evaluator) DryReport(ctx context.Context, subj Subject, stageID string) (*StageReport, error) {
	results, err := e.evaluateGates(ctx, subj, stageID, false, "")
	if err != nil {
		return nil, err
	}
	return newStageReport(subj, stageID, results), nil
}

func newStageReport(subj Subject, stageID string, results []*Result) *StageReport {
	report := &StageReport{
		SubjectID:  subj.SubjectID(),
		StageID:    stageID,
		CanAdvance: true,
		Gates:      make([]*GateStatus, 0, len(results)),
	}
	for _, r := range results {
		if r.Gate.IsBlocking && !r.Passed {
			report.CanAdvance = false
		}
		report.Gates = append(report.Gates, r.Status())
	}
	return report
}

// EvaluateCurrentStage evaluates every gate of the subject's current stage,
// keyed by gate key.
func (e *Evaluator) EvaluateCurrentStage(ctx context.Context, subj Subject, evalType model.EvaluationType) (map[string]*Result, error) {
	stageID := subj.CurrentStage()
	if stageID == "" {
		return map[string]*Result{}, nil
	}
	results, err := e.EvaluateStage(ctx, subj, stageID, evalType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Result, len(results))
	for _, r := range results {
		out[r.Gate.GateKey] = r
	}
	return out, nil
}

// snapshot captures the audit context of subj at evaluation time.
func snapshot(subj Subject, now time.Time) map[string]any {
	ctx := map[string]any{}
	if s, ok := subj.(Snapshotter); ok {
		maps.Copy(ctx, s.Snapshot())
	} else {
		ctx["subject_id"] = subj.SubjectID()
		ctx["stage_id"] = subj.CurrentStage()
	}
	ctx["snapshot_at"] = now.Format(time.RFC3339Nano)
	return ctx
}
