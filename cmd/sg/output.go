package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/alfredjeanlab/stagegate/internal/client"
	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/seed"
	"github.com/alfredjeanlab/stagegate/internal/ui"
)

const progressWidth = 20

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func advanceLabel(canAdvance bool) string {
	if canAdvance {
		return ui.RenderPass("can advance")
	}
	return ui.RenderFail("blocked")
}

func printReport(w io.Writer, r *gates.StageReport) {
	fmt.Fprintf(w, "Project %s  stage %s  %s\n\n", ui.RenderAccent(r.SubjectID), r.StageID, advanceLabel(r.CanAdvance))
	if len(r.Gates) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No active gates."))
		return
	}
	for _, g := range r.Gates {
		fmt.Fprintf(w, "%s %-24s %s %5.1f%% (%d/%d)\n",
			ui.GateMark(g.Passed, g.IsBlocking),
			g.GateKey,
			ui.ProgressBar(g.Progress, progressWidth),
			g.Progress,
			g.RequirementsPassed,
			g.RequirementsTotal,
		)
		if !g.IsBlocking && !g.Passed {
			fmt.Fprintf(w, "    %s\n", ui.RenderMuted("non-blocking"))
		}
		for _, b := range g.Blockers {
			fmt.Fprintf(w, "    - %s\n", b)
		}
	}
}

func printBlockers(w io.Writer, resp *client.BlockersResponse) {
	if len(resp.Blockers) == 0 {
		fmt.Fprintf(w, "%s Project %s can advance from stage %s\n", ui.RenderPass("✓"), resp.ProjectID, resp.StageID)
		return
	}
	keys := make([]string, 0, len(resp.Blockers))
	for k := range resp.Blockers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fmt.Fprintf(w, "Project %s is blocked by %d gate(s):\n", ui.RenderAccent(resp.ProjectID), len(keys))
	for _, k := range keys {
		b := resp.Blockers[k]
		name := k
		if b.Gate != nil && b.Gate.Name != "" {
			name = fmt.Sprintf("%s (%s)", k, b.Gate.Name)
		}
		fmt.Fprintf(w, "\n%s %s\n", ui.RenderFail("✗"), name)
		for i, msg := range b.Blockers {
			fmt.Fprintf(w, "    - %s\n", msg)
			if i < len(b.FailureReasons) {
				if f := b.FailureReasons[i]; f.ActionLabel != "" {
					fmt.Fprintf(w, "      %s\n", ui.RenderMuted(fmt.Sprintf("→ %s %s", f.ActionLabel, f.ActionRoute)))
				}
			}
		}
	}
}

func printEvaluateResult(w io.Writer, resp *client.EvaluateResponse) {
	verdict := ui.RenderFail("failed")
	if resp.Passed {
		verdict = ui.RenderPass("passed")
	}
	fmt.Fprintf(w, "%s %s %s (%d/%d requirements)\n",
		ui.GateMark(resp.Passed, resp.IsBlocking), resp.GateKey, verdict,
		resp.RequirementsPassed, resp.RequirementsTotal)
	for _, b := range resp.Blockers {
		fmt.Fprintf(w, "    - %s\n", b)
	}
	switch {
	case resp.DryRun:
		fmt.Fprintln(w, ui.RenderMuted("dry run; nothing recorded"))
	case resp.EvaluationID != "":
		fmt.Fprintf(w, "Recorded evaluation %s\n", resp.EvaluationID)
	}
}

func printEvaluations(w io.Writer, evals []*model.Evaluation) {
	if len(evals) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No evaluations recorded."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGATE\tRESULT\tTYPE\tBY\tEVALUATED AT")
	for _, e := range evals {
		result := "fail"
		if e.Passed {
			result = "pass"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.GateKey,
			result,
			e.EvaluationType,
			e.EvaluatedBy,
			e.EvaluatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush()
}

func printSeedSummary(w io.Writer, sum *seed.Summary) {
	fmt.Fprintf(w, "Stages created:       %d\n", sum.StagesCreated)
	fmt.Fprintf(w, "Gates created:        %d\n", sum.GatesCreated)
	fmt.Fprintf(w, "Gates updated:        %d\n", sum.GatesUpdated)
	fmt.Fprintf(w, "Requirements created: %d\n", sum.RequirementsCreated)
	fmt.Fprintf(w, "Requirements updated: %d\n", sum.RequirementsUpdated)
}
