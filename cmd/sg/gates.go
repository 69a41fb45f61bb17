package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alfredjeanlab/stagegate/internal/client"
	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status <project-id>",
	Short:   "Show gate status for a project's current stage",
	GroupID: "gates",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		report, err := gateClient.GateStatus(context.Background(), args[0], dryRun)
		if err != nil {
			return fmt.Errorf("getting gate status: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, report)
		}
		printReport(os.Stdout, report)
		return nil
	},
}

var blockersCmd = &cobra.Command{
	Use:     "blockers <project-id>",
	Short:   "List what blocks a project from advancing",
	GroupID: "gates",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gateClient.Blockers(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting blockers: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, resp)
		}
		printBlockers(os.Stdout, resp)
		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:     "evaluate <project-id> <gate-key>",
	Short:   "Evaluate one gate and record the result",
	GroupID: "gates",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		scheduled, _ := cmd.Flags().GetBool("scheduled")
		evalType := model.EvalManual
		if scheduled {
			evalType = model.EvalScheduled
		}
		resp, err := gateClient.Evaluate(context.Background(), &client.EvaluateRequest{
			ProjectID:      args[0],
			GateKey:        args[1],
			EvaluationType: evalType,
			EvaluatedBy:    actor,
			DryRun:         dryRun,
		})
		if err != nil {
			return fmt.Errorf("evaluating gate: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, resp)
		}
		printEvaluateResult(os.Stdout, resp)
		return nil
	},
}

var evaluationsCmd = &cobra.Command{
	Use:     "evaluations <project-id>",
	Short:   "Show the evaluation audit trail of a project",
	GroupID: "gates",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		gateID, _ := cmd.Flags().GetString("gate")
		evals, err := httpClient.ListEvaluations(context.Background(), &client.ListEvaluationsRequest{
			ProjectID: args[0],
			GateID:    gateID,
			Limit:     limit,
		})
		if err != nil {
			return fmt.Errorf("listing evaluations: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, evals)
		}
		printEvaluations(os.Stdout, evals)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("dry-run", false, "evaluate without recording evaluations")
	evaluateCmd.Flags().Bool("dry-run", false, "evaluate without recording an evaluation")
	evaluateCmd.Flags().Bool("scheduled", false, "record the evaluation as scheduled (for cron hosts)")
	evaluationsCmd.Flags().Int("limit", 20, "maximum number of evaluations")
	evaluationsCmd.Flags().String("gate", "", "only show evaluations of this gate ID")
}
