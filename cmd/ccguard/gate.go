package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func gateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect and evaluate completion gates",
	}
	cmd.AddCommand(gateCheckCmd())
	return cmd
}

func gateCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <task-id>",
		Short: "Evaluate the completion gates for a task against the current evidence state, without completing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]

			if _, ok := current.service.GetTask(taskID); !ok {
				return fmt.Errorf("gate check: task %q not found", taskID)
			}

			result, err := current.service.EvaluateGate(taskID)
			if err != nil {
				return fmt.Errorf("evaluating gates: %w", err)
			}
			return printJSON(cmd, result)
		},
	}
	return cmd
}
