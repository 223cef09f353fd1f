package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ccguard/workflow"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, list, and complete tracked tasks",
	}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskCompleteCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var name, description, priority, parentID string
	var tags []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := current.service.CreateTask(workflow.CreateParams{
				Name:        name,
				Description: description,
				Priority:    workflow.Priority(priority),
				ParentID:    parentID,
				Tags:        tags,
			})
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}
			return printJSON(cmd, task)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "task name (required)")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", string(workflow.PriorityMedium), "priority: low|medium|high|critical")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent task id, for subtasks")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func taskListCmd() *cobra.Command {
	var status, tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := workflow.Filter{}
			if status != "" {
				filter.Status = workflow.Status(status)
			}
			if tag != "" {
				filter.Tag = tag
			}
			tasks := current.service.GetTasks(filter)
			return printJSON(cmd, tasks)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var actualTokens int64
	var hasActualTokens bool

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Attempt to complete a task, subject to its completion gates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokens *int64
			if hasActualTokens {
				tokens = &actualTokens
			}
			result, err := current.service.CompleteTask(args[0], tokens)
			if err != nil {
				return fmt.Errorf("completing task: %w", err)
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().Int64Var(&actualTokens, "actual-tokens", 0, "record the actual token cost of this task")
	cmd.Flags().BoolVar(&hasActualTokens, "record-tokens", false, "set to apply --actual-tokens")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
