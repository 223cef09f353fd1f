package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/ccguard/config"
	"github.com/dshills/ccguard/eventbus"
	"github.com/dshills/ccguard/gates"
	"github.com/dshills/ccguard/logging"
	"github.com/dshills/ccguard/store/sqlitestate"
	"github.com/dshills/ccguard/workflow"
)

// app bundles the collaborators every subcommand needs, built once in
// PersistentPreRunE and stored in the package-level current variable.
type app struct {
	cfg     config.Config
	bus     *eventbus.Bus
	gates   *gates.Engine
	service *workflow.Service
	logger  *slog.Logger
}

var (
	configPath string
	tasksDir   string
	jsonLogs   bool
	stateDB    string
	current    *app
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccguard",
		Short: "Task workflow tracker with evidence-based completion gates",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := buildApp()
			if err != nil {
				return err
			}
			current = built
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml or env-style)")
	cmd.PersistentFlags().StringVar(&tasksDir, "tasks-dir", "./tasks", "directory storing one JSON file per task")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured logs as JSON instead of text")
	cmd.PersistentFlags().StringVar(&stateDB, "state-db", "", "path to a SQLite evidence database (guard/test evidence state manager); empty bypasses gates")

	cmd.AddCommand(taskCmd())
	cmd.AddCommand(workflowCmd())
	cmd.AddCommand(gateCmd())
	cmd.AddCommand(serveCmd())

	return cmd
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(logging.Options{JSON: jsonLogs, Level: 0})
	bus := eventbus.New()
	logging.AttachBus(bus, logger)

	policy := gates.GatePolicy{
		RequireGuard:           cfg.Gates.RequireGuard,
		RequireTest:            cfg.Gates.RequireTest,
		FreshnessWindowMs:      cfg.Gates.FreshnessWindowMs,
		RequireGuardBeforeTest: cfg.Gates.RequireGuardBeforeTest,
		BlockOnFail:            cfg.Gates.BlockOnFail,
	}
	engine := gates.NewEngine(policy)

	workflowCfg := workflow.Config{
		Enabled:                cfg.Workflow.Enabled,
		AutoCleanupEnabled:     cfg.Workflow.AutoCleanupEnabled,
		CompletedRetentionDays: cfg.Workflow.CompletedRetentionDays,
		MaxCompletedTasks:      cfg.Workflow.MaxCompletedTasks,
		GatesEnabled:           cfg.Workflow.GatesEnabled,
	}

	var stateMgr workflow.StateManager
	if stateDB != "" {
		store, err := sqlitestate.Open(stateDB)
		if err != nil {
			return nil, fmt.Errorf("opening state db: %w", err)
		}
		stateMgr = store
	}

	svc, err := workflow.NewService(tasksDir, bus, engine, stateMgr, workflowCfg)
	if err != nil {
		return nil, fmt.Errorf("starting workflow service: %w", err)
	}

	return &app{cfg: cfg, bus: bus, gates: engine, service: svc, logger: logger}, nil
}
