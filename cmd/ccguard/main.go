// Command ccguard is the CLI entrypoint wiring config, logging, telemetry,
// the Workflow Service, the DAG Workflow Executor, and the completion-gate
// engine into a single process.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
