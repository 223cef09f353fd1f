package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dshills/ccguard/httpapi"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API over the workflow service and event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := httpapi.NewServer(current.service, current.bus)
			current.logger.Info("serving http api", "addr", addr)
			if err := http.ListenAndServe(addr, server); err != nil {
				return fmt.Errorf("serving http api: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
