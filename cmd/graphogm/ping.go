package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphogm/internal/config"
	"github.com/rohankatakam/graphogm/internal/graph"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to Neo4j",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.ValidationContextDatabase).Err(); err != nil {
		return err
	}
	ctx := cmd.Context()

	start := time.Now()
	executor, err := graph.NewNeo4jExecutor(ctx, cfg.Neo4j.ClientConfig())
	if err != nil {
		return err
	}
	defer executor.Close(ctx)

	if err := executor.HealthCheck(ctx); err != nil {
		return err
	}
	fmt.Printf("Connected to %s (database %s) in %s\n", cfg.Neo4j.URI, executor.Database(), time.Since(start).Round(time.Millisecond))
	return nil
}
