package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphogm/internal/config"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/hydrate"
	"github.com/rohankatakam/graphogm/internal/logging"
	"github.com/rohankatakam/graphogm/internal/mapper"
	"github.com/rohankatakam/graphogm/internal/metrics"
)

var (
	autoFetch   bool
	fetchModels []string
)

var findCmd = &cobra.Command{
	Use:   "find <model>",
	Short: "Find entities and print them as JSON",
	Long: `Find the entities of a model matching a filter and print them as JSON.

Examples:
  graphogm find Developer --filter '{"name": {"$startsWith": "J"}}' --options '{"order": [["age", "DESC"]], "limit": 5}'

  # Load declared relationship-properties of the matches
  graphogm find Developer --auto-fetch --fetch-model Coffee`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

var countCmd = &cobra.Command{
	Use:   "count <model>",
	Short: "Count entities matching a filter",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

var connectedCmd = &cobra.Command{
	Use:   "connected <model>",
	Short: "Find nodes reachable from the matches of a model",
	Long: `Find the nodes reachable from the matches of a model along a multi-hop
path. The filter must carry a $multiHop key.

Example:
  graphogm connected Person --filter '{"name": "Alice", "$multiHop": {"$maxHops": 3, "$relationships": [{"$type": "KNOWS"}]}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runConnected,
}

func init() {
	for _, cmd := range []*cobra.Command{findCmd, connectedCmd} {
		addQueryFlags(cmd)
		cmd.Flags().BoolVar(&autoFetch, "auto-fetch", false, "load declared relationship-properties")
		cmd.Flags().StringSliceVar(&fetchModels, "fetch-model", nil, "restrict auto-fetch to relationship-properties targeting these models")
	}
	countCmd.Flags().StringVarP(&filterJSON, "filter", "f", "", "filter document, JSON object")
}

// openMapper connects to Neo4j and builds a mapper over the loaded models.
// The returned func closes the driver.
func openMapper(ctx context.Context) (*mapper.Mapper, func(), error) {
	if err := cfg.Validate(config.ValidationContextDatabase).Err(); err != nil {
		return nil, nil, err
	}

	recorder := metrics.DefaultRegistry()
	executor, err := graph.NewNeo4jExecutor(ctx, cfg.Neo4j.ClientConfig(),
		graph.WithRecorder(recorder),
		graph.WithLogger(logging.Component("neo4j")),
	)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := executor.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to close Neo4j driver")
		}
	}

	m, err := mapper.New(reg, executor,
		mapper.WithConfig(mapper.Config{
			PlanCacheSize:        cfg.Query.PlanCacheSize,
			HydrationConcurrency: cfg.Hydration.MaxConcurrency,
			HydrationRateLimit:   cfg.Hydration.RateLimit,
			HydrationBurst:       cfg.Hydration.Burst,
		}),
		mapper.WithMetrics(recorder),
		mapper.WithLogger(logging.L()),
	)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return m, closeFn, nil
}

func findParams() (mapper.FindParams, error) {
	var params mapper.FindParams
	var err error
	if params.Filter, err = parseObject("filter", filterJSON); err != nil {
		return params, err
	}
	if params.Projection, err = parseObject("projection", projectionJSON); err != nil {
		return params, err
	}
	if params.Options, err = parseObject("options", optionsJSON); err != nil {
		return params, err
	}
	if autoFetch || len(fetchModels) > 0 {
		params.AutoFetch = &hydrate.AutoFetch{Models: fetchModels}
	}
	return params, nil
}

func runFind(cmd *cobra.Command, args []string) error {
	return runFindLike(cmd, args[0], (*mapper.Mapper).Find)
}

func runConnected(cmd *cobra.Command, args []string) error {
	return runFindLike(cmd, args[0], (*mapper.Mapper).FindConnected)
}

type findFunc func(m *mapper.Mapper, ctx context.Context, model string, params mapper.FindParams) (*mapper.Result, error)

func runFindLike(cmd *cobra.Command, model string, find findFunc) error {
	params, err := findParams()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	m, closeFn, err := openMapper(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := find(m, ctx, model, params)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"model":    model,
		"entities": len(result.Entities),
		"rows":     len(result.Rows),
	}).Debug("Find completed")
	return printJSON(result)
}

func runCount(cmd *cobra.Command, args []string) error {
	spec, err := parseObject("filter", filterJSON)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	m, closeFn, err := openMapper(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := m.Count(ctx, args[0], spec)
	if err != nil {
		return err
	}
	return printJSON(map[string]int64{"count": n})
}
