package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/query"
)

var (
	filterJSON     string
	projectionJSON string
	optionsJSON    string
	valuesJSON     string
	compileOp      string
)

var compileCmd = &cobra.Command{
	Use:   "compile <model>",
	Short: "Compile a filter into Cypher without touching the database",
	Long: `Compile a filter document into the Cypher statement and parameters the
mapper would run. Without model declarations, <model> is a colon-separated
label list.

Examples:
  # Age range with a negated relationship pattern
  graphogm compile Developer --filter '{"age": {"$gte": 21}, "$patterns": [{"$exists": false, "$node": {"$labels": ["Coffee"]}}]}'

  # Two to three hops away, first ten names only
  graphogm compile Person --op connected --filter '{"$multiHop": {"$minHops": 2, "$maxHops": 3}}' \
    --projection '{"name": "name"}' --options '{"limit": 10}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compileOp, "op", "find", "operation: find, count, update, delete or connected")
	compileCmd.Flags().StringVar(&valuesJSON, "values", "", "property values to set, JSON object (update only)")
	addQueryFlags(compileCmd)
}

// addQueryFlags registers the filter, projection and options flags
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&filterJSON, "filter", "f", "", "filter document, JSON object")
	cmd.Flags().StringVarP(&projectionJSON, "projection", "p", "", "projection alias -> property, JSON object")
	cmd.Flags().StringVarP(&optionsJSON, "options", "o", "", "order/skip/limit options, JSON object")
}

type compiled struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(args[0])
	if err != nil {
		return err
	}
	req := query.Request{Target: target}
	if req.Filter, err = parseObject("filter", filterJSON); err != nil {
		return err
	}
	if req.Projection, err = parseObject("projection", projectionJSON); err != nil {
		return err
	}
	if req.Options, err = parseObject("options", optionsJSON); err != nil {
		return err
	}
	if req.Values, err = parseObject("values", valuesJSON); err != nil {
		return err
	}

	assembler := query.NewAssembler()
	var cs *query.ClauseSet
	switch strings.ToLower(compileOp) {
	case "find":
		cs, err = assembler.Find(req)
	case "count":
		cs, err = assembler.Count(req)
	case "update":
		cs, err = assembler.Update(req)
	case "delete":
		cs, err = assembler.Delete(req)
	case "connected":
		cs, err = assembler.Connected(req)
	default:
		return fmt.Errorf("unknown operation %q", compileOp)
	}
	if err != nil {
		return err
	}

	logger.WithField("operation", cs.Operation).Debug("Statement compiled")
	return printJSON(compiled{Query: cs.Query(), Params: cs.Params})
}

// resolveTarget maps a registered model name to its target. Without model
// declarations the argument is read as labels.
func resolveTarget(model string) (query.Target, error) {
	if reg.Empty() {
		return query.NodeTarget(strings.Split(model, ":")...), nil
	}
	d, ok := reg.Get(model)
	if !ok {
		return query.Target{}, errors.UnregisteredEntityf("model %s is not registered", model)
	}
	return query.TargetFor(d), nil
}

// parseObject decodes a JSON object flag; empty yields nil
func parseObject(flag, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
