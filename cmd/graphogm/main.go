package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphogm/internal/config"
	"github.com/rohankatakam/graphogm/internal/logging"
	"github.com/rohankatakam/graphogm/internal/registry"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile    string
	modelsFile string
	verbose    bool
	logger     logrus.FieldLogger
	cfg        *config.Config
	reg        *registry.Registry
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphogm",
	Short: "graphogm - filter compiler and object-graph mapper for Neo4j",
	Long: `graphogm compiles declarative filter documents into parameterized Cypher,
runs them against Neo4j and prints the hydrated entities as JSON.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logrus.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging); err != nil {
			return err
		}
		logger = logging.Component("cli")

		if modelsFile != "" {
			cfg.ModelsFile = modelsFile
		}
		if cfg.ModelsFile == "" {
			logger.Debug("No model declarations, running unregistered")
			return nil
		}
		reg, err = registry.LoadFile(cfg.ModelsFile)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"file":   cfg.ModelsFile,
			"models": len(reg.Names()),
		}).Debug("Model declarations loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./graphogm.yaml or ~/.graphogm/graphogm.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelsFile, "models", "", "model declarations file (overrides models_file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`graphogm {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(connectedCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(configCmd)
}
