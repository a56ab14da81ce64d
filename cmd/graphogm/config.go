package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/graphogm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect graphogm configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration required to reach Neo4j",
	RunE:  runConfigValidate,
}

var configModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Print the loaded model declarations",
	RunE:  runConfigModels,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configModelsCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := cfg.Redacted().Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	result := cfg.Validate(config.ValidationContextDatabase)
	if result.HasErrors() {
		return result.Err()
	}
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigModels(cmd *cobra.Command, args []string) error {
	if reg.Empty() {
		fmt.Println("No models declared")
		return nil
	}
	data, err := reg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
