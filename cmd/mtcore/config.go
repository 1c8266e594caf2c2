package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	am "github.com/teranos/mtcore/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and validate mtcore's bootstrap configuration",
	Long: `config — manage mtcore's bootstrap configuration.

Configuration sources (in order of precedence):
1. Environment variables (MTCORE_* prefix)
2. Project config (./mtcore.toml or ./config.toml)
3. User config (~/.mtcore/mtcore.toml or ~/.mtcore/config.toml)
4. System config (/etc/mtcore/config.toml)
5. Default values`,
}

var configFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	RunE:  runConfigValidate,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "output format: toml, json, yaml")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to json: %w", err)
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to yaml: %w", err)
		}
		fmt.Printf("# mtcore configuration\n%s", string(data))
	default:
		fmt.Println(cfg.String())
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Println("configuration is valid")
	return nil
}
