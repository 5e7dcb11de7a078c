package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/juristech/process-extract/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml with the built-in defaults",
	Long:  "Materializes the default configuration in the current directory so it can be edited. Values are overridable via EXTRACT_* environment variables either way.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeDefaultConfig("config.yaml", configInitForce); err != nil {
			return err
		}
		fmt.Println("wrote config.yaml")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// writeDefaultConfig materializes the built-in defaults at path. An existing
// file is only replaced when force is set.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return eris.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	defaults, err := config.Default()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return eris.Wrap(err, "marshal config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "write config")
	}
	return nil
}
