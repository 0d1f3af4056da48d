package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/adm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the adm configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			cfg = config.Default()
		}
		applyFlags(cmd, cfg)
		if err := config.SaveTo(cfg, cfgFile); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration written")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
