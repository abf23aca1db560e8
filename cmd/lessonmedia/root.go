// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/version"
)

const configEnvKey = config.EnvPrefix + "CONFIG"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "lessonmedia",
		Short:         "Media descriptor cache and delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML)")

	configPath := func() string {
		if p := strings.TrimSpace(configFlag); p != "" {
			return p
		}
		return strings.TrimSpace(config.ParseString(configEnvKey, ""))
	}

	rootCmd.AddCommand(newServeCommand(configPath))
	rootCmd.AddCommand(newConfigCommand(configPath))
	rootCmd.AddCommand(newUsageCommand(configPath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// loadConfig resolves defaults, the optional file, and environment overrides.
func loadConfig(path string) (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	return cfg, loader, err
}
