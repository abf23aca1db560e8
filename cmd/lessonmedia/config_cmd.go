// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/validate"
)

const defaultConfigFile = "config.yaml"

func newConfigCommand(configPath func() string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(configPath))
	configCmd.AddCommand(newConfigDumpCommand(configPath))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigFile
			if len(args) == 1 {
				target = args[0]
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.NewManager(target).Save(config.Defaults()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate configuration file and environment overrides",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if len(args) == 1 {
				path = args[0]
			}
			out := cmd.OutOrStdout()
			if _, _, err := loadConfig(path); err != nil {
				var verr validate.ValidationError
				if errors.As(err, &verr) {
					for _, e := range verr.Errors() {
						fmt.Fprintf(out, "  %s: %s\n", e.Field, e.Message)
					}
				}
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if path == "" {
				fmt.Fprintln(out, "No config file given; defaults and environment were used")
			} else {
				fmt.Fprintf(out, "Config path: %s\n", path)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigDumpCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			cfg.Provider.Token = maskSecret(cfg.Provider.Token)
			cfg.Store.RedisPassword = maskSecret(cfg.Store.RedisPassword)
			b, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
