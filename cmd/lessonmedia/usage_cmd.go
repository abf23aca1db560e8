// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/persistence/sqlite"
	"github.com/ManuGH/lessonmedia/internal/usage"
)

func newUsageCommand(configPath func() string) *cobra.Command {
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect the SQLite usage event log",
	}
	usageCmd.AddCommand(newUsageRecentCommand(configPath))
	usageCmd.AddCommand(newUsageVerifyCommand(configPath))
	return usageCmd
}

// usageDBPath returns the configured SQLite usage path.
func usageDBPath(configPath func() string) (string, error) {
	cfg, _, err := loadConfig(configPath())
	if err != nil {
		return "", err
	}
	if cfg.Usage.Sink != config.UsageSinkSQLite {
		return "", fmt.Errorf("usage sink is %q, not %q", cfg.Usage.Sink, config.UsageSinkSQLite)
	}
	return cfg.Usage.Path, nil
}

func newUsageRecentCommand(configPath func() string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest usage events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := usageDBPath(configPath)
			if err != nil {
				return err
			}
			sink, err := usage.OpenSQLiteSink(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()

			events, err := sink.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tEVENT\tKIND\tRESOURCE\tSESSION")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.Name, e.Kind, e.ResourceID, e.SessionID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	return cmd
}

func newUsageVerifyCommand(configPath func() string) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run an integrity check on the usage database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := usageDBPath(configPath)
			if err != nil {
				return err
			}
			issues, err := sqlite.VerifyFile(cmd.Context(), path, full)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				return fmt.Errorf("integrity check failed:\n  %s", strings.Join(issues, "\n  "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Run integrity_check instead of quick_check")
	return cmd
}
