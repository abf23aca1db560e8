// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/daemon"
	"github.com/ManuGH/lessonmedia/internal/health"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/version"
)

func newServeCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the delivery API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath())
		},
	}
}

func runServe(ctx context.Context, path string) error {
	// Safe defaults until the config is loaded.
	log.Configure(log.Config{Level: "info", Service: "lessonmedia", Version: version.Version})
	logger := log.WithComponent("daemon")

	cfg, loader, err := loadConfig(path)
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "lessonmedia", Version: cfg.Version})

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("loaded configuration")

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return err
	}

	rt, err := daemon.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	mgr, err := daemon.NewManager(daemon.ServerConfigFrom(cfg), daemon.Deps{
		Logger:     logger,
		Config:     cfg,
		APIHandler: rt.API.Handler(),
	})
	if err != nil {
		return errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}
	rt.RegisterHooks(mgr)

	app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader), rt)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("lessonmedia stopped")
	return nil
}
