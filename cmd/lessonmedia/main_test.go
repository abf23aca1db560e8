// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/resource"
	"github.com/ManuGH/lessonmedia/internal/usage"
	"github.com/ManuGH/lessonmedia/internal/version"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, mutate func(*config.AppConfig)) string {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.NewManager(path).Save(cfg))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := runCLI(t, "config", "init", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, err = runCLI(t, "config", "init", target)
	require.Error(t, err, "existing file is kept without --overwrite")
	_, err = runCLI(t, "config", "init", "--overwrite", target)
	require.NoError(t, err)

	out, err = runCLI(t, "--config", target, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, target)
}

func TestConfigValidate_ReportsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("delivery:\n  prefetchThresholdPercent: 150\n"), 0o600))

	out, err := runCLI(t, "config", "validate", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, out, "delivery.prefetchThresholdPercent")
}

func TestConfigDump_MasksSecrets(t *testing.T) {
	path := writeConfig(t, func(c *config.AppConfig) {
		c.Provider.Mode = config.ProviderModeHTTP
		c.Provider.BaseURL = "https://signer.example.com"
		c.Provider.Token = "s3cret"
	})

	out, err := runCLI(t, "-c", path, "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "https://signer.example.com")
	assert.NotContains(t, out, "s3cret")
}

func TestUsageCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	path := writeConfig(t, func(c *config.AppConfig) {
		c.Usage.Sink = config.UsageSinkSQLite
		c.Usage.Path = dbPath
	})

	ctx := context.Background()
	sink, err := usage.OpenSQLiteSink(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, []usage.Event{
		{Name: usage.EventPlay, Kind: resource.KindVideo, ResourceID: "v1", SessionID: "s1", At: time.Now()},
		{Name: usage.EventDownload, Kind: resource.KindDocument, ResourceID: "d1", At: time.Now()},
	}))
	require.NoError(t, sink.Close())

	out, err := runCLI(t, "-c", path, "usage", "recent", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "d1")

	out, err = runCLI(t, "-c", path, "usage", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestUsageCommands_RequireSQLiteSink(t *testing.T) {
	path := writeConfig(t, nil)
	_, err := runCLI(t, "-c", path, "usage", "recent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage sink")
}

func TestServe_StopsOnCancel(t *testing.T) {
	path := writeConfig(t, func(c *config.AppConfig) {
		c.API.ListenAddr = "127.0.0.1:0"
		c.Usage.Sink = config.UsageSinkNone
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, path) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknownField: true\n"), 0o600))
	err := runServe(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownConfigField)
}
