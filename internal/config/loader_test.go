// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonmedia/internal/validate"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v1.2.3"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logLevel: debug
delivery:
  prefetchThresholdPercent: 80
  expiryLeadTimeMs: 300000
  refreshIntervalMs: 30000
  visibilityThreshold: 0
  maxEntries: 500
provider:
  mode: http
  baseUrl: https://media.example.com/api
  timeout: 5s
store:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
usage:
  sink: sqlite
  path: /var/lib/lessonmedia/usage.db
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 80.0, cfg.Delivery.PrefetchThresholdPercent)
	assert.Equal(t, 5*time.Minute, cfg.Delivery.ExpiryLeadTime)
	assert.Equal(t, 30*time.Second, cfg.Delivery.RefreshInterval)
	assert.Zero(t, cfg.Delivery.VisibilityThreshold, "explicit zero must override the default")
	assert.Equal(t, 200.0, cfg.Delivery.VisibilityRootMargin)
	assert.Equal(t, 500, cfg.Delivery.MaxEntries)
	assert.Equal(t, ProviderModeHTTP, cfg.Provider.Mode)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, StoreBackendRedis, cfg.Store.Backend)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, UsageSinkSQLite, cfg.Usage.Sink)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yml", `
delivery:
  prefetchThresholdPercent: 80
provider:
  timeout: 5s
`)
	t.Setenv("LESSONMEDIA_PREFETCH_THRESHOLD_PERCENT", "90")
	t.Setenv("LESSONMEDIA_EXPIRY_LEAD_TIME_MS", "120000")
	t.Setenv("LESSONMEDIA_PROVIDER_TIMEOUT", "2s")
	t.Setenv("LESSONMEDIA_PROVIDER_TOKEN", "secret")
	t.Setenv("LESSONMEDIA_MAX_ENTRIES", "not-a-number")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 90.0, cfg.Delivery.PrefetchThresholdPercent)
	assert.Equal(t, 2*time.Minute, cfg.Delivery.ExpiryLeadTime)
	assert.Equal(t, 2*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "secret", cfg.Provider.Token)
	assert.Zero(t, cfg.Delivery.MaxEntries, "invalid env value keeps the previous value")
	assert.Contains(t, l.ConsumedEnvKeys, "LESSONMEDIA_PREFETCH_THRESHOLD_PERCENT")
}

func TestLoad_StrictParsing(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		is      error
		msg     string
	}{
		{name: "unknown field", file: "c.yaml", content: "delivery:\n  prefetchPercent: 10\n", is: ErrUnknownConfigField},
		{name: "multiple documents", file: "c.yaml", content: "logLevel: info\n---\nlogLevel: debug\n", msg: "multiple documents"},
		{name: "wrong extension", file: "c.json", content: "{}", msg: "unsupported config format"},
		{name: "bad duration", file: "c.yaml", content: "provider:\n  timeout: soon\n", msg: "provider.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeFile(t, tt.file, tt.content), "").Load()
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(writeFile(t, "empty.yaml", ""), "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Delivery, cfg.Delivery)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"lead not above interval", func(c *AppConfig) { c.Delivery.ExpiryLeadTime = c.Delivery.RefreshInterval }, "delivery.expiryLeadTimeMs"},
		{"threshold zero", func(c *AppConfig) { c.Delivery.PrefetchThresholdPercent = 0 }, "delivery.prefetchThresholdPercent"},
		{"visibility above one", func(c *AppConfig) { c.Delivery.VisibilityThreshold = 2 }, "delivery.visibilityThreshold"},
		{"negative max entries", func(c *AppConfig) { c.Delivery.MaxEntries = -1 }, "delivery.maxEntries"},
		{"unknown provider mode", func(c *AppConfig) { c.Provider.Mode = "grpc" }, "provider.mode"},
		{"http without base url", func(c *AppConfig) { c.Provider.Mode = ProviderModeHTTP }, "provider.baseUrl"},
		{"redis without addr", func(c *AppConfig) { c.Store.Backend = StoreBackendRedis }, "store.redis.addr"},
		{"badger without path", func(c *AppConfig) { c.Store.Backend = StoreBackendBadger }, "store.badger.path"},
		{"sqlite without path", func(c *AppConfig) { c.Usage.Sink = UsageSinkSQLite }, "usage.path"},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "chatty" }, "logLevel"},
		{"telemetry bad exporter", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
	}
	require.NoError(t, Validate(Defaults()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)

			var verr validate.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.field)
		})
	}
}

func TestManager_SaveRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Delivery.PrefetchThresholdPercent = 65
	cfg.Delivery.MaxEntries = 42
	cfg.Provider.Mode = ProviderModeHTTP
	cfg.Provider.BaseURL = "https://media.example.com"
	cfg.Store.Backend = StoreBackendBadger
	cfg.Store.BadgerPath = "/var/lib/lessonmedia/badger"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, NewManager(path).Save(cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
