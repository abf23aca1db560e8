// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resource"
	"github.com/ManuGH/lessonmedia/internal/usage"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.API.ShutdownTimeout = 2 * time.Second
	cfg.Usage.Sink = config.UsageSinkSQLite
	cfg.Usage.Path = filepath.Join(t.TempDir(), "usage.db")
	cfg.Usage.FlushInterval = 50 * time.Millisecond
	return cfg
}

func withRedis(t *testing.T, cfg config.AppConfig) (config.AppConfig, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.Store.Backend = config.StoreBackendRedis
	cfg.Store.RedisAddr = mr.Addr()
	return cfg, mr
}

func TestBuild_DefaultStack(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(context.Background())) }()

	require.NotNil(t, rt.Service)
	require.NotNil(t, rt.API)
	require.NotNil(t, rt.Breaker, "default config enables the provider breaker")
	require.NotNil(t, rt.Limiter)

	resp := rt.Health.Health(context.Background(), true)
	assert.Contains(t, resp.Checks, "breaker_provider")
	assert.Contains(t, resp.Checks, "usage_sqlite")

	got := rt.Service.Settings()
	assert.Equal(t, cfg.Delivery.PrefetchThresholdPercent, got.PrefetchThresholdPercent)
	assert.Equal(t, cfg.Provider.Timeout, got.ProviderTimeout)
}

func TestBuild_RedisStoreBacksResolver(t *testing.T) {
	cfg, mr := withRedis(t, testConfig(t))
	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(context.Background())) }()

	ctx := context.Background()
	id, err := rt.Service.UploadVideo(ctx, strings.NewReader("frames"), provider.UploadMetadata{Title: "Intro"})
	require.NoError(t, err)

	d, err := rt.Service.FetchVideo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Intro", d.Title)
	assert.True(t, strings.HasPrefix(d.PrimaryURL, memoryBaseURL), d.PrimaryURL)
	assert.Len(t, mr.Keys(), 1, "origin result is written to the shared tier")

	resp := rt.Health.Health(ctx, true)
	assert.Contains(t, resp.Checks, "store_redis")
}

func TestBuild_FailsOnUnreachableStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.StoreBackendRedis
	cfg.Store.RedisAddr = "127.0.0.1:1"

	rt, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "store")
}

func TestBuild_BreakerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.BreakerThreshold = 0
	cfg.Usage.Sink = config.UsageSinkNone

	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(context.Background())) }()

	assert.Nil(t, rt.Breaker)
	resp := rt.Health.Health(context.Background(), true)
	assert.Empty(t, resp.Checks)
}

func TestRuntime_ApplyConfig(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close(context.Background())) }()

	next := cfg
	next.Delivery.PrefetchThresholdPercent = 55
	next.Delivery.MaxEntries = 10
	next.Provider.RPS = 5
	next.Provider.Burst = 5
	require.NoError(t, rt.ApplyConfig(next))

	got := rt.Service.Settings()
	assert.Equal(t, 55.0, got.PrefetchThresholdPercent)
	assert.Equal(t, 10, got.MaxEntries)
	assert.Equal(t, next, rt.Config)

	bad := next
	bad.Delivery.PrefetchThresholdPercent = 0
	require.Error(t, rt.ApplyConfig(bad))
	assert.Equal(t, 55.0, rt.Service.Settings().PrefetchThresholdPercent, "invalid settings keep the previous ones")
}

func TestApp_ServesReloadsAndFlushesUsage(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.NewManager(path).Save(cfg))
	loader := config.NewLoader(path, "test")
	loaded, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(loaded, loader)

	rt, err := Build(context.Background(), loaded)
	require.NoError(t, err)
	logger := log.WithComponent("test")
	mgr, err := NewManager(ServerConfigFrom(loaded), Deps{
		Logger:     logger,
		Config:     loaded,
		APIHandler: rt.API.Handler(),
	})
	require.NoError(t, err)
	rt.RegisterHooks(mgr)

	app := NewApp(logger, mgr, holder, rt)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	addr := waitForAddr(t, mgr)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := client.Get("http://" + addr + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	id, err := rt.Service.UploadDocument(ctx, bytes.NewReader([]byte("%PDF-1.7")), provider.UploadMetadata{Title: "Worksheet"})
	require.NoError(t, err)
	resp, err = client.Get("http://" + addr + "/api/v1/resources/document/" + id)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	next := loaded
	next.Delivery.PrefetchThresholdPercent = 55
	require.NoError(t, config.NewManager(path).Save(next))
	require.NoError(t, holder.Reload(ctx))
	require.Eventually(t, func() bool {
		return rt.Service.Settings().PrefetchThresholdPercent == 55
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	sink, err := usage.OpenSQLiteSink(context.Background(), cfg.Usage.Path)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	n, err := sink.Count(context.Background(), resource.KindDocument, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "upload event is flushed on shutdown")
}

func TestApp_RequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
