// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Provider modes.
const (
	ProviderModeMemory = "memory"
	ProviderModeHTTP   = "http"
)

// Store backends.
const (
	StoreBackendNone   = "none"
	StoreBackendRedis  = "redis"
	StoreBackendBadger = "badger"
)

// Usage sinks.
const (
	UsageSinkNone   = "none"
	UsageSinkLog    = "log"
	UsageSinkSQLite = "sqlite"
)

// FileConfig represents the YAML configuration structure. Pointers mark
// values whose zero is meaningful so an absent key keeps the default.
type FileConfig struct {
	LogLevel  string          `yaml:"logLevel,omitempty"`
	Delivery  DeliveryConfig  `yaml:"delivery,omitempty"`
	Provider  ProviderConfig  `yaml:"provider,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Usage     UsageConfig     `yaml:"usage,omitempty"`
	API       APIConfig       `yaml:"api,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// DeliveryConfig holds the caching tuning knobs.
type DeliveryConfig struct {
	PrefetchThresholdPercent *float64 `yaml:"prefetchThresholdPercent,omitempty"`
	ExpiryLeadTimeMs         *int64   `yaml:"expiryLeadTimeMs,omitempty"`
	RefreshIntervalMs        *int64   `yaml:"refreshIntervalMs,omitempty"`
	VisibilityThreshold      *float64 `yaml:"visibilityThreshold,omitempty"`
	VisibilityRootMargin     *float64 `yaml:"visibilityRootMargin,omitempty"`
	MaxEntries               *int     `yaml:"maxEntries,omitempty"`
}

// ProviderConfig selects and tunes the descriptor provider.
type ProviderConfig struct {
	Mode             string   `yaml:"mode,omitempty"`
	BaseURL          string   `yaml:"baseUrl,omitempty"`
	Token            string   `yaml:"token,omitempty"`
	UserAgent        string   `yaml:"userAgent,omitempty"`
	Timeout          string   `yaml:"timeout,omitempty"` // e.g. "15s"
	RPS              *float64 `yaml:"rps,omitempty"`
	Burst            *int     `yaml:"burst,omitempty"`
	BreakerThreshold *int     `yaml:"breakerThreshold,omitempty"`
	BreakerReset     string   `yaml:"breakerReset,omitempty"`
	SignedURLTTL     string   `yaml:"signedUrlTtl,omitempty"` // memory mode only
}

// StoreConfig selects the shared descriptor tier.
type StoreConfig struct {
	Backend     string            `yaml:"backend,omitempty"`
	TTLMargin   string            `yaml:"ttlMargin,omitempty"`
	FallbackTTL string            `yaml:"fallbackTtl,omitempty"`
	Redis       RedisStoreConfig  `yaml:"redis,omitempty"`
	Badger      BadgerStoreConfig `yaml:"badger,omitempty"`
}

// RedisStoreConfig holds redis connection settings.
type RedisStoreConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        *int   `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// BadgerStoreConfig holds the embedded store location.
type BadgerStoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// UsageConfig selects the usage event sink.
type UsageConfig struct {
	Sink          string `yaml:"sink,omitempty"`
	Path          string `yaml:"path,omitempty"`
	Buffer        *int   `yaml:"buffer,omitempty"`
	BatchSize     *int   `yaml:"batchSize,omitempty"`
	FlushInterval string `yaml:"flushInterval,omitempty"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty"`
	RateLimit       *int   `yaml:"rateLimit,omitempty"` // requests per minute per client IP
	MaxUploadBytes  *int64 `yaml:"maxUploadBytes,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Exporter    string   `yaml:"exporter,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	Insecure    *bool    `yaml:"insecure,omitempty"`
	SampleRate  *float64 `yaml:"sampleRate,omitempty"`
	Environment string   `yaml:"environment,omitempty"`
}

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version  string
	LogLevel string

	Delivery  DeliverySettings
	Provider  ProviderSettings
	Store     StoreSettings
	Usage     UsageSettings
	API       APISettings
	Telemetry TelemetrySettings
}

// DeliverySettings are the resolved caching tuning knobs.
type DeliverySettings struct {
	PrefetchThresholdPercent float64
	ExpiryLeadTime           time.Duration
	RefreshInterval          time.Duration
	VisibilityThreshold      float64
	VisibilityRootMargin     float64
	MaxEntries               int
}

// ProviderSettings are the resolved provider settings.
type ProviderSettings struct {
	Mode             string
	BaseURL          string
	Token            string
	UserAgent        string
	Timeout          time.Duration
	RPS              float64
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration
	SignedURLTTL     time.Duration
}

// StoreSettings are the resolved shared-tier settings.
type StoreSettings struct {
	Backend       string
	TTLMargin     time.Duration
	FallbackTTL   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	BadgerPath    string
}

// UsageSettings are the resolved usage pipeline settings.
type UsageSettings struct {
	Sink          string
	Path          string
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// APISettings are the resolved HTTP server settings.
type APISettings struct {
	ListenAddr      string
	RateLimit       int
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// TelemetrySettings are the resolved tracing settings.
type TelemetrySettings struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	Insecure    bool
	SampleRate  float64
	Environment string
}
