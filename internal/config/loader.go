// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // keys the last Load looked at
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, "" for ENV-only configuration.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) env(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return loadFile(path)
}

// loadFile parses a YAML file strictly: unknown fields, multiple documents
// and trailing content are errors.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func parseDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.LogLevel, f.LogLevel)

	d := &cfg.Delivery
	setIf(&d.PrefetchThresholdPercent, f.Delivery.PrefetchThresholdPercent)
	if f.Delivery.ExpiryLeadTimeMs != nil {
		d.ExpiryLeadTime = time.Duration(*f.Delivery.ExpiryLeadTimeMs) * time.Millisecond
	}
	if f.Delivery.RefreshIntervalMs != nil {
		d.RefreshInterval = time.Duration(*f.Delivery.RefreshIntervalMs) * time.Millisecond
	}
	setIf(&d.VisibilityThreshold, f.Delivery.VisibilityThreshold)
	setIf(&d.VisibilityRootMargin, f.Delivery.VisibilityRootMargin)
	setIf(&d.MaxEntries, f.Delivery.MaxEntries)

	p := &cfg.Provider
	setString(&p.Mode, f.Provider.Mode)
	setString(&p.BaseURL, f.Provider.BaseURL)
	setString(&p.Token, f.Provider.Token)
	setString(&p.UserAgent, f.Provider.UserAgent)
	setIf(&p.RPS, f.Provider.RPS)
	setIf(&p.Burst, f.Provider.Burst)
	setIf(&p.BreakerThreshold, f.Provider.BreakerThreshold)

	s := &cfg.Store
	setString(&s.Backend, f.Store.Backend)
	setString(&s.RedisAddr, f.Store.Redis.Addr)
	setString(&s.RedisPassword, f.Store.Redis.Password)
	setIf(&s.RedisDB, f.Store.Redis.DB)
	setString(&s.RedisPrefix, f.Store.Redis.KeyPrefix)
	setString(&s.BadgerPath, f.Store.Badger.Path)

	u := &cfg.Usage
	setString(&u.Sink, f.Usage.Sink)
	setString(&u.Path, f.Usage.Path)
	setIf(&u.Buffer, f.Usage.Buffer)
	setIf(&u.BatchSize, f.Usage.BatchSize)

	a := &cfg.API
	setString(&a.ListenAddr, f.API.ListenAddr)
	setIf(&a.RateLimit, f.API.RateLimit)
	setIf(&a.MaxUploadBytes, f.API.MaxUploadBytes)

	t := &cfg.Telemetry
	setIf(&t.Enabled, f.Telemetry.Enabled)
	setString(&t.Exporter, f.Telemetry.Exporter)
	setString(&t.Endpoint, f.Telemetry.Endpoint)
	setIf(&t.Insecure, f.Telemetry.Insecure)
	setIf(&t.SampleRate, f.Telemetry.SampleRate)
	setString(&t.Environment, f.Telemetry.Environment)

	return errors.Join(
		parseDuration("provider.timeout", f.Provider.Timeout, &p.Timeout),
		parseDuration("provider.breakerReset", f.Provider.BreakerReset, &p.BreakerReset),
		parseDuration("provider.signedUrlTtl", f.Provider.SignedURLTTL, &p.SignedURLTTL),
		parseDuration("store.ttlMargin", f.Store.TTLMargin, &s.TTLMargin),
		parseDuration("store.fallbackTtl", f.Store.FallbackTTL, &s.FallbackTTL),
		parseDuration("usage.flushInterval", f.Usage.FlushInterval, &u.FlushInterval),
		parseDuration("api.shutdownTimeout", f.API.ShutdownTimeout, &a.ShutdownTimeout),
	)
}

// mergeEnvConfig applies LESSONMEDIA_* variables, which have the highest precedence.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = ParseString(l.env("LOG_LEVEL"), cfg.LogLevel)

	d := &cfg.Delivery
	d.PrefetchThresholdPercent = ParseFloat(l.env("PREFETCH_THRESHOLD_PERCENT"), d.PrefetchThresholdPercent)
	d.ExpiryLeadTime = ParseMillis(l.env("EXPIRY_LEAD_TIME_MS"), d.ExpiryLeadTime)
	d.RefreshInterval = ParseMillis(l.env("REFRESH_INTERVAL_MS"), d.RefreshInterval)
	d.VisibilityThreshold = ParseFloat(l.env("VISIBILITY_THRESHOLD"), d.VisibilityThreshold)
	d.VisibilityRootMargin = ParseFloat(l.env("VISIBILITY_ROOT_MARGIN"), d.VisibilityRootMargin)
	d.MaxEntries = ParseInt(l.env("MAX_ENTRIES"), d.MaxEntries)

	p := &cfg.Provider
	p.Mode = ParseString(l.env("PROVIDER_MODE"), p.Mode)
	p.BaseURL = ParseString(l.env("PROVIDER_BASE_URL"), p.BaseURL)
	p.Token = ParseString(l.env("PROVIDER_TOKEN"), p.Token)
	p.UserAgent = ParseString(l.env("PROVIDER_USER_AGENT"), p.UserAgent)
	p.Timeout = ParseDuration(l.env("PROVIDER_TIMEOUT"), p.Timeout)
	p.RPS = ParseFloat(l.env("PROVIDER_RPS"), p.RPS)
	p.Burst = ParseInt(l.env("PROVIDER_BURST"), p.Burst)
	p.BreakerThreshold = ParseInt(l.env("PROVIDER_BREAKER_THRESHOLD"), p.BreakerThreshold)
	p.BreakerReset = ParseDuration(l.env("PROVIDER_BREAKER_RESET"), p.BreakerReset)
	p.SignedURLTTL = ParseDuration(l.env("PROVIDER_SIGNED_URL_TTL"), p.SignedURLTTL)

	s := &cfg.Store
	s.Backend = ParseString(l.env("STORE_BACKEND"), s.Backend)
	s.TTLMargin = ParseDuration(l.env("STORE_TTL_MARGIN"), s.TTLMargin)
	s.FallbackTTL = ParseDuration(l.env("STORE_FALLBACK_TTL"), s.FallbackTTL)
	s.RedisAddr = ParseString(l.env("REDIS_ADDR"), s.RedisAddr)
	s.RedisPassword = ParseString(l.env("REDIS_PASSWORD"), s.RedisPassword)
	s.RedisDB = ParseInt(l.env("REDIS_DB"), s.RedisDB)
	s.RedisPrefix = ParseString(l.env("REDIS_KEY_PREFIX"), s.RedisPrefix)
	s.BadgerPath = ParseString(l.env("BADGER_PATH"), s.BadgerPath)

	u := &cfg.Usage
	u.Sink = ParseString(l.env("USAGE_SINK"), u.Sink)
	u.Path = ParseString(l.env("USAGE_PATH"), u.Path)
	u.Buffer = ParseInt(l.env("USAGE_BUFFER"), u.Buffer)
	u.BatchSize = ParseInt(l.env("USAGE_BATCH_SIZE"), u.BatchSize)
	u.FlushInterval = ParseDuration(l.env("USAGE_FLUSH_INTERVAL"), u.FlushInterval)

	a := &cfg.API
	a.ListenAddr = ParseString(l.env("LISTEN_ADDR"), a.ListenAddr)
	a.RateLimit = ParseInt(l.env("RATE_LIMIT"), a.RateLimit)
	a.MaxUploadBytes = ParseInt64(l.env("MAX_UPLOAD_BYTES"), a.MaxUploadBytes)
	a.ShutdownTimeout = ParseDuration(l.env("SHUTDOWN_TIMEOUT"), a.ShutdownTimeout)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(l.env("TELEMETRY_ENABLED"), t.Enabled)
	t.Exporter = ParseString(l.env("OTEL_EXPORTER"), t.Exporter)
	t.Endpoint = ParseString(l.env("OTEL_ENDPOINT"), t.Endpoint)
	t.Insecure = ParseBool(l.env("OTEL_INSECURE"), t.Insecure)
	t.SampleRate = ParseFloat(l.env("OTEL_SAMPLE_RATE"), t.SampleRate)
	t.Environment = ParseString(l.env("ENVIRONMENT"), t.Environment)
}
