// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration persistence.
type Manager struct {
	configPath string
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{configPath: configPath}
}

// Save writes cfg atomically as YAML. Secrets are written as given.
func (m *Manager) Save(cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Marshal renders cfg in the file format Load reads back.
func Marshal(cfg AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToFileConfig(cfg)); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// ToFileConfig maps a resolved config back to its file form.
func ToFileConfig(cfg AppConfig) FileConfig {
	d, p, s, u, a, t := cfg.Delivery, cfg.Provider, cfg.Store, cfg.Usage, cfg.API, cfg.Telemetry
	return FileConfig{
		LogLevel: cfg.LogLevel,
		Delivery: DeliveryConfig{
			PrefetchThresholdPercent: ptr(d.PrefetchThresholdPercent),
			ExpiryLeadTimeMs:         ptr(d.ExpiryLeadTime.Milliseconds()),
			RefreshIntervalMs:        ptr(d.RefreshInterval.Milliseconds()),
			VisibilityThreshold:      ptr(d.VisibilityThreshold),
			VisibilityRootMargin:     ptr(d.VisibilityRootMargin),
			MaxEntries:               ptr(d.MaxEntries),
		},
		Provider: ProviderConfig{
			Mode:             p.Mode,
			BaseURL:          p.BaseURL,
			Token:            p.Token,
			UserAgent:        p.UserAgent,
			Timeout:          p.Timeout.String(),
			RPS:              ptr(p.RPS),
			Burst:            ptr(p.Burst),
			BreakerThreshold: ptr(p.BreakerThreshold),
			BreakerReset:     p.BreakerReset.String(),
			SignedURLTTL:     p.SignedURLTTL.String(),
		},
		Store: StoreConfig{
			Backend:     s.Backend,
			TTLMargin:   s.TTLMargin.String(),
			FallbackTTL: s.FallbackTTL.String(),
			Redis: RedisStoreConfig{
				Addr:      s.RedisAddr,
				Password:  s.RedisPassword,
				DB:        ptr(s.RedisDB),
				KeyPrefix: s.RedisPrefix,
			},
			Badger: BadgerStoreConfig{Path: s.BadgerPath},
		},
		Usage: UsageConfig{
			Sink:          u.Sink,
			Path:          u.Path,
			Buffer:        ptr(u.Buffer),
			BatchSize:     ptr(u.BatchSize),
			FlushInterval: u.FlushInterval.String(),
		},
		API: APIConfig{
			ListenAddr:      a.ListenAddr,
			RateLimit:       ptr(a.RateLimit),
			MaxUploadBytes:  ptr(a.MaxUploadBytes),
			ShutdownTimeout: a.ShutdownTimeout.String(),
		},
		Telemetry: TelemetryConfig{
			Enabled:     ptr(t.Enabled),
			Exporter:    t.Exporter,
			Endpoint:    t.Endpoint,
			Insecure:    ptr(t.Insecure),
			SampleRate:  ptr(t.SampleRate),
			Environment: t.Environment,
		},
	}
}

func ptr[T any](v T) *T { return &v }
