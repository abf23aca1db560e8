// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Delivery: DeliverySettings{
			PrefetchThresholdPercent: 70,
			ExpiryLeadTime:           10 * time.Minute,
			RefreshInterval:          60 * time.Second,
			VisibilityThreshold:      0.25,
			VisibilityRootMargin:     200,
		},
		Provider: ProviderSettings{
			Mode:             ProviderModeMemory,
			UserAgent:        "lessonmedia",
			Timeout:          15 * time.Second,
			RPS:              20,
			Burst:            40,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
			SignedURLTTL:     time.Hour,
		},
		Store: StoreSettings{
			Backend:     StoreBackendNone,
			TTLMargin:   30 * time.Second,
			FallbackTTL: 5 * time.Minute,
			RedisPrefix: "lessonmedia",
		},
		Usage: UsageSettings{
			Sink:          UsageSinkLog,
			Buffer:        1024,
			BatchSize:     64,
			FlushInterval: 2 * time.Second,
		},
		API: APISettings{
			ListenAddr:      ":8080",
			RateLimit:       600,
			MaxUploadBytes:  512 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetrySettings{
			Exporter:    "grpc",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRate:  1.0,
			Environment: "production",
		},
	}
}
