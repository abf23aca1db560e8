// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

var (
	// ErrStoreMiss is returned when a store holds no descriptor for the key.
	ErrStoreMiss = errors.New("descriptor store: miss")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("descriptor store: closed")
)

// DescriptorStore is a secondary descriptor tier shared across restarts or
// replicas. Stores hold descriptors only, never entry state.
type DescriptorStore interface {
	Load(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error)
	Save(ctx context.Context, d resource.Descriptor, ttl time.Duration) error
	Delete(ctx context.Context, kind resource.Kind, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// storeKey namespaces stored descriptors.
func storeKey(prefix string, kind resource.Kind, id string) string {
	return fmt.Sprintf("%s:desc:%s:%s", prefix, kind, id)
}

func encodeDescriptor(d resource.Descriptor) ([]byte, error) {
	return json.Marshal(d)
}

func decodeDescriptor(raw []byte) (*resource.Descriptor, error) {
	var d resource.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}

// TTLFor returns how long d may live in a store: until expiry minus margin,
// or fallback for non-expiring descriptors. A non-positive result means the
// descriptor should not be stored.
func TTLFor(d resource.Descriptor, now time.Time, margin, fallback time.Duration) time.Duration {
	if !d.HasExpiry() {
		return fallback
	}
	return d.ExpiresAt.Sub(now) - margin
}
