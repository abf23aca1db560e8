// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

type memKey struct {
	kind resource.Kind
	id   string
}

// Memory is an in-process provider. It signs URLs against a fixed base with a
// sequence number and a TTL, and is used for local development and tests.
type Memory struct {
	mu      sync.Mutex
	base    string
	ttl     time.Duration
	clock   clock.Clock
	items   map[memKey]resource.Descriptor
	errs    map[memKey]error
	calls   map[memKey]int
	seq     int
	uploads map[string]int64
}

// NewMemory creates a memory provider signing URLs under base. ttl <= 0
// produces non-expiring descriptors.
func NewMemory(base string, ttl time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{
		base:    base,
		ttl:     ttl,
		clock:   clk,
		items:   make(map[memKey]resource.Descriptor),
		errs:    make(map[memKey]error),
		calls:   make(map[memKey]int),
		uploads: make(map[string]int64),
	}
}

// Add registers a resource. URLs are filled in at resolve time when empty.
func (m *Memory) Add(d resource.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memKey{d.Kind, d.ID}] = d.Clone()
}

// Remove forgets a resource.
func (m *Memory) Remove(kind resource.Kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memKey{kind, id})
}

// FailWith makes Resolve return err for (kind, id) until cleared with nil.
func (m *Memory) FailWith(kind resource.Kind, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, memKey{kind, id})
		return
	}
	m.errs[memKey{kind, id}] = err
}

// Calls returns how many times (kind, id) was resolved.
func (m *Memory) Calls(kind resource.Kind, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[memKey{kind, id}]
}

func (m *Memory) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memKey{kind, id}
	m.calls[k]++
	if err := m.errs[k]; err != nil {
		return nil, err
	}
	d, ok := m.items[k]
	if !ok {
		return nil, nil
	}

	m.seq++
	out := d.Clone()
	now := m.clock.Now()
	if m.ttl > 0 {
		out.ExpiresAt = now.Add(m.ttl)
	}
	if d.PrimaryURL == "" {
		out.PrimaryURL = m.sign(kind, id, "primary")
	}
	if kind == resource.KindVideo && d.ThumbnailURL == "" {
		out.ThumbnailURL = m.sign(kind, id, "thumb")
	}
	return &out, nil
}

func (m *Memory) sign(kind resource.Kind, id, variant string) string {
	q := url.Values{}
	q.Set("sig", fmt.Sprintf("%d", m.seq))
	if m.ttl > 0 {
		q.Set("exp", fmt.Sprintf("%d", m.clock.Now().Add(m.ttl).Unix()))
	}
	return fmt.Sprintf("%s/%s/%s/%s?%s", m.base, kind, url.PathEscape(id), variant, q.Encode())
}

// Upload drains body and registers a new resource under a random id.
func (m *Memory) Upload(ctx context.Context, kind resource.Kind, body io.Reader, meta UploadMetadata) (string, error) {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return "", &Error{Sentinel: ErrRejected, Operation: "upload", Err: err}
	}
	if n == 0 {
		return "", &Error{Sentinel: ErrRejected, Operation: "upload", Err: fmt.Errorf("empty body")}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	d := resource.Descriptor{ID: id, Kind: kind, Title: meta.Title, Description: meta.Description}
	if kind == resource.KindDocument {
		d.SizeBytes = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memKey{kind, id}] = d
	m.uploads[id] = n
	return id, nil
}

// UploadedBytes returns the size of an upload accepted by this provider.
func (m *Memory) UploadedBytes(id string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.uploads[id]
	return n, ok
}
