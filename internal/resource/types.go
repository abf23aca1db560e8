// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resource defines the media resource model shared by the cache,
// the fetch coordinator and the delivery facade.
package resource

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies what a resource is. The set is closed for now.
type Kind string

const (
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindVideo || k == KindDocument
}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Status is the retrieval state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Descriptor identifies one playable or downloadable asset together with its
// current signed URLs.
type Descriptor struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// PrimaryURL is the stream URL for videos and the download URL for documents.
	PrimaryURL    string   `json:"primaryUrl"`
	AlternateURLs []string `json:"alternateUrls,omitempty"`

	ThumbnailURL string `json:"thumbnailUrl,omitempty"` // video only
	SizeBytes    int64  `json:"sizeBytes,omitempty"`    // document only
	PageCount    int    `json:"pageCount,omitempty"`    // document only

	// NextInSequenceID links to the next logical resource, forming a singly-linked chain.
	NextInSequenceID string `json:"nextInSequenceId,omitempty"`

	// ExpiresAt is the instant after which the URLs are no longer guaranteed valid.
	// The zero value means the URLs do not expire.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Entry wraps a descriptor with retrieval state.
type Entry struct {
	ResourceID string      `json:"resourceId"`
	Kind       Kind        `json:"kind"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
	Status     Status      `json:"status"`
	LastError  error       `json:"-"`

	// Token is the token of the most recently started fetch for this id.
	Token     uint64    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrorMessage returns the last error text, or "" outside the error state.
func (e Entry) ErrorMessage() string {
	if e.Status != StatusError || e.LastError == nil {
		return ""
	}
	return e.LastError.Error()
}

// Clone returns a deep copy so callers can never mutate cached state.
func (e Entry) Clone() Entry {
	out := e
	if e.Descriptor != nil {
		d := e.Descriptor.Clone()
		out.Descriptor = &d
	}
	return out
}

// Transition is emitted whenever an entry's status changes.
type Transition struct {
	ResourceID string
	Kind       Kind
	From       Status
	To         Status
	Token      uint64
	At         time.Time
}
