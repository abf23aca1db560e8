// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resource

import (
	"fmt"
	"strings"
	"time"

	xgnet "github.com/ManuGH/lessonmedia/internal/platform/net"
	"golang.org/x/text/unicode/norm"
)

// maxIDLength bounds ids accepted from callers and providers.
const maxIDLength = 256

// ValidateID rejects ids that cannot be used as cache keys.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDLength)
	}
	if strings.ContainsAny(id, "\x00\n\r") {
		return fmt.Errorf("%w: control characters", ErrInvalidID)
	}
	return nil
}

// HasExpiry reports whether the descriptor carries an expiry at all.
func (d Descriptor) HasExpiry() bool {
	return !d.ExpiresAt.IsZero()
}

// UsableAt reports whether the URLs may be used for a new load attempt at now.
func (d Descriptor) UsableAt(now time.Time) bool {
	if !d.HasExpiry() {
		return true
	}
	return now.Before(d.ExpiresAt)
}

// ExpiresWithin reports whether the descriptor expires within lead of now.
// Descriptors without expiry never do.
func (d Descriptor) ExpiresWithin(now time.Time, lead time.Duration) bool {
	if !d.HasExpiry() {
		return false
	}
	return d.ExpiresAt.Sub(now) <= lead
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.AlternateURLs != nil {
		out.AlternateURLs = append([]string(nil), d.AlternateURLs...)
	}
	return out
}

// Normalize validates a provider payload against the requested id and kind and
// returns the canonical form stored in the cache.
func Normalize(d Descriptor, id string, kind Kind, now time.Time) (Descriptor, error) {
	out := d.Clone()

	if out.ID == "" {
		out.ID = id
	}
	if out.ID != id {
		return Descriptor{}, fmt.Errorf("%w: provider returned id %q for %q", ErrInvalidDescriptor, out.ID, id)
	}
	if out.Kind == "" {
		out.Kind = kind
	}
	if out.Kind != kind {
		return Descriptor{}, fmt.Errorf("%w: provider returned kind %q for %s %q", ErrInvalidDescriptor, out.Kind, kind, id)
	}

	primary, err := xgnet.NormalizeMediaURL(out.PrimaryURL)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: primary url: %v", ErrInvalidDescriptor, err)
	}
	out.PrimaryURL = primary

	alts := out.AlternateURLs[:0]
	for _, raw := range out.AlternateURLs {
		u, err := xgnet.NormalizeMediaURL(raw)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: alternate url: %v", ErrInvalidDescriptor, err)
		}
		alts = append(alts, u)
	}
	if len(alts) == 0 {
		alts = nil
	}
	out.AlternateURLs = alts

	if out.ThumbnailURL != "" {
		thumb, err := xgnet.NormalizeMediaURL(out.ThumbnailURL)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: thumbnail url: %v", ErrInvalidDescriptor, err)
		}
		out.ThumbnailURL = thumb
	}

	switch kind {
	case KindVideo:
		out.SizeBytes = 0
		out.PageCount = 0
	case KindDocument:
		out.ThumbnailURL = ""
		if out.SizeBytes < 0 || out.PageCount < 0 {
			return Descriptor{}, fmt.Errorf("%w: negative size or page count", ErrInvalidDescriptor)
		}
	}

	out.Title = strings.TrimSpace(norm.NFC.String(out.Title))
	out.Description = strings.TrimSpace(norm.NFC.String(out.Description))
	out.NextInSequenceID = strings.TrimSpace(out.NextInSequenceID)

	if out.HasExpiry() {
		out.ExpiresAt = out.ExpiresAt.UTC()
		if !out.UsableAt(now) {
			return Descriptor{}, fmt.Errorf("%w: expired on arrival at %s", ErrExpired, out.ExpiresAt.Format(time.RFC3339))
		}
	}
	return out, nil
}
