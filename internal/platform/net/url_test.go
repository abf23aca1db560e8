// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"testing"
)

func TestSanitizeURL_StripsSignature(t *testing.T) {
	got := SanitizeURL("https://user:pw@cdn.example.com/v/101.m3u8?sig=abc&exp=123")
	want := "https://cdn.example.com/v/101.m3u8"
	if got != want {
		t.Fatalf("SanitizeURL() = %q, want %q", got, want)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "CDN.Example.com", want: "cdn.example.com"},
		{in: "bücher.example", want: "xn--bcher-kva.example"},
		{in: "[::1]", want: "::1"},
		{in: "example.com.", want: "example.com"},
		{in: "", wantErr: true},
		{in: "user@host", wantErr: true},
		{in: "host/path", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeHost(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeHost(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeHost(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeMediaURL(t *testing.T) {
	got, err := NormalizeMediaURL("HTTPS://CDN.Example.com:8443/v/101.mp4?sig=AbC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "https://cdn.example.com:8443/v/101.mp4?sig=AbC"; got != want {
		t.Fatalf("NormalizeMediaURL() = %q, want %q", got, want)
	}

	if _, err := NormalizeMediaURL("ftp://example.com/file.pdf"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := NormalizeMediaURL("https://u:p@example.com/x"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for credentials, got %v", err)
	}
	if _, err := NormalizeMediaURL("   "); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for empty input, got %v", err)
	}
}
