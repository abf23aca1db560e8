// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid http", "http://example.com", false},
		{"valid https with path", "https://media.example.com/v1", false},
		{"empty url", "", true},
		{"no host", "http://", true},
		{"invalid scheme", "ftp://example.com", true},
		{"no scheme", "example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("provider.baseUrl", tt.value, []string{"http", "https"})
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		exclusive bool
		wantErr   bool
	}{
		{"inside", 0.5, false, false},
		{"lower bound inclusive", 0, false, false},
		{"lower bound exclusive", 0, true, true},
		{"upper bound", 1, true, false},
		{"above", 1.01, false, true},
		{"nan", math.NaN(), false, true},
		{"inf", math.Inf(1), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.FloatRange("f", tt.value, 0, 1, tt.exclusive)
			assert.Equal(t, tt.wantErr, !v.IsValid())
		})
	}
}

func TestValidator_AccumulatesErrors(t *testing.T) {
	v := New()
	v.Range("a", 11, 0, 10)
	v.Positive("b", 0)
	v.NonNegative("c", -1)
	v.PositiveDuration("d", -time.Second)
	v.OneOf("e", "x", []string{"y", "z"})
	v.NotEmpty("f", "  ")
	v.LogLevel("g", "loud")
	v.Custom("h", 3, func(any) error { return errors.New("nope") })

	err := v.Err()
	require.Error(t, err)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, verr.Fields())
	assert.Contains(t, err.Error(), "validation failed for h: nope")
}

func TestValidator_ValidIsNil(t *testing.T) {
	v := New()
	v.Range("a", 5, 0, 10)
	v.LogLevel("lvl", "debug")
	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())
	assert.Empty(t, v.Errors())
}
