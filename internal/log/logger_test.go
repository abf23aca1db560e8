// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent_AttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "lm-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("fetch")
	l.Info().Str(FieldResourceID, "video-101").Msg("resolved")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "lm-test", fields["service"])
	assert.Equal(t, "v0.0.1", fields["version"])
	assert.Equal(t, "fetch", fields[FieldComponent])
	assert.Equal(t, "video-101", fields[FieldResourceID])
}

func TestMiddleware_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resources/video/x", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "request.handled", fields[FieldEvent])
	assert.Equal(t, float64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "warn", fields["level"])
	assert.Equal(t, float64(4), fields["bytes"])
}
