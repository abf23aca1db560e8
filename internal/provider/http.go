// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/platform/httpx"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

const maxDescriptorBytes = 1 << 20

// HTTPConfig configures the signing-service client.
type HTTPConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// HTTPClient talks to the signing service:
//
//	GET  {base}/resources/{kind}/{id}  -> descriptor JSON
//	POST {base}/uploads/{kind}         -> {"id": "..."} (multipart "file")
type HTTPClient struct {
	base      *url.URL
	token     string
	userAgent string
	client    *http.Client
	upload    *http.Client
	logger    zerolog.Logger
}

// NewHTTPClient validates cfg and builds the client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("provider base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("provider base url: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("provider base url: missing host")
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "lessonmedia"
	}
	return &HTTPClient{
		base:      base,
		token:     cfg.Token,
		userAgent: ua,
		client:    httpx.NewClient(cfg.Timeout),
		upload:    httpx.NewClient(0),
		logger:    log.WithComponent("provider.http"),
	}, nil
}

// endpoint appends parts to the base path as single segments; a slash or
// percent sign inside a part stays escaped.
func (c *HTTPClient) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.Join(parts, "/")
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if rid := log.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	return req, nil
}

// Resolve fetches a freshly signed descriptor.
func (c *HTTPClient) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	const op = "resolve"
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("resources", string(kind), id), nil)
	if err != nil {
		return nil, &Error{Sentinel: ErrRejected, Operation: op, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	var d resource.Descriptor
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxDescriptorBytes))
	if err := dec.Decode(&d); err != nil {
		return nil, &Error{Sentinel: ErrInvalidResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return &d, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Upload streams body as multipart to the ingestion endpoint.
func (c *HTTPClient) Upload(ctx context.Context, kind resource.Kind, body io.Reader, meta UploadMetadata) (string, error) {
	const op = "upload"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(mw, body, meta)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("uploads", string(kind)), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", &Error{Sentinel: ErrRejected, Operation: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.upload.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError(op, resp)
	}
	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", &Error{Sentinel: ErrInvalidResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	if err := resource.ValidateID(out.ID); err != nil {
		return "", &Error{Sentinel: ErrInvalidResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	c.logger.Info().Str(log.FieldEvent, "upload.accepted").Str(log.FieldKind, string(kind)).Str(log.FieldResourceID, out.ID).Msg("upload accepted")
	return out.ID, nil
}

func writeUploadForm(mw *multipart.Writer, body io.Reader, meta UploadMetadata) error {
	for field, v := range map[string]string{"title": meta.Title, "description": meta.Description} {
		if v == "" {
			continue
		}
		if err := mw.WriteField(field, v); err != nil {
			return err
		}
	}
	name := meta.Filename
	if name == "" {
		name = "upload"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, body)
	return err
}

func transportError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Sentinel: context.Canceled, Operation: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return &Error{Sentinel: ErrTimeout, Operation: op, Err: err}
	default:
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var cause error
	if s := strings.TrimSpace(string(snippet)); s != "" {
		cause = errors.New(s)
	}
	return &Error{Sentinel: sentinelForStatus(resp.StatusCode), Operation: op, Status: resp.StatusCode, Err: cause}
}
