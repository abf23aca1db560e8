// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/delivery"
	"github.com/ManuGH/lessonmedia/internal/progress"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

const (
	rateWindow     = time.Minute
	maxFormField   = 4 << 10
	uploadFilePart = "file"
)

// ResourceResponse is a descriptor with its current retrieval state.
type ResourceResponse struct {
	Descriptor *resource.Descriptor `json:"descriptor,omitempty"`
	Status     resource.Status      `json:"status"`
	Token      uint64               `json:"token,omitempty"`
	Expiring   bool                 `json:"expiring"`
	SessionID  string               `json:"sessionId,omitempty"`
}

// EntryView is one entry of a listing.
type EntryView struct {
	ID         string               `json:"id"`
	Kind       resource.Kind        `json:"kind"`
	Status     resource.Status      `json:"status"`
	Error      string               `json:"error,omitempty"`
	Token      uint64               `json:"token"`
	UpdatedAt  time.Time            `json:"updatedAt"`
	Descriptor *resource.Descriptor `json:"descriptor,omitempty"`
}

// StatusResponse summarises loading and failed ids per kind.
type StatusResponse struct {
	Loading map[resource.Kind][]string          `json:"loading"`
	Errors  map[resource.Kind]map[string]string `json:"errors"`
	Cache   cache.Stats                         `json:"cache"`
	Playing []delivery.Playback                 `json:"playing"`
}

// ProgressRequest is a playback sample. SessionID is the id returned by
// play; without it the video's shared session is used.
type ProgressRequest struct {
	SessionID   string  `json:"sessionId,omitempty"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

func pathKind(r *http.Request) (resource.Kind, error) {
	return resource.ParseKind(chi.URLParam(r, "kind"))
}

func pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	return id, resource.ValidateID(id)
}

func (s *Server) respondResource(w http.ResponseWriter, kind resource.Kind, id string, d *resource.Descriptor, sessionID string) {
	resp := ResourceResponse{
		Descriptor: d,
		Status:     resource.StatusReady,
		Expiring:   s.svc.IsResourceExpiring(kind, id),
		SessionID:  sessionID,
	}
	if e, ok := s.svc.Entry(kind, id); ok {
		resp.Status = e.Status
		resp.Token = e.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.svc.Fetch(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondResource(w, kind, id, d, "")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.svc.RefreshResourceURL(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondResource(w, kind, id, d, "")
}

func (s *Server) handleExpiring(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expiring": s.svc.IsResourceExpiring(kind, id)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kinds := []resource.Kind{resource.KindVideo, resource.KindDocument}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := resource.ParseKind(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		kinds = []resource.Kind{kind}
	}

	out := make([]EntryView, 0)
	for _, kind := range kinds {
		var entries map[string]resource.Entry
		if kind == resource.KindVideo {
			entries = s.svc.VideoResources()
		} else {
			entries = s.svc.DocumentResources()
		}
		for id, e := range entries {
			out = append(out, EntryView{
				ID:         id,
				Kind:       kind,
				Status:     e.Status,
				Error:      e.ErrorMessage(),
				Token:      e.Token,
				UpdatedAt:  e.UpdatedAt,
				Descriptor: e.Descriptor,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Loading: make(map[resource.Kind][]string),
		Errors:  make(map[resource.Kind]map[string]string),
		Cache:   s.svc.CacheStats(),
	}
	for _, kind := range []resource.Kind{resource.KindVideo, resource.KindDocument} {
		ids := make([]string, 0)
		for id := range s.svc.Loading(kind) {
			ids = append(ids, id)
		}
		resp.Loading[kind] = ids
		resp.Errors[kind] = s.svc.Errors(kind)
	}
	resp.Playing = s.svc.Playing()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	st := s.svc.Settings()
	writeJSON(w, http.StatusOK, map[string]any{
		"prefetchThresholdPercent": st.PrefetchThresholdPercent,
		"expiryLeadTimeMs":         st.ExpiryLeadTime.Milliseconds(),
		"refreshIntervalMs":        st.RefreshInterval.Milliseconds(),
		"visibilityThreshold":      st.VisibilityThreshold,
		"visibilityRootMargin":     st.VisibilityRootMargin,
		"maxEntries":               st.MaxEntries,
		"providerTimeoutMs":        st.ProviderTimeout.Milliseconds(),
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, sessionID, err := s.svc.Play(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondResource(w, resource.KindVideo, id, d, sessionID)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "sessionId query parameter is required")
		return
	}
	if playing, ok := s.svc.Playback(sessionID); !ok || playing != id || !s.svc.StopPlayback(sessionID) {
		writeProblem(w, http.StatusConflict, "not_playing", fmt.Sprintf("video %q is not playing in session %q", id, sessionID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ProgressRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxFormField))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "malformed progress body: "+err.Error())
		return
	}
	outcome := s.svc.TrackVideoProgress(r.Context(), req.SessionID, id, req.CurrentTime, req.Duration)
	if outcome == progress.OutcomeIgnored {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "currentTime and duration must be finite, non-negative and duration > 0")
		return
	}
	writeJSON(w, http.StatusOK, map[string]progress.Outcome{"outcome": outcome})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.svc.Download(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondResource(w, resource.KindDocument, id, d, "")
}

// handleUpload streams a multipart upload to the ingestion path. Metadata
// fields (title, description) must precede the file part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "expected multipart/form-data: "+err.Error())
		return
	}

	var meta provider.UploadMetadata
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeProblem(w, http.StatusBadRequest, "invalid_request", "missing file part")
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if part.FormName() != uploadFilePart {
			if err := readField(part, &meta); err != nil {
				writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			continue
		}

		meta.Filename = part.FileName()
		meta.ContentType = part.Header.Get("Content-Type")
		var id string
		if kind == resource.KindVideo {
			id, err = s.svc.UploadVideo(r.Context(), part, meta)
		} else {
			id, err = s.svc.UploadDocument(r.Context(), part, meta)
		}
		_ = part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id, "kind": string(kind)})
		return
	}
}

func readField(part *multipart.Part, meta *provider.UploadMetadata) error {
	defer func() { _ = part.Close() }()
	raw, err := io.ReadAll(io.LimitReader(part, maxFormField+1))
	if err != nil {
		return fmt.Errorf("read field %q: %w", part.FormName(), err)
	}
	if len(raw) > maxFormField {
		return fmt.Errorf("field %q exceeds %d bytes", part.FormName(), maxFormField)
	}
	switch part.FormName() {
	case "title":
		meta.Title = string(raw)
	case "description":
		meta.Description = string(raw)
	}
	return nil
}
