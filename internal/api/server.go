// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the delivery service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/lessonmedia/internal/api/middleware"
	"github.com/ManuGH/lessonmedia/internal/delivery"
	"github.com/ManuGH/lessonmedia/internal/health"
)

// Config tunes the HTTP surface.
type Config struct {
	RateLimitPerMinute int
	MaxUploadBytes     int64
	TracingService     string
	AccessLog          bool
}

// Server routes HTTP requests to the delivery service.
type Server struct {
	svc    *delivery.Service
	health *health.Manager
	cfg    Config
	router *chi.Mux
}

// New builds the router.
func New(svc *delivery.Service, hm *health.Manager, cfg Config) *Server {
	if svc == nil || hm == nil {
		panic("api: New requires a delivery service and a health manager")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	s := &Server{svc: svc, health: hm, cfg: cfg}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         s.cfg.AccessLog,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestLimit: s.cfg.RateLimitPerMinute, WindowSize: rateWindow}))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/settings", s.handleSettings)
		r.Get("/resources", s.handleList)

		r.Post("/resources/video/{id}/play", s.handlePlay)
		r.Post("/resources/video/{id}/stop", s.handleStop)
		r.Post("/resources/video/{id}/progress", s.handleProgress)
		r.Post("/resources/document/{id}/download", s.handleDownload)

		r.Get("/resources/{kind}/{id}", s.handleFetch)
		r.Get("/resources/{kind}/{id}/expiring", s.handleExpiring)
		r.With(middleware.RefreshRateLimit()).Post("/resources/{kind}/{id}/refresh", s.handleRefresh)

		r.Post("/uploads/{kind}", s.handleUpload)
	})
	return r
}
