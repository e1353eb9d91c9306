// SPDX-License-Identifier: MIT

// Package api binds the scheduler, pipeline journal, media supervisor
// and lifecycle registry to the HTTP/SSE surface. Handlers are
// stateless; all mutable state lives in the components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/api/middleware"
	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/cache"
	"github.com/subwave-io/subwave/internal/catalog"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/library"
	"github.com/subwave-io/subwave/internal/lifecycle"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/media"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/queue"
	"github.com/subwave-io/subwave/internal/storage"
)

// Deps wires the components the handlers bind. Library, Catalog,
// Prober and Cache are optional; handlers that need them reject
// requests when they are absent.
type Deps struct {
	Config    *config.AppConfig
	Root      *storage.Root
	Bus       *bus.Bus
	Queue     *queue.Scheduler
	Journal   *journal.Store
	Catalog   *catalog.Catalog
	Media     *media.Supervisor
	Lifecycle *lifecycle.Registry
	Library   *library.Library
	Prober    *ffmpeg.Prober
	Cache     cache.Cache

	// Ready reports readiness; non-nil errors turn /readyz into a 503.
	Ready func() error
}

// Server is the HTTP surface.
type Server struct {
	d      Deps
	router *chi.Mux
	logger zerolog.Logger
}

// New builds the server with the canonical middleware stack and all
// routes registered.
func New(d Deps) *Server {
	if d.Cache == nil {
		d.Cache = cache.NewNoOp()
	}
	s := &Server{
		d:      d,
		router: chi.NewRouter(),
		logger: log.WithComponent("api"),
	}

	stack := middleware.StackConfig{RateLimitRPM: 600}
	if d.Config != nil && d.Config.Telemetry.Enabled {
		stack.TracingService = "subwave"
	}
	middleware.Apply(s.router, stack)
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Jobs.
		r.With(middleware.UploadRateLimit()).Post("/upload", s.handleUpload)
		r.Post("/create-job", s.handleCreateJob)
		r.Post("/start", s.handleStart)
		r.Post("/pause/{jobID}", s.handlePause)
		r.Post("/resume/{jobID}", s.handleResume)
		r.Post("/cancel/{jobID}", s.handleCancel)
		r.Post("/prioritize/{jobID}", s.handlePrioritize)
		r.Post("/reorder-queue", s.handleReorderQueue)
		r.Get("/status/{jobID}", s.handleStatus)
		r.Get("/queue-status", s.handleQueueStatus)
		r.Get("/download/{jobID}", s.handleDownload)
		r.Get("/incomplete-jobs", s.handleIncompleteJobs)
		r.Get("/check-resume/{jobID}", s.handleCheckResume)
		r.Post("/restore-job/{jobID}", s.handleRestoreJob)
		r.Get("/transcription-text/{jobID}", s.handleTranscriptionText)
		r.Delete("/jobs/{jobID}", s.handleDeleteJob)
		r.Get("/library", s.handleLibrary)

		// Streaming.
		r.Get("/stream/{jobID}", s.handleJobStream)
		r.Get("/events/global", s.handleGlobalStream)

		// Media.
		r.Route("/media/{jobID}", func(r chi.Router) {
			r.Get("/video", s.handleMediaVideo)
			r.Get("/audio", s.handleMediaAudio)
			r.Get("/peaks", s.handleMediaPeaks)
			r.Get("/thumbnails", s.handleMediaThumbnails)
			r.Get("/srt", s.handleMediaSRTGet)
			r.Post("/srt", s.handleMediaSRTPost)
			r.Get("/subtitles", s.handleMediaSubtitles)
			r.Get("/info", s.handleMediaInfo)
			r.Get("/progressive-status", s.handleProgressiveStatus)
			r.Post("/post-process", s.handlePostProcess)
			r.Post("/generate-preview", s.handleGeneratePreview)
		})

		// System.
		r.Post("/system/register", s.handleSystemRegister)
		r.Post("/system/heartbeat", s.handleSystemHeartbeat)
		r.Post("/system/unregister", s.handleSystemUnregister)
		r.Post("/shutdown", s.handleShutdown)
		r.Get("/ping", s.handlePing)
	})
}
