// SPDX-License-Identifier: MIT

// Command subwaved is the subtitle-generation daemon: one process
// owning the job queue, the media pipeline and the local HTTP/SSE
// control surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/api"
	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/cache"
	"github.com/subwave-io/subwave/internal/catalog"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/engine"
	"github.com/subwave-io/subwave/internal/engine/supervisor"
	"github.com/subwave-io/subwave/internal/hardware"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/library"
	"github.com/subwave-io/subwave/internal/lifecycle"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/media"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/pipeline"
	"github.com/subwave-io/subwave/internal/queue"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/telemetry"
	"github.com/subwave-io/subwave/internal/types"
	"github.com/subwave-io/subwave/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// .env beside the binary is a developer convenience; absence is
	// the normal case.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectivePath := *configPath
	if effectivePath == "" {
		dataDir := config.ParseString("SUBWAVE_DATA", "./data")
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.NewLoader(effectivePath, version.Version).Load()
	if err != nil {
		// Falls back to the default logger setup; the configured
		// level never made it out of the file.
		fallbackLogger := log.WithComponent("daemon")
		fallbackLogger.Fatal().Err(err).Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: "subwave"})
	logger := log.WithComponent("daemon")

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.Server.Listen).
		Str("data_dir", cfg.Paths.DataDir).
		Msg("starting subwaved")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("daemon failed")
	}
	logger.Info().Msg("subwaved stopped")
}

// lazyJobs defers the scheduler reference so the pipeline runner can
// be constructed before the scheduler that drives it.
type lazyJobs struct {
	s *queue.Scheduler
}

func (l *lazyJobs) Get(id string) (*types.Job, error)    { return l.s.Get(id) }
func (l *lazyJobs) Update(id string, fn func(*types.Job)) { l.s.Update(id, fn) }

func run(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	closer := lifecycle.NewCloser()

	root := storage.NewRoot(cfg.Paths.DataDir)
	if err := root.Ensure(); err != nil {
		return err
	}

	if cfg.Tools.SkipToolPreflight {
		logger.Warn().Msg("tool preflight skipped by configuration")
	} else if err := engine.Preflight(cfg.Tools); err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, version.Version)
	if err != nil {
		return err
	}
	closer.Register("telemetry", provider.Shutdown)

	profile := hardware.NewProber(cfg.Tools.HardwareProbe).Probe(ctx)
	logger.Info().
		Str("tier", string(profile.Tier)).
		Str("gpu", profile.GPUName).
		Int("vram_mib", profile.VRAMMiB).
		Msg("hardware probed")

	store := cache.New(cfg.Cache)
	closer.Register("cache", func(context.Context) error { return store.Close() })

	b := bus.New()
	busCtx, stopBus := context.WithCancel(context.Background())
	go b.Run(busCtx)
	closer.Register("bus", func(context.Context) error {
		stopBus()
		b.Close()
		return nil
	})

	cat, err := catalog.Open(filepath.Join(cfg.Paths.DataDir, "catalog.db"))
	if err != nil {
		return err
	}
	closer.Register("catalog", func(context.Context) error { return cat.Close() })

	ff := ffmpeg.NewRunner(cfg.Tools.FFmpeg)
	prober := ffmpeg.NewProber(cfg.Tools.FFprobe)
	journalStore := journal.NewStore(root)

	models := supervisor.New(profile.Tier)
	closer.Register("models", models.Drain)

	artifacts := media.New(root, b, ff, prober, cfg.Media)
	closer.Register("media", artifacts.Drain)

	primary := engine.NewCLIRecognizer("primary", cfg.Tools.Recognizer)
	var fallback engine.Recognizer
	if !cfg.Tools.DisableFallback && cfg.Tools.RecognizerFallback != "" {
		fallback = engine.NewCLIRecognizer("fallback", cfg.Tools.RecognizerFallback)
	}

	jobs := &lazyJobs{}
	runner := pipeline.New(pipeline.Deps{
		Root:       root,
		Journal:    journalStore,
		Bus:        b,
		Jobs:       jobs,
		FFmpeg:     ff,
		Prober:     prober,
		Models:     models,
		Primary:    primary,
		Fallback:   fallback,
		Aligner:    engine.NewCLIAligner(cfg.Tools.Aligner, cfg.Engine.Device),
		Separator:  engine.NewCLISeparator(cfg.Tools.Separator, cfg.Engine.Device, cfg.Separator),
		Cache:      store,
		Artifacts:  artifacts,
		Hardware:   profile.Tier,
		Circuit:    cfg.Circuit,
		Musicality: cfg.Musicality,
		Split:      cfg.Split,
		Sentence:   cfg.Sentence,
		Separators: cfg.Separator,
	})

	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	sched := queue.New(runCtx, root, b, runner, cfg.Queue, catalog.NewRecorder(cat))
	jobs.s = sched
	closer.Register("queue", func(c context.Context) error {
		stopRuns()
		return sched.Drain(c)
	})

	restoreIncomplete(ctx, cfg, cat, journalStore, sched, logger)

	var lib *library.Library
	if cfg.Paths.InputDir != "" {
		lib = library.New(cfg.Paths.InputDir)
		if err := lib.Scan(ctx); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Paths.InputDir).Msg("library scan failed")
		}
		go func() {
			if err := lib.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("library watch stopped")
			}
		}()
	}

	registry := lifecycle.NewRegistry(cfg.Heartbeat, func() bool {
		snap := sched.Snapshot()
		return snap.Active != "" || len(snap.Queue) > 0
	})
	go func() { _ = registry.Watch(ctx) }()

	server := api.New(api.Deps{
		Config:    &cfg,
		Root:      root,
		Bus:       b,
		Queue:     sched,
		Journal:   journalStore,
		Catalog:   cat,
		Media:     artifacts,
		Lifecycle: registry,
		Library:   lib,
		Prober:    prober,
		Cache:     store,
		Ready: func() error {
			if _, err := os.Stat(root.JobsDir()); err != nil {
				return types.E(types.KindIO, "daemon.ready", err)
			}
			return nil
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Listen).Msg("http server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		go func() {
			logger.Info().Str("addr", cfg.Server.MetricsListen).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received, shutting down")
	case <-registry.ShutdownRequested():
		logger.Info().Msg("lifecycle shutdown requested")
	case err := <-httpErr:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop ingress first so nothing new arrives while the pipeline
	// checkpoints and drains.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return closer.Shutdown(shutdownCtx)
}

// restoreIncomplete re-registers jobs a previous daemon run left
// unfinished. The catalog row is the base; a checkpoint's settings
// snapshot wins over the row when both exist. Restored jobs enter the
// paused set and wait for an explicit resume.
func restoreIncomplete(ctx context.Context, cfg config.AppConfig, cat *catalog.Catalog,
	js *journal.Store, sched *queue.Scheduler, logger zerolog.Logger) {
	records, err := cat.Incomplete(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list incomplete jobs")
		return
	}
	for _, rec := range records {
		job := &types.Job{
			ID:        rec.ID,
			InputPath: rec.SourcePath,
			Filename:  rec.DisplayName,
			Status:    rec.Status,
			Phase:     rec.Phase,
			Progress:  rec.Progress,
			Settings:  cfg.DefaultSettings(),
			Times:     types.JobTimes{Created: rec.CreatedAt},
		}
		if rec.SettingsJSON != "" {
			_ = json.Unmarshal([]byte(rec.SettingsJSON), &job.Settings)
		}
		if cp, err := js.Load(rec.ID); err == nil {
			job.Settings = cp.OriginalSettings
			job.TotalSegments = cp.TotalSegments
			job.ProcessedSegments = len(cp.ProcessedIndices)
		}
		if err := sched.Restore(job); err != nil {
			logger.Warn().Err(err).Str("job_id", rec.ID).Msg("restore skipped")
			continue
		}
		logger.Info().Str("job_id", rec.ID).Str("phase", string(rec.Phase)).
			Msg("job restored as paused")
	}
}
