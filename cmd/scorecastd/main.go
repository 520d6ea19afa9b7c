// SPDX-License-Identifier: MIT

// Command scorecastd runs the scoreboard broadcast daemon: live state
// for overlays, recording sessions and scoreboard video generation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scorecast/scorecast/internal/api"
	"github.com/scorecast/scorecast/internal/broadcast"
	"github.com/scorecast/scorecast/internal/config"
	"github.com/scorecast/scorecast/internal/library"
	sclog "github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
	"github.com/scorecast/scorecast/internal/scoreboard"
	"github.com/scorecast/scorecast/internal/settings"
	"github.com/scorecast/scorecast/internal/videogen"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	sclog.Configure(sclog.Config{
		Level:   "info",
		Service: "scorecastd",
		Version: version,
	})
	logger := sclog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(sclog.FieldEvent, "config.load_failed").
			Str(sclog.FieldPath, *configPath).
			Msg("failed to load configuration")
	}

	sclog.Configure(sclog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().
			Err(err).
			Str(sclog.FieldEvent, "daemon.failed").
			Msg("daemon exited with error")
	}
	logger.Info().
		Str(sclog.FieldEvent, "daemon.stopped").
		Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	set, err := settings.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init settings: %w", err)
	}
	if cfg.RecordingOutputDir != "" {
		if err := set.SetRecordingOutputDir(cfg.RecordingOutputDir); err != nil {
			return fmt.Errorf("apply configured output dir: %w", err)
		}
	}
	outputDir, err := set.RecordingOutputDir()
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	catalog, err := library.NewStore(filepath.Join(cfg.DataDir, "library.db"))
	if err != nil {
		return fmt.Errorf("open recordings catalog: %w", err)
	}
	defer func() { _ = catalog.Close() }()

	indexer := library.NewIndexer(catalog, outputDir)
	if err := indexer.Scan(ctx); err != nil {
		return fmt.Errorf("initial catalog scan: %w", err)
	}

	hub := broadcast.NewHub(scoreboard.Defaults())
	board := scoreboard.NewStore(hub)
	clock := scoreboard.NewClock(board, cfg.ClockInterval)

	var server *api.Server
	recorder := recording.NewRecorder(board, recording.Options{
		SampleInterval: cfg.SampleInterval,
		FlushInterval:  cfg.FlushInterval,
		Observer: func(st recording.Status) {
			server.RecordingStatusChanged(st)
		},
	})

	generator := videogen.NewGenerator(videogen.NewEncoder(cfg.FFmpegPath), os.TempDir())

	server = api.New(api.Deps{
		Board:     board,
		Hub:       hub,
		Recorder:  recorder,
		Generator: generator,
		Settings:  set,
		Catalog:   catalog,
		Indexer:   indexer,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := clock.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := indexer.Watch(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info().
			Str(sclog.FieldEvent, "daemon.listening").
			Str("addr", cfg.ListenAddr).
			Str(sclog.FieldOutputDir, outputDir).
			Msg("daemon started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		// Stop accepting requests, then settle background work: an
		// active recording is finalized, a running generation is
		// cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().
				Err(err).
				Str(sclog.FieldEvent, "daemon.shutdown_timeout").
				Msg("forcing http server close")
			_ = httpServer.Close()
		}

		if recorder.Status().IsRecording {
			if _, err := recorder.Stop(shutdownCtx); err != nil {
				logger.Warn().
					Err(err).
					Str(sclog.FieldEvent, "recording.shutdown_stop_failed").
					Msg("could not finalize recording on shutdown")
			}
		}
		generator.Cancel()
		return nil
	})

	return g.Wait()
}
