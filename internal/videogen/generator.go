// SPDX-License-Identifier: MIT

package videogen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
	"github.com/scorecast/scorecast/internal/render"
)

var (
	// ErrGenerationInProgress rejects a second concurrent Generate call.
	ErrGenerationInProgress = errors.New("video generation already in progress")
	// ErrCancelled is the normalized failure for a user-cancelled run.
	ErrCancelled = errors.New("Generation cancelled")
)

// Overall progress weighting across the pipeline. Parsing ends at 5,
// rendering at 60, encoding at 95, cleanup at 100.
const (
	weightParsingEnd   = 5
	weightRenderingEnd = 60
	weightEncodingEnd  = 95
)

// Config describes one video-export run.
type Config struct {
	RecordingPath   string  `json:"recordingPath"`
	OutputPath      string  `json:"outputPath"`
	FrameRate       int     `json:"frameRate"`       // output fps, sane range 1-60
	ScoreboardScale float64 `json:"scoreboardScale"` // render scale, sane range 0.5-3.0
}

// Validate checks the run parameters without touching the filesystem,
// so callers can reject a bad request before accepting the job.
func (c Config) Validate() error {
	if c.RecordingPath == "" {
		return errors.New("recording path is required")
	}
	if c.OutputPath == "" {
		return errors.New("output path is required")
	}
	if c.FrameRate < 1 || c.FrameRate > 60 {
		return fmt.Errorf("frame rate %d out of range 1-60", c.FrameRate)
	}
	if c.ScoreboardScale < 0.5 || c.ScoreboardScale > 3.0 {
		return fmt.Errorf("scoreboard scale %v out of range 0.5-3.0", c.ScoreboardScale)
	}
	return nil
}

// FrameEncoder assembles a rendered frame sequence into a video.
// Encoder is the production implementation; tests substitute stubs.
type FrameEncoder interface {
	Encode(ctx context.Context, framesDir, outputPath string, frameRate, totalSnapshots int, onFrames func(processed, total int)) error
}

// Generator runs at most one export pipeline at a time. Progress events
// stream to every subscriber; cancellation is cooperative and checked
// at frame and step boundaries.
type Generator struct {
	encoder  FrameEncoder
	tempRoot string
	fanout   *progressFanout
	logger   zerolog.Logger

	mu         sync.Mutex
	generating bool
	cancel     context.CancelFunc
	cancelled  bool
}

// NewGenerator builds an idle generator. tempRoot is where per-job
// frame directories are created; empty means the OS temp dir.
func NewGenerator(encoder FrameEncoder, tempRoot string) *Generator {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	return &Generator{
		encoder:  encoder,
		tempRoot: tempRoot,
		fanout:   newProgressFanout(),
		logger:   log.WithComponent("videogen"),
	}
}

// Subscribe registers a progress listener. The returned stop function
// unregisters it and closes the channel.
func (g *Generator) Subscribe() (<-chan Progress, func()) {
	ch := g.fanout.subscribe()
	return ch, func() { g.fanout.unsubscribe(ch) }
}

// IsGenerating reports whether a run is in flight.
func (g *Generator) IsGenerating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generating
}

// Cancel requests a cooperative abort of the in-flight run. The current
// frame finishes, the encoder process is killed, temp files are removed
// and the run ends in the error step with ErrCancelled. No-op while
// idle.
func (g *Generator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.generating || g.cancel == nil {
		return
	}
	g.cancelled = true
	g.cancel()
}

// LoadRecording parses and structurally validates a recording file:
// the version, metadata and snapshots fields must all be present. Deep
// schema validation is not attempted.
func (g *Generator) LoadRecording(path string) (*recording.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording file: %w", err)
	}

	var probe struct {
		Version   string                `json:"version"`
		Metadata  *recording.Metadata   `json:"metadata"`
		Snapshots *[]recording.Snapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse recording file: %w", err)
	}
	if probe.Version == "" || probe.Metadata == nil || probe.Snapshots == nil {
		return nil, errors.New("invalid recording file format: missing version, metadata or snapshots")
	}

	return &recording.Recording{
		Version:   probe.Version,
		Metadata:  *probe.Metadata,
		Snapshots: *probe.Snapshots,
	}, nil
}

// Generate runs the full pipeline synchronously and returns the output
// path. A second call while one is running fails immediately with
// ErrGenerationInProgress and does not disturb the in-flight run.
func (g *Generator) Generate(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	runCtx, err := g.begin(ctx)
	if err != nil {
		return "", err
	}
	return g.finish(runCtx, cfg)
}

// GenerateAsync validates cfg and claims the single-flight slot before
// returning, then runs the pipeline in the background. Rejections
// (invalid config, a run already in flight) surface synchronously;
// every failure after acceptance is published as a StepError progress
// event, so subscribers are never left waiting on a job that silently
// died.
func (g *Generator) GenerateAsync(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	runCtx, err := g.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		_, _ = g.finish(runCtx, cfg)
	}()
	return nil
}

// begin claims the single-flight slot and arms cancellation.
func (g *Generator) begin(ctx context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generating {
		return nil, ErrGenerationInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.generating = true
	g.cancel = cancel
	g.cancelled = false
	return runCtx, nil
}

// finish executes an accepted run and releases the slot on every exit
// path. Failures are normalized and published before returning.
func (g *Generator) finish(runCtx context.Context, cfg Config) (string, error) {
	defer func() {
		g.mu.Lock()
		if g.cancel != nil {
			g.cancel()
		}
		g.generating = false
		g.cancel = nil
		g.mu.Unlock()
	}()

	outputPath, err := g.run(runCtx, cfg)
	if err != nil {
		err = g.normalizeError(err)
		g.fanout.publish(Progress{
			Step:    StepError,
			Message: "Generation failed",
			Error:   err.Error(),
		})
		g.logger.Error().
			Err(err).
			Str(log.FieldEvent, "videogen.failed").
			Str(log.FieldStep, string(StepError)).
			Str(log.FieldPath, cfg.RecordingPath).
			Msg("video generation failed")
		return "", err
	}
	return outputPath, nil
}

func (g *Generator) run(ctx context.Context, cfg Config) (string, error) {
	// Step 1: parsing.
	g.fanout.publish(Progress{Step: StepParsing, Message: "Loading recording file..."})
	rec, err := g.LoadRecording(cfg.RecordingPath)
	if err != nil {
		return "", err
	}
	totalFrames := len(rec.Snapshots)
	if totalFrames == 0 {
		return "", errors.New("recording contains no snapshots")
	}
	g.fanout.publish(Progress{
		Step:            StepParsing,
		StepProgress:    100,
		OverallProgress: weightParsingEnd,
		Message:         fmt.Sprintf("Loaded %d snapshots", totalFrames),
		TotalFrames:     totalFrames,
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// Step 2: render every snapshot to a numbered temp frame. The temp
	// directory is removed on every exit path.
	tempDir, err := os.MkdirTemp(g.tempRoot, "scorecast-frames-")
	if err != nil {
		return "", fmt.Errorf("create frame directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			g.logger.Warn().Err(err).Str(log.FieldPath, tempDir).Msg("remove frame directory")
		}
	}()

	if err := g.renderFrames(ctx, rec.Snapshots, cfg.ScoreboardScale, tempDir); err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// Step 3: encode.
	g.fanout.publish(Progress{
		Step:            StepEncoding,
		OverallProgress: weightRenderingEnd,
		Message:         "Encoding video...",
	})
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	err = g.encoder.Encode(ctx, tempDir, cfg.OutputPath, cfg.FrameRate, totalFrames, func(processed, total int) {
		percent := 0
		if total > 0 {
			percent = min(100, processed*100/total)
		}
		g.fanout.publish(Progress{
			Step:            StepEncoding,
			StepProgress:    percent,
			OverallProgress: min(weightEncodingEnd, weightRenderingEnd+percent*(weightEncodingEnd-weightRenderingEnd)/100),
			Message:         fmt.Sprintf("Encoding video... (%d/%d frames)", processed, total),
			CurrentFrame:    processed,
			TotalFrames:     total,
		})
	})
	if err != nil {
		return "", err
	}

	// Step 4: cleanup happens via the deferred RemoveAll; report it.
	g.fanout.publish(Progress{
		Step:            StepCleanup,
		OverallProgress: weightEncodingEnd,
		Message:         "Cleaning up temporary files...",
	})

	// Step 5: complete.
	g.fanout.publish(Progress{
		Step:            StepComplete,
		StepProgress:    100,
		OverallProgress: 100,
		Message:         "Video generation complete",
	})
	g.logger.Info().
		Str(log.FieldEvent, "videogen.complete").
		Str(log.FieldStep, string(StepComplete)).
		Str(log.FieldPath, cfg.OutputPath).
		Int(log.FieldSnapshots, totalFrames).
		Msg("video generation complete")
	return cfg.OutputPath, nil
}

// renderFrames draws each snapshot in order onto a reusable off-screen
// surface and writes it as a zero-padded PNG. Cancellation is checked
// before every frame; the surface is torn down on every exit path.
func (g *Generator) renderFrames(ctx context.Context, snapshots []recording.Snapshot, scale float64, tempDir string) error {
	surface, err := render.NewSurface(scale)
	if err != nil {
		return err
	}
	defer surface.Close()

	total := len(snapshots)
	for i, snap := range snapshots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.fanout.publish(Progress{
			Step:            StepRendering,
			StepProgress:    i * 100 / total,
			OverallProgress: weightParsingEnd + i*(weightRenderingEnd-weightParsingEnd)/total,
			Message:         fmt.Sprintf("Rendering frame %d of %d...", i+1, total),
			CurrentFrame:    i + 1,
			TotalFrames:     total,
		})

		framePath := filepath.Join(tempDir, fmt.Sprintf(framePattern, i))
		f, err := os.Create(framePath)
		if err != nil {
			return fmt.Errorf("create frame file: %w", err)
		}
		if err := surface.RenderPNG(f, snap); err != nil {
			_ = f.Close()
			return fmt.Errorf("render frame %d: %w", i, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}

// normalizeError maps any failure of a cancelled run to ErrCancelled,
// so callers can tell user aborts from genuine errors.
func (g *Generator) normalizeError(err error) error {
	g.mu.Lock()
	cancelled := g.cancelled
	g.mu.Unlock()
	if cancelled || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}
