// SPDX-License-Identifier: MIT

package videogen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scorecast/scorecast/internal/log"
)

var (
	encoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorecast_encoder_start_total",
		Help: "Total number of encoder process starts",
	}, []string{"result"})
	encoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorecast_encoder_exit_total",
		Help: "Total number of encoder process exits",
	}, []string{"reason"})
)

// framePattern is the zero-padded frame sequence consumed by ffmpeg.
const framePattern = "frame_%05d.png"

// Encoder assembles a numbered PNG sequence into a VP9/WebM video with
// an alpha channel, treating the input as one frame per recorded second
// and resampling to the requested output frame rate.
type Encoder struct {
	binPath string
}

// NewEncoder builds an encoder using binPath, defaulting to "ffmpeg"
// found on PATH.
func NewEncoder(binPath string) *Encoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Encoder{binPath: binPath}
}

// Encode runs the external encoder over the frame sequence in
// framesDir. onFrames, when non-nil, receives the encoder's processed
// output-frame count against the expected total
// (totalSnapshots × frameRate). Cancelling ctx kills the process.
func (e *Encoder) Encode(ctx context.Context, framesDir, outputPath string, frameRate, totalSnapshots int, onFrames func(processed, total int)) error {
	logger := log.WithComponentFromContext(ctx, "encoder")
	totalOutputFrames := totalSnapshots * frameRate

	args := []string{
		"-y",
		"-framerate", "1", // each snapshot covers one recorded second
		"-i", filepath.Join(framesDir, framePattern),
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p", // keep the alpha channel
		"-auto-alt-ref", "0", // required for alpha with vp9
		"-b:v", "2M",
		"-r", strconv.Itoa(frameRate),
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create encoder stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create encoder stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		encoderStartTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("start encoder: %w", err)
	}
	encoderStartTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Str(log.FieldEvent, "encoder.started").
		Str(log.FieldEncoder, e.binPath).
		Int(log.FieldFrameRate, frameRate).
		Int(log.FieldSnapshots, totalSnapshots).
		Msg("encoder process started")

	// Keep the last stderr line for error reporting; ffmpeg writes its
	// failure reason there.
	var lastErrLine string
	errScanner := bufio.NewScanner(stderr)
	errDone := make(chan struct{})
	go func() {
		defer close(errDone)
		for errScanner.Scan() {
			if line := strings.TrimSpace(errScanner.Text()); line != "" {
				lastErrLine = line
			}
		}
	}()

	lastFrame := 0
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := strings.CutPrefix(line, "frame="); ok {
			if frames, convErr := strconv.Atoi(strings.TrimSpace(value)); convErr == nil {
				lastFrame = frames
				if onFrames != nil {
					onFrames(frames, totalOutputFrames)
				}
			}
		}
		if strings.HasPrefix(line, "progress=end") {
			lastFrame = totalOutputFrames
			if onFrames != nil {
				onFrames(totalOutputFrames, totalOutputFrames)
			}
		}
	}

	<-errDone
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			encoderExitTotal.WithLabelValues("killed").Inc()
			return ctx.Err()
		}
		encoderExitTotal.WithLabelValues("error").Inc()
		if lastErrLine != "" {
			return fmt.Errorf("encoder failed: %s", lastErrLine)
		}
		return fmt.Errorf("encoder failed: %w", err)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read encoder output: %w", err)
	}

	encoderExitTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Str(log.FieldEvent, "encoder.finished").
		Int(log.FieldFrame, lastFrame).
		Msg("encoder process finished")
	return nil
}
