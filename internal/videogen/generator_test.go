// SPDX-License-Identifier: MIT

package videogen

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorecast/scorecast/internal/recording"
)

// stubEncoder stands in for the external encoder process.
type stubEncoder struct {
	framesDir      string
	totalSnapshots int
	frameRate      int
	blockUntilCtx  bool
	failWith       error
}

func (s *stubEncoder) Encode(ctx context.Context, framesDir, outputPath string, frameRate, totalSnapshots int, onFrames func(processed, total int)) error {
	s.framesDir = framesDir
	s.totalSnapshots = totalSnapshots
	s.frameRate = frameRate
	if s.blockUntilCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.failWith != nil {
		return s.failWith
	}
	total := totalSnapshots * frameRate
	if onFrames != nil {
		onFrames(total/2, total)
		onFrames(total, total)
	}
	return os.WriteFile(outputPath, []byte("webm"), 0o644)
}

func writeTestRecording(t *testing.T, snapshots int) string {
	t.Helper()
	rec := recording.Recording{
		Version: recording.FormatVersion,
		Metadata: recording.Metadata{
			RecordingID:    "11111111-2222-3333-4444-555555555555",
			StartedAt:      "2024-01-01T10:00:00Z",
			EndedAt:        "2024-01-01T10:05:00Z",
			HomeName:       "Lions",
			AwayName:       "Tigers",
			TotalSnapshots: snapshots,
		},
		Snapshots: []recording.Snapshot{},
	}
	for i := 0; i < snapshots; i++ {
		rec.Snapshots = append(rec.Snapshots, recording.Snapshot{
			Timestamp:     1704103200000 + int64(i)*1000,
			RelativeTime:  i,
			TeamHomeName:  "Lions",
			TeamAwayName:  "Tigers",
			TeamHomeColor: "#00ff00",
			TeamAwayColor: "#ff0000",
			Timer:         i,
			Half:          1,
			HalfPrefix:    "PERIODO",
		})
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rec.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testConfig(t *testing.T, recordingPath string) Config {
	t.Helper()
	return Config{
		RecordingPath:   recordingPath,
		OutputPath:      filepath.Join(t.TempDir(), "out", "video.webm"),
		FrameRate:       30,
		ScoreboardScale: 1.0,
	}
}

func TestLoadRecording(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())

	rec, err := gen.LoadRecording(writeTestRecording(t, 3))
	require.NoError(t, err)
	assert.Equal(t, "Lions", rec.Metadata.HomeName)
	assert.Len(t, rec.Snapshots, 3)
}

func TestLoadRecordingStructuralValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing version", `{"metadata":{"recordingId":"x"},"snapshots":[]}`},
		{"missing metadata", `{"version":"1.0","snapshots":[]}`},
		{"missing snapshots", `{"version":"1.0","metadata":{"recordingId":"x"}}`},
		{"not json", `not a recording`},
	}
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := gen.LoadRecording(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRecordingMissingFile(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	_, err := gen.LoadRecording(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestGenerateRendersFramesAndEncodes(t *testing.T) {
	enc := &stubEncoder{}
	gen := NewGenerator(enc, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 10))

	var encodingTotals []int
	events, stop := gen.Subscribe()
	defer stop()

	out, err := gen.Generate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.OutputPath, out)

	// Ten snapshots rendered, encoded at 30fps → 300 expected frames.
	assert.Equal(t, 10, enc.totalSnapshots)
	assert.Equal(t, 30, enc.frameRate)

	for {
		var done bool
		select {
		case p := <-events:
			if p.Step == StepEncoding && p.TotalFrames > 0 {
				encodingTotals = append(encodingTotals, p.TotalFrames)
			}
			if p.Step == StepComplete {
				done = true
			}
		default:
			done = true
		}
		if done {
			break
		}
	}
	require.NotEmpty(t, encodingTotals)
	for _, total := range encodingTotals {
		assert.Equal(t, 300, total)
	}

	// Output file written by the encoder; temp frames already gone.
	_, err = os.Stat(cfg.OutputPath)
	assert.NoError(t, err)
	_, err = os.Stat(enc.framesDir)
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateWritesFramesInOrder(t *testing.T) {
	var observed []string
	enc := &stubEncoder{}
	gen := NewGenerator(enc, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 4))

	// Capture the frame listing from inside the encode step, before
	// cleanup removes the directory.
	capture := &captureEncoder{inner: enc, observed: &observed}
	gen.encoder = capture

	_, err := gen.Generate(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, []string{
		"frame_00000.png",
		"frame_00001.png",
		"frame_00002.png",
		"frame_00003.png",
	}, observed)
}

type captureEncoder struct {
	inner    FrameEncoder
	observed *[]string
}

func (c *captureEncoder) Encode(ctx context.Context, framesDir, outputPath string, frameRate, totalSnapshots int, onFrames func(int, int)) error {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		*c.observed = append(*c.observed, e.Name())
	}
	return c.inner.Encode(ctx, framesDir, outputPath, frameRate, totalSnapshots, onFrames)
}

func TestGenerateRejectsEmptyRecording(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 0))

	_, err := gen.Generate(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshots")
}

func TestGenerateSingleFlight(t *testing.T) {
	enc := &stubEncoder{blockUntilCtx: true}
	gen := NewGenerator(enc, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 2))

	firstDone := make(chan error, 1)
	go func() {
		_, err := gen.Generate(context.Background(), cfg)
		firstDone <- err
	}()

	require.Eventually(t, gen.IsGenerating, 2*time.Second, 5*time.Millisecond)

	_, err := gen.Generate(context.Background(), testConfig(t, writeTestRecording(t, 2)))
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	gen.Cancel()
	assert.ErrorIs(t, <-firstDone, ErrCancelled)
	assert.False(t, gen.IsGenerating())
}

func TestCancelCleansUpAndNormalizesError(t *testing.T) {
	enc := &stubEncoder{blockUntilCtx: true}
	gen := NewGenerator(enc, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 3))

	events, stop := gen.Subscribe()
	defer stop()

	done := make(chan error, 1)
	go func() {
		_, err := gen.Generate(context.Background(), cfg)
		done <- err
	}()

	// Wait for the run to reach the encoder, then cancel mid-encode.
	require.Eventually(t, func() bool { return enc.framesDir != "" }, 2*time.Second, 5*time.Millisecond)
	gen.Cancel()

	err := <-done
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "Generation cancelled", err.Error())

	// The temp frame directory is gone once the job settles.
	_, statErr := os.Stat(enc.framesDir)
	assert.True(t, os.IsNotExist(statErr))

	// The progress stream ended in the error step with the normalized
	// message.
	var last Progress
	for {
		var stopDrain bool
		select {
		case p := <-events:
			last = p
		default:
			stopDrain = true
		}
		if stopDrain {
			break
		}
	}
	assert.Equal(t, StepError, last.Step)
	assert.Equal(t, "Generation cancelled", last.Error)
}

func TestGenerateSurfacesEncoderFailure(t *testing.T) {
	enc := &stubEncoder{failWith: os.ErrPermission}
	gen := NewGenerator(enc, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 2))

	_, err := gen.Generate(context.Background(), cfg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestProgressIsMonotonic(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 5))

	events, stop := gen.Subscribe()
	defer stop()

	_, err := gen.Generate(context.Background(), cfg)
	require.NoError(t, err)

	lastOverall := -1
	sawComplete := false
	for {
		var doneDrain bool
		select {
		case p := <-events:
			require.GreaterOrEqual(t, p.OverallProgress, lastOverall,
				"overall progress regressed at step %s", p.Step)
			lastOverall = p.OverallProgress
			if p.Step == StepComplete {
				sawComplete = true
				assert.Equal(t, 100, p.OverallProgress)
			}
		default:
			doneDrain = true
		}
		if doneDrain {
			break
		}
	}
	assert.True(t, sawComplete)
}

func TestGenerateAsyncRejectsInvalidConfigSynchronously(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 2))
	cfg.FrameRate = 120

	err := gen.GenerateAsync(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame rate")
	assert.False(t, gen.IsGenerating())
}

func TestGenerateAsyncRejectsWhenBusy(t *testing.T) {
	enc := &stubEncoder{blockUntilCtx: true}
	gen := NewGenerator(enc, t.TempDir())

	require.NoError(t, gen.GenerateAsync(context.Background(), testConfig(t, writeTestRecording(t, 2))))
	require.Eventually(t, gen.IsGenerating, 2*time.Second, 5*time.Millisecond)

	// The slot is claimed before GenerateAsync returns, so a second
	// call loses deterministically instead of racing the goroutine.
	err := gen.GenerateAsync(context.Background(), testConfig(t, writeTestRecording(t, 2)))
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	gen.Cancel()
	require.Eventually(t, func() bool { return !gen.IsGenerating() }, 2*time.Second, 5*time.Millisecond)
}

func TestGenerateAsyncPublishesFailureAfterAcceptance(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	cfg := testConfig(t, writeTestRecording(t, 0))

	events, stop := gen.Subscribe()
	defer stop()

	// Zero snapshots passes parameter validation but fails in the run;
	// the failure must reach subscribers as a StepError event.
	require.NoError(t, gen.GenerateAsync(context.Background(), cfg))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-events:
			if p.Step == StepError {
				assert.Contains(t, p.Error, "no snapshots")
				return
			}
		case <-deadline:
			t.Fatal("no error event published for failed run")
		}
	}
}

func TestGenerateValidatesConfig(t *testing.T) {
	gen := NewGenerator(&stubEncoder{}, t.TempDir())
	recPath := writeTestRecording(t, 1)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing recording path", Config{OutputPath: "out.webm", FrameRate: 30, ScoreboardScale: 1}},
		{"missing output path", Config{RecordingPath: recPath, FrameRate: 30, ScoreboardScale: 1}},
		{"frame rate too low", Config{RecordingPath: recPath, OutputPath: "out.webm", FrameRate: 0, ScoreboardScale: 1}},
		{"frame rate too high", Config{RecordingPath: recPath, OutputPath: "out.webm", FrameRate: 120, ScoreboardScale: 1}},
		{"scale too small", Config{RecordingPath: recPath, OutputPath: "out.webm", FrameRate: 30, ScoreboardScale: 0.1}},
		{"scale too large", Config{RecordingPath: recPath, OutputPath: "out.webm", FrameRate: 30, ScoreboardScale: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gen.Generate(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
