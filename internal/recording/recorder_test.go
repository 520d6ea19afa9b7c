// SPDX-License-Identifier: MIT

package recording

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorecast/scorecast/internal/scoreboard"
)

type staticSource struct {
	state scoreboard.State
}

func (s *staticSource) Current() scoreboard.State { return s.state }

func newTestRecorder(t *testing.T, opts Options) (*Recorder, *staticSource) {
	t.Helper()
	src := &staticSource{state: scoreboard.Defaults()}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 10 * time.Millisecond
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 20 * time.Millisecond
	}
	return NewRecorder(src, opts), src
}

func readRecording(t *testing.T, path string) Recording {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec Recording
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestStartCreatesInitialFile(t *testing.T) {
	dir := t.TempDir()
	rec, _ := newTestRecorder(t, Options{SampleInterval: time.Hour, FlushInterval: time.Hour})
	rec.now = func() time.Time {
		return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	}

	result, err := rec.Start(context.Background(), dir, "Lions", "Tigers")
	require.NoError(t, err)
	defer func() { _, _ = rec.Stop(context.Background()) }()

	assert.Equal(t, filepath.Join(dir, "Lions-Tigers-2024-01-01T10-00-00.json"), result.FilePath)
	assert.NotEmpty(t, result.RecordingID)

	// The file exists immediately, with an empty snapshot list.
	onDisk := readRecording(t, result.FilePath)
	assert.Equal(t, FormatVersion, onDisk.Version)
	assert.Equal(t, result.RecordingID, onDisk.Metadata.RecordingID)
	assert.Equal(t, "Lions", onDisk.Metadata.HomeName)
	assert.Equal(t, "Tigers", onDisk.Metadata.AwayName)
	assert.Empty(t, onDisk.Metadata.EndedAt)
	require.NotNil(t, onDisk.Snapshots)
	assert.Empty(t, onDisk.Snapshots)
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	dir := t.TempDir()
	rec, _ := newTestRecorder(t, Options{SampleInterval: time.Hour, FlushInterval: time.Hour})

	_, err := rec.Start(context.Background(), dir, "A", "B")
	require.NoError(t, err)

	require.NoError(t, rec.WriteSnapshot(Snapshot{}))
	countBefore := rec.Status().SnapshotCount

	_, err = rec.Start(context.Background(), dir, "C", "D")
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	// The first session is unaffected by the rejected start.
	assert.Equal(t, countBefore, rec.Status().SnapshotCount)

	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestStopWhileIdleIsRejected(t *testing.T) {
	rec, _ := newTestRecorder(t, Options{})
	_, err := rec.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

func TestWriteSnapshotWhileIdleIsRejected(t *testing.T) {
	rec, _ := newTestRecorder(t, Options{})
	err := rec.WriteSnapshot(Snapshot{})
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

func TestRelativeTimeIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	rec, _ := newTestRecorder(t, Options{SampleInterval: time.Hour, FlushInterval: time.Hour})

	_, err := rec.Start(context.Background(), dir, "A", "B")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, rec.WriteSnapshot(Snapshot{RelativeTime: 999}))
	}

	result, err := rec.Stop(context.Background())
	require.NoError(t, err)

	onDisk := readRecording(t, result.FilePath)
	require.Len(t, onDisk.Snapshots, 10)
	for i, snap := range onDisk.Snapshots {
		// Supplied values are overridden; the session owns the counter.
		assert.Equal(t, i, snap.RelativeTime)
	}
}

func TestSamplerCapturesState(t *testing.T) {
	dir := t.TempDir()
	rec, src := newTestRecorder(t, Options{})
	src.state.TeamHomeName = "Lions"
	src.state.TeamHomeScore = 3
	src.state.HalfPrefix = ""

	_, err := rec.Start(context.Background(), dir, "Lions", "Tigers")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.Status().SnapshotCount >= 3
	}, 2*time.Second, 5*time.Millisecond)

	result, err := rec.Stop(context.Background())
	require.NoError(t, err)

	onDisk := readRecording(t, result.FilePath)
	require.NotEmpty(t, onDisk.Snapshots)
	first := onDisk.Snapshots[0]
	assert.Equal(t, "Lions", first.TeamHomeName)
	assert.Equal(t, 3, first.TeamHomeScore)
	// Missing half prefix defaults at capture time.
	assert.Equal(t, scoreboard.DefaultHalfPrefix, first.HalfPrefix)
	assert.NotZero(t, first.Timestamp)
}

func TestStopFinalizesDurably(t *testing.T) {
	dir := t.TempDir()
	rec, _ := newTestRecorder(t, Options{SampleInterval: time.Hour, FlushInterval: time.Hour})

	_, err := rec.Start(context.Background(), dir, "A", "B")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.WriteSnapshot(Snapshot{}))
	}

	result, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalSnapshots)

	onDisk := readRecording(t, result.FilePath)
	assert.NotEmpty(t, onDisk.Metadata.EndedAt)
	assert.Equal(t, result.TotalSnapshots, onDisk.Metadata.TotalSnapshots)
	assert.Len(t, onDisk.Snapshots, result.TotalSnapshots)

	// All session state is cleared after stop.
	status := rec.Status()
	assert.False(t, status.IsRecording)
	assert.Zero(t, status.SnapshotCount)
	assert.Zero(t, status.Duration)
}

func TestPeriodicFlushWritesSnapshots(t *testing.T) {
	dir := t.TempDir()
	rec, _ := newTestRecorder(t, Options{SampleInterval: time.Hour, FlushInterval: 15 * time.Millisecond})

	result, err := rec.Start(context.Background(), dir, "A", "B")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, rec.WriteSnapshot(Snapshot{}))
	}

	require.Eventually(t, func() bool {
		return len(readRecording(t, result.FilePath).Snapshots) == 4
	}, 2*time.Second, 10*time.Millisecond)

	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestStatusObserverSeesSnapshots(t *testing.T) {
	dir := t.TempDir()
	statuses := make(chan Status, 64)
	rec, _ := newTestRecorder(t, Options{
		SampleInterval: time.Hour,
		FlushInterval:  time.Hour,
		Observer: func(s Status) {
			select {
			case statuses <- s:
			default:
			}
		},
	})

	_, err := rec.Start(context.Background(), dir, "A", "B")
	require.NoError(t, err)
	require.NoError(t, rec.WriteSnapshot(Snapshot{}))

	var sawRecording bool
	timeout := time.After(time.Second)
	for !sawRecording {
		select {
		case s := <-statuses:
			if s.IsRecording && s.SnapshotCount == 1 {
				sawRecording = true
			}
		case <-timeout:
			t.Fatal("observer never saw the captured snapshot")
		}
	}

	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestStartFailsWhenDirectoryMissing(t *testing.T) {
	rec, _ := newTestRecorder(t, Options{})
	_, err := rec.Start(context.Background(), filepath.Join(t.TempDir(), "missing", "deep"), "A", "B")
	require.Error(t, err)

	// Recorder stays idle after a failed start.
	assert.False(t, rec.Status().IsRecording)
}
