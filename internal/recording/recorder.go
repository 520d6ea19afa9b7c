// SPDX-License-Identifier: MIT

package recording

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/scoreboard"
)

var (
	snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorecast_recording_snapshots_total",
		Help: "Total number of snapshots captured across all sessions",
	})
	flushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorecast_recording_flush_failures_total",
		Help: "Total number of failed periodic session flushes",
	})
)

const (
	defaultSampleInterval = time.Second
	defaultFlushInterval  = 5 * time.Second
)

// StateSource supplies the live scoreboard state to the sampler.
type StateSource interface {
	Current() scoreboard.State
}

// StatusObserver is notified after every captured snapshot and on
// lifecycle transitions.
type StatusObserver func(Status)

// Options tune the recorder's periodic tasks.
type Options struct {
	SampleInterval time.Duration // default 1s
	FlushInterval  time.Duration // default 5s
	Observer       StatusObserver
}

// Recorder samples the scoreboard into a durable session file. At most
// one session is active at a time; Start while active and Stop while
// idle are rejected.
type Recorder struct {
	source   StateSource
	sample   time.Duration
	flush    time.Duration
	observer StatusObserver
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sess *session
}

type session struct {
	rec       *Recording
	path      string
	startedAt time.Time

	nextRelative int
	flushedCount int // snapshot count at the last successful flush

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder builds an idle recorder reading from source.
func NewRecorder(source StateSource, opts Options) *Recorder {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = defaultSampleInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Recorder{
		source:   source,
		sample:   opts.SampleInterval,
		flush:    opts.FlushInterval,
		observer: opts.Observer,
		logger:   log.WithComponent("recorder"),
		now:      time.Now,
	}
}

// Start begins a new session. The session file is created immediately
// with an empty snapshot list so it exists even if the process dies
// before the first flush, then the sampler and flusher start.
func (r *Recorder) Start(ctx context.Context, outputDir, homeName, awayName string) (StartResult, error) {
	r.mu.Lock()
	if r.sess != nil {
		r.mu.Unlock()
		return StartResult{}, ErrAlreadyRecording
	}

	start := r.now().UTC()
	rec := &Recording{
		Version: FormatVersion,
		Metadata: Metadata{
			RecordingID: uuid.NewString(),
			StartedAt:   start.Format(time.RFC3339),
			HomeName:    homeName,
			AwayName:    awayName,
		},
		Snapshots: []Snapshot{},
	}
	path := filepath.Join(outputDir, FileName(homeName, awayName, start))

	ctx = log.ContextWithRecordingID(ctx, rec.Metadata.RecordingID)
	if err := writeRecording(ctx, path, rec); err != nil {
		r.mu.Unlock()
		return StartResult{}, fmt.Errorf("create recording file: %w", err)
	}

	// The periodic tasks outlive the request but keep its recording ID
	// for correlated flush logging.
	taskCtx, cancel := context.WithCancel(
		log.ContextWithRecordingID(context.Background(), rec.Metadata.RecordingID))
	s := &session{
		rec:       rec,
		path:      path,
		startedAt: start,
		cancel:    cancel,
	}
	r.sess = s

	s.wg.Add(2)
	go r.runSampler(taskCtx, s)
	go r.runFlusher(taskCtx, s)
	r.mu.Unlock()

	r.logger.Info().
		Str(log.FieldEvent, "recording.started").
		Str(log.FieldRecordingID, rec.Metadata.RecordingID).
		Str(log.FieldPath, path).
		Msg("recording started")

	r.notify()
	return StartResult{FilePath: path, RecordingID: rec.Metadata.RecordingID}, nil
}

// Stop halts both periodic tasks, stamps the end timestamp, flushes the
// finalized session to disk and transitions to idle. No state of the
// old session is retained.
func (r *Recorder) Stop(ctx context.Context) (StopResult, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return StopResult{}, ErrNoActiveRecording
	}
	// Leave the active state first so a concurrent Stop or sampler tick
	// cannot touch the session while it is being finalized.
	r.sess = nil
	r.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.rec.Metadata.EndedAt = r.now().UTC().Format(time.RFC3339)
	s.rec.Metadata.TotalSnapshots = len(s.rec.Snapshots)
	result := StopResult{FilePath: s.path, TotalSnapshots: len(s.rec.Snapshots)}

	ctx = log.ContextWithRecordingID(ctx, s.rec.Metadata.RecordingID)
	if err := writeRecording(ctx, s.path, s.rec); err != nil {
		r.notify()
		return result, fmt.Errorf("finalize recording file: %w", err)
	}

	r.logger.Info().
		Str(log.FieldEvent, "recording.stopped").
		Str(log.FieldRecordingID, s.rec.Metadata.RecordingID).
		Str(log.FieldPath, s.path).
		Int(log.FieldSnapshots, result.TotalSnapshots).
		Msg("recording stopped")

	r.notify()
	return result, nil
}

// WriteSnapshot appends a caller-supplied snapshot instead of waiting
// for the internal sampler. The session still owns relative-time
// assignment, so the supplied value is replaced by the next counter.
func (r *Recorder) WriteSnapshot(snap Snapshot) error {
	r.mu.Lock()
	s := r.sess
	if s == nil {
		r.mu.Unlock()
		return ErrNoActiveRecording
	}
	snap.RelativeTime = s.nextRelative
	s.nextRelative++
	if snap.Timestamp == 0 {
		snap.Timestamp = r.now().UnixMilli()
	}
	if snap.HalfPrefix == "" {
		snap.HalfPrefix = scoreboard.DefaultHalfPrefix
	}
	s.rec.Snapshots = append(s.rec.Snapshots, snap)
	s.rec.Metadata.TotalSnapshots = len(s.rec.Snapshots)
	r.mu.Unlock()

	snapshotsTotal.Inc()
	r.notify()
	return nil
}

// Status reports the recorder state. Duration is wall-clock elapsed
// since start, recomputed on each call.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return Status{}
	}
	return Status{
		IsRecording:   true,
		FilePath:      r.sess.path,
		SnapshotCount: len(r.sess.rec.Snapshots),
		Duration:      int(r.now().Sub(r.sess.startedAt).Seconds()),
	}
}

func (r *Recorder) runSampler(ctx context.Context, s *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(r.sample)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.capture(s)
		}
	}
}

func (r *Recorder) capture(s *session) {
	r.mu.Lock()
	if r.sess != s {
		r.mu.Unlock()
		return
	}
	snap := SnapshotOf(r.source.Current(), r.now().UnixMilli(), s.nextRelative)
	s.nextRelative++
	s.rec.Snapshots = append(s.rec.Snapshots, snap)
	s.rec.Metadata.TotalSnapshots = len(s.rec.Snapshots)
	r.mu.Unlock()

	snapshotsTotal.Inc()
	r.notify()
}

func (r *Recorder) runFlusher(ctx context.Context, s *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flushSession(ctx, s)
		}
	}
}

// flushSession serialises the in-memory session as-is to disk. A sample
// appended concurrently is either included in this flush or in the next
// one; the atomic replace means no partial file is ever observable.
func (r *Recorder) flushSession(ctx context.Context, s *session) {
	r.mu.Lock()
	if r.sess != s {
		r.mu.Unlock()
		return
	}
	n := len(s.rec.Snapshots)
	if n == s.flushedCount {
		r.mu.Unlock()
		return
	}
	snapshot := *s.rec
	snapshot.Snapshots = append([]Snapshot(nil), s.rec.Snapshots[:n]...)
	snapshot.Metadata.TotalSnapshots = n
	path := s.path
	r.mu.Unlock()

	if err := writeRecording(ctx, path, &snapshot); err != nil {
		// Recoverable: the session stays in memory and the next tick
		// retries. Data is only lost if the process dies before a
		// later flush succeeds.
		flushFailures.Inc()
		r.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "recording.flush_failed").
			Str(log.FieldPath, path).
			Msg("session flush failed")
		return
	}

	r.mu.Lock()
	if r.sess == s && n > s.flushedCount {
		s.flushedCount = n
	}
	r.mu.Unlock()
}

func (r *Recorder) notify() {
	if r.observer != nil {
		r.observer(r.Status())
	}
}
