// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
)

// debounce gives the recorder time to finish its atomic rename before
// the new file is parsed.
const debounce = 200 * time.Millisecond

// Indexer keeps the catalog in sync with the recording output
// directory: a startup scan plus an fsnotify watch for files created
// or removed outside the daemon.
type Indexer struct {
	store *Store
	dir   string
}

// NewIndexer creates an indexer for dir backed by store.
func NewIndexer(store *Store, dir string) *Indexer {
	return &Indexer{store: store, dir: dir}
}

// Scan walks the output directory once and upserts every readable
// recording file, removing stale entries for files that are gone.
func (ix *Indexer) Scan(ctx context.Context) error {
	logger := log.WithComponent("library")

	known, err := ix.store.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})

	entries, err := os.ReadDir(ix.dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(ix.dir, de.Name())
		if err := ix.indexFile(ctx, path); err != nil {
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "library.index_failed").
				Str(log.FieldPath, path).
				Msg("skipping unreadable recording file")
			continue
		}
		seen[path] = struct{}{}
	}

	for _, e := range known {
		if _, ok := seen[e.Path]; ok {
			continue
		}
		if err := ix.store.Remove(ctx, e.Path); err != nil {
			return err
		}
	}

	logger.Info().
		Str(log.FieldEvent, "library.scan_complete").
		Int("files", len(seen)).
		Str(log.FieldOutputDir, ix.dir).
		Msg("recordings catalog refreshed")
	return nil
}

// Watch blocks until ctx is done, reacting to filesystem events in the
// output directory. Indexing failures are logged, never fatal.
func (ix *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(ix.dir); err != nil {
		return fmt.Errorf("watch output dir: %w", err)
	}

	logger := log.WithComponent("library")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				if err := ix.store.Remove(ctx, ev.Name); err != nil {
					logger.Warn().
						Err(err).
						Str(log.FieldEvent, "library.remove_failed").
						Str(log.FieldPath, ev.Name).
						Msg("could not drop catalog entry")
				}
			case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
				time.Sleep(debounce)
				if err := ix.indexFile(ctx, ev.Name); err != nil {
					logger.Warn().
						Err(err).
						Str(log.FieldEvent, "library.index_failed").
						Str(log.FieldPath, ev.Name).
						Msg("skipping unreadable recording file")
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "library.watch_error").
				Msg("filesystem watcher error")
		}
	}
}

// IndexFile parses one recording file and upserts its catalog entry.
// Used by the recorder on finalize and by the watcher.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	return ix.indexFile(ctx, path)
}

func (ix *Indexer) indexFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var rec recording.Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse recording: %w", err)
	}
	if rec.Version == "" {
		return fmt.Errorf("%s: missing format version", path)
	}
	return ix.store.Upsert(ctx, Entry{
		RecordingID:    rec.Metadata.RecordingID,
		Path:           path,
		FileName:       filepath.Base(path),
		HomeName:       rec.Metadata.HomeName,
		AwayName:       rec.Metadata.AwayName,
		StartedAt:      rec.Metadata.StartedAt,
		EndedAt:        rec.Metadata.EndedAt,
		TotalSnapshots: rec.Metadata.TotalSnapshots,
		SizeBytes:      info.Size(),
	})
}
