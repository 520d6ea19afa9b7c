// SPDX-License-Identifier: MIT

// Package settings persists operator-tunable daemon settings as a
// small JSON document in the data directory.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/scorecast/scorecast/internal/log"
)

const (
	fileName         = "settings.json"
	defaultOutputDir = "recordings"
	dirPermissions   = 0o755
	settingsFileMode = 0o644
)

// ErrNotADirectory rejects an output dir that does not exist or is a
// regular file.
var ErrNotADirectory = errors.New("not an existing directory")

// Settings is the on-disk document. Zero values mean "unset, use the
// default".
type Settings struct {
	RecordingOutputDir string `json:"recordingOutputDir,omitempty"`
}

// Store loads, serves and atomically persists daemon settings.
type Store struct {
	path    string
	dataDir string
	logger  zerolog.Logger

	mu  sync.Mutex
	cur Settings
}

// NewStore reads the settings document under dataDir, creating the
// data directory if needed. A missing file yields empty settings.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		path:    filepath.Join(dataDir, fileName),
		dataDir: dataDir,
		logger:  log.WithComponent("settings"),
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s.cur); err != nil {
		// A corrupt file must not brick the daemon. Log and fall back
		// to defaults; the next write replaces it.
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "settings.corrupt").
			Str(log.FieldPath, s.path).
			Msg("settings file unreadable, using defaults")
		s.cur = Settings{}
	}
	return s, nil
}

// RecordingOutputDir returns the configured output directory, or
// creates and returns the default <dataDir>/recordings when unset.
func (s *Store) RecordingOutputDir() (string, error) {
	s.mu.Lock()
	configured := s.cur.RecordingOutputDir
	s.mu.Unlock()

	if configured != "" {
		if err := checkDir(configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	def := filepath.Join(s.dataDir, defaultOutputDir)
	if err := os.MkdirAll(def, dirPermissions); err != nil {
		return "", fmt.Errorf("create default output dir: %w", err)
	}
	return def, nil
}

// SetRecordingOutputDir validates that path is an existing directory,
// stores its absolute form and persists the document atomically.
func (s *Store) SetRecordingOutputDir(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if err := checkDir(abs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur.RecordingOutputDir
	s.cur.RecordingOutputDir = abs
	if err := s.persistLocked(); err != nil {
		s.cur.RecordingOutputDir = prev
		return err
	}
	s.logger.Info().
		Str(log.FieldEvent, "settings.output_dir_changed").
		Str(log.FieldOutputDir, abs).
		Msg("recording output directory updated")
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, settingsFileMode); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotADirectory)
	}
	return nil
}
