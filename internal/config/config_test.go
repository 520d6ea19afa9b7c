// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, time.Second, cfg.SampleInterval)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":9000\"\nffmpeg_path: /usr/local/bin/ffmpeg\nsample_interval: 2s\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 2*time.Second, cfg.SampleInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o644))

	t.Setenv("SCORECAST_LISTEN", ":7070")
	t.Setenv("SCORECAST_FLUSH_INTERVAL_MS", "2500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 2500*time.Millisecond, cfg.FlushInterval)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listne_addr: \":9000\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_interval: -1s\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvDurationIgnoresGarbage(t *testing.T) {
	t.Setenv("SCORECAST_SAMPLE_INTERVAL_MS", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SampleInterval)
}
