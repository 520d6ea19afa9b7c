// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// defaults < YAML file < environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved daemon configuration.
type Config struct {
	ListenAddr         string        `yaml:"listen_addr"`
	DataDir            string        `yaml:"data_dir"`
	RecordingOutputDir string        `yaml:"recording_output_dir"`
	FFmpegPath         string        `yaml:"ffmpeg_path"`
	SampleInterval     time.Duration `yaml:"sample_interval"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
	ClockInterval      time.Duration `yaml:"clock_interval"`
	LogLevel           string        `yaml:"log_level"`
	LogService         string        `yaml:"log_service"`
}

func defaults() Config {
	return Config{
		ListenAddr:     ":8090",
		DataDir:        "./data",
		FFmpegPath:     "ffmpeg",
		SampleInterval: time.Second,
		FlushInterval:  5 * time.Second,
		ClockInterval:  time.Second,
		LogLevel:       "info",
		LogService:     "scorecastd",
	}
}

// Load resolves the configuration. filePath may be empty; a missing
// file at an explicitly given path is an error, env overrides always
// apply last.
func Load(filePath string) (Config, error) {
	cfg := defaults()

	if filePath != "" {
		if err := mergeFile(&cfg, filePath); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	cfg.ListenAddr = envString("SCORECAST_LISTEN", cfg.ListenAddr)
	cfg.DataDir = envString("SCORECAST_DATA", cfg.DataDir)
	cfg.RecordingOutputDir = envString("SCORECAST_OUTPUT_DIR", cfg.RecordingOutputDir)
	cfg.FFmpegPath = envString("SCORECAST_FFMPEG", cfg.FFmpegPath)
	cfg.SampleInterval = envDurationMS("SCORECAST_SAMPLE_INTERVAL_MS", cfg.SampleInterval)
	cfg.FlushInterval = envDurationMS("SCORECAST_FLUSH_INTERVAL_MS", cfg.FlushInterval)
	cfg.ClockInterval = envDurationMS("SCORECAST_CLOCK_INTERVAL_MS", cfg.ClockInterval)
	cfg.LogLevel = envString("SCORECAST_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = envString("SCORECAST_LOG_SERVICE", cfg.LogService)
}

func (c Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.FFmpegPath == "" {
		errs = append(errs, errors.New("ffmpeg_path must not be empty"))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, errors.New("sample_interval must be positive"))
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush_interval must be positive"))
	}
	if c.ClockInterval <= 0 {
		errs = append(errs, errors.New("clock_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
