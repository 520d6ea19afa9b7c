// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/videogen"
)

type generateVideoRequest struct {
	RecordingPath   string  `json:"recordingPath"`
	OutputPath      string  `json:"outputPath,omitempty"`
	FrameRate       int     `json:"frameRate"`
	ScoreboardScale float64 `json:"scoreboardScale"`
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req generateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.FrameRate == 0 {
		req.FrameRate = 30
	}
	if req.ScoreboardScale == 0 {
		req.ScoreboardScale = 1.0
	}
	if req.OutputPath == "" {
		out, err := s.defaultVideoPath(req.RecordingPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		req.OutputPath = out
	}

	cfg := videogen.Config{
		RecordingPath:   req.RecordingPath,
		OutputPath:      req.OutputPath,
		FrameRate:       req.FrameRate,
		ScoreboardScale: req.ScoreboardScale,
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The run outlives the request; acceptance is atomic, progress and
	// failures stream over /ws/video.
	if err := s.deps.Generator.GenerateAsync(context.Background(), cfg); err != nil {
		if errors.Is(err, videogen.ErrGenerationInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Info().
		Str(log.FieldEvent, "video.generate_started").
		Str(log.FieldPath, cfg.RecordingPath).
		Int(log.FieldFrameRate, cfg.FrameRate).
		Float64(log.FieldScale, cfg.ScoreboardScale).
		Str(log.FieldRequestID, requestID(r)).
		Msg("video generation requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"outputPath": cfg.OutputPath})
}

func (s *Server) handleCancelVideo(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Generator.IsGenerating() {
		writeError(w, http.StatusConflict, errors.New("no video generation in progress"))
		return
	}
	s.deps.Generator.Cancel()
	s.logger.Info().
		Str(log.FieldEvent, "video.generate_cancelled").
		Str(log.FieldRequestID, requestID(r)).
		Msg("video generation cancel requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// defaultVideoPath derives <outputDir>/<recording base>.webm.
func (s *Server) defaultVideoPath(recordingPath string) (string, error) {
	dir, err := s.deps.Settings.RecordingOutputDir()
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(recordingPath), filepath.Ext(recordingPath))
	if base == "" || base == "." {
		base = "scoreboard"
	}
	return filepath.Join(dir, base+".webm"), nil
}
