// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
)

type startRecordingRequest struct {
	HomeName string `json:"homeName"`
	AwayName string `json:"awayName"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	// Team names default to the live scoreboard; the body may override
	// them for the file name.
	state := s.deps.Board.Current()
	req := startRecordingRequest{HomeName: state.TeamHomeName, AwayName: state.TeamAwayName}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	outputDir, err := s.deps.Settings.RecordingOutputDir()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := s.deps.Recorder.Start(r.Context(), outputDir, req.HomeName, req.AwayName)
	if errors.Is(err, recording.ErrAlreadyRecording) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info().
		Str(log.FieldEvent, "recording.started").
		Str(log.FieldRecordingID, result.RecordingID).
		Str(log.FieldPath, result.FilePath).
		Str(log.FieldRequestID, requestID(r)).
		Msg("recording session started")
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Recorder.Stop(r.Context())
	if errors.Is(err, recording.ErrNoActiveRecording) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Catalog the finished file right away; the fsnotify watcher would
	// pick it up eventually, this just avoids the delay.
	if s.deps.Indexer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Indexer.IndexFile(ctx, result.FilePath); err != nil {
			s.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "recording.index_failed").
				Str(log.FieldPath, result.FilePath).
				Msg("finished recording not cataloged")
		}
	}

	s.logger.Info().
		Str(log.FieldEvent, "recording.stopped").
		Str(log.FieldPath, result.FilePath).
		Int(log.FieldSnapshots, result.TotalSnapshots).
		Str(log.FieldRequestID, requestID(r)).
		Msg("recording session finalized")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Recorder.Status())
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": entries})
}
