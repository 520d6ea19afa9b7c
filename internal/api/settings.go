// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/scorecast/scorecast/internal/settings"
)

type outputDirPayload struct {
	OutputDir string `json:"outputDir"`
}

func (s *Server) handleGetOutputDir(w http.ResponseWriter, _ *http.Request) {
	dir, err := s.deps.Settings.RecordingOutputDir()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outputDirPayload{OutputDir: dir})
}

func (s *Server) handleSetOutputDir(w http.ResponseWriter, r *http.Request) {
	var req outputDirPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.OutputDir == "" {
		writeError(w, http.StatusBadRequest, errors.New("outputDir must not be empty"))
		return
	}

	if err := s.deps.Settings.SetRecordingOutputDir(req.OutputDir); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, settings.ErrNotADirectory) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}

	dir, err := s.deps.Settings.RecordingOutputDir()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outputDirPayload{OutputDir: dir})
}
