// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/scoreboard"
)

func (s *Server) handleGetScoreboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Board.Current())
}

func (s *Server) handleUpdateScoreboard(w http.ResponseWriter, r *http.Request) {
	var upd scoreboard.Update
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode update: %w", err))
		return
	}

	state := s.deps.Board.Apply(upd)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleResetScoreboard(w http.ResponseWriter, r *http.Request) {
	s.deps.Board.Reset()
	s.logger.Info().
		Str(log.FieldEvent, "scoreboard.reset").
		Str(log.FieldRequestID, requestID(r)).
		Msg("scoreboard reset to defaults")
	writeJSON(w, http.StatusOK, s.deps.Board.Current())
}
