// SPDX-License-Identifier: MIT

// Package recording captures periodic scoreboard snapshots into durable
// session files and exposes the recording lifecycle.
package recording

import (
	"errors"

	"github.com/scorecast/scorecast/internal/scoreboard"
)

// FormatVersion is written into every recording file.
const FormatVersion = "1.0"

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNoActiveRecording is returned by Stop and WriteSnapshot while idle.
	ErrNoActiveRecording = errors.New("no active recording")
)

// Snapshot is one sampled instant of the scoreboard within a session.
// RelativeTime starts at 0 and increases by exactly 1 per sample.
type Snapshot struct {
	Timestamp    int64 `json:"timestamp"` // epoch milliseconds
	RelativeTime int   `json:"relativeTime"`

	TeamHomeName  string `json:"teamHomeName"`
	TeamAwayName  string `json:"teamAwayName"`
	TeamHomeColor string `json:"teamHomeColor"`
	TeamAwayColor string `json:"teamAwayColor"`
	TeamHomeScore int    `json:"teamHomeScore"`
	TeamAwayScore int    `json:"teamAwayScore"`
	Timer         int    `json:"timer"`
	Half          int    `json:"half"`
	HalfPrefix    string `json:"halfPrefix"`
}

// SnapshotOf maps the live state into the snapshot shape, defaulting
// any missing optional field.
func SnapshotOf(state scoreboard.State, timestampMs int64, relative int) Snapshot {
	prefix := state.HalfPrefix
	if prefix == "" {
		prefix = scoreboard.DefaultHalfPrefix
	}
	return Snapshot{
		Timestamp:     timestampMs,
		RelativeTime:  relative,
		TeamHomeName:  state.TeamHomeName,
		TeamAwayName:  state.TeamAwayName,
		TeamHomeColor: state.TeamHomeColor,
		TeamAwayColor: state.TeamAwayColor,
		TeamHomeScore: state.TeamHomeScore,
		TeamAwayScore: state.TeamAwayScore,
		Timer:         state.Timer,
		Half:          state.Half,
		HalfPrefix:    prefix,
	}
}

// Metadata describes one recording session.
type Metadata struct {
	RecordingID    string `json:"recordingId"`
	StartedAt      string `json:"startedAt"`
	EndedAt        string `json:"endedAt"` // empty while active
	HomeName       string `json:"homeName"`
	AwayName       string `json:"awayName"`
	TotalSnapshots int    `json:"totalSnapshots"`
}

// Recording is the on-disk session format.
type Recording struct {
	Version   string     `json:"version"`
	Metadata  Metadata   `json:"metadata"`
	Snapshots []Snapshot `json:"snapshots"`
}

// StartResult reports a successfully started session.
type StartResult struct {
	FilePath    string `json:"filePath"`
	RecordingID string `json:"recordingId"`
}

// StopResult reports a finalized session.
type StopResult struct {
	FilePath       string `json:"filePath"`
	TotalSnapshots int    `json:"totalSnapshots"`
}

// Status is a point-in-time view of the recorder.
type Status struct {
	IsRecording   bool   `json:"isRecording"`
	FilePath      string `json:"filePath,omitempty"`
	SnapshotCount int    `json:"snapshotCount"`
	Duration      int    `json:"duration"` // seconds since start, 0 while idle
}
