// SPDX-License-Identifier: MIT

package scoreboard

import (
	"sync"
)

// Publisher receives the full state after every mutation. The broadcast
// hub satisfies this.
type Publisher interface {
	Publish(State)
}

// Store owns the live scoreboard state. All mutation goes through
// Apply, which serialises writers and publishes the complete resulting
// state. Reads return copies, never the live value.
type Store struct {
	mu    sync.Mutex
	state State
	pub   Publisher
}

// NewStore builds a store seeded with Defaults. pub may be nil, in
// which case updates are applied without notification.
func NewStore(pub Publisher) *Store {
	return &Store{state: Defaults(), pub: pub}
}

// Current returns a copy of the live state.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply merges the update into the current state, clamps numeric fields
// to their documented ranges, publishes the full new state and returns
// it. Scores and timer never drop below 0; half never drops below 1.
func (s *Store) Apply(u Update) State {
	s.mu.Lock()
	if u.TeamHomeName != nil {
		s.state.TeamHomeName = *u.TeamHomeName
	}
	if u.TeamAwayName != nil {
		s.state.TeamAwayName = *u.TeamAwayName
	}
	if u.TeamHomeColor != nil {
		s.state.TeamHomeColor = *u.TeamHomeColor
	}
	if u.TeamAwayColor != nil {
		s.state.TeamAwayColor = *u.TeamAwayColor
	}
	if u.TeamHomeScore != nil {
		s.state.TeamHomeScore = clampMin(*u.TeamHomeScore, 0)
	}
	if u.TeamAwayScore != nil {
		s.state.TeamAwayScore = clampMin(*u.TeamAwayScore, 0)
	}
	if u.Timer != nil {
		s.state.Timer = clampMin(*u.Timer, 0)
	}
	if u.TimerRunning != nil {
		s.state.TimerRunning = *u.TimerRunning
	}
	if u.Half != nil {
		s.state.Half = clampMin(*u.Half, 1)
	}
	if u.HalfPrefix != nil {
		s.state.HalfPrefix = *u.HalfPrefix
	}
	if u.TimerPresets != nil {
		presets := *u.TimerPresets
		for i := range presets {
			presets[i] = clampMin(presets[i], 0)
		}
		s.state.TimerPresets = presets
	}
	if u.EventLogo != nil {
		s.state.EventLogo = *u.EventLogo
	}
	next := s.state

	// Publish under the lock so subscribers observe updates in the
	// exact order they were applied. Hub delivery never blocks.
	if s.pub != nil {
		s.pub.Publish(next)
	}
	s.mu.Unlock()
	return next
}

// Reset restores the defaults and publishes the reset state.
func (s *Store) Reset() State {
	s.mu.Lock()
	s.state = Defaults()
	next := s.state
	if s.pub != nil {
		s.pub.Publish(next)
	}
	s.mu.Unlock()
	return next
}

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}
