// SPDX-License-Identifier: MIT

// Package scoreboard holds the authoritative scoreboard state and its
// single mutation entry point.
package scoreboard

// PresetCount is the number of timer presets carried by the state.
const PresetCount = 3

// State is one complete scoreboard snapshot as pushed to viewers.
type State struct {
	TeamHomeName  string `json:"teamHomeName"`
	TeamAwayName  string `json:"teamAwayName"`
	TeamHomeColor string `json:"teamHomeColor"`
	TeamAwayColor string `json:"teamAwayColor"`
	TeamHomeScore int    `json:"teamHomeScore"`
	TeamAwayScore int    `json:"teamAwayScore"`

	// Timer is the elapsed game time in seconds.
	Timer        int  `json:"timer"`
	TimerRunning bool `json:"isTimerRunning"`

	Half       int    `json:"half"`
	HalfPrefix string `json:"halfPrefix"`

	// TimerPresets holds preset timer values in seconds, selectable
	// from the control surface.
	TimerPresets [PresetCount]int `json:"timerPresets"`

	// EventLogo is an opaque reference to an event logo asset.
	EventLogo string `json:"eventLogo,omitempty"`
}

// DefaultHalfPrefix is applied wherever a half label is rendered or
// recorded without an explicit prefix.
const DefaultHalfPrefix = "PERIODO"

// Defaults returns the state a fresh scoreboard starts with.
func Defaults() State {
	return State{
		TeamHomeName:  "HOME",
		TeamAwayName:  "AWAY",
		TeamHomeColor: "#00ff00",
		TeamAwayColor: "#ff0000",
		TeamHomeScore: 0,
		TeamAwayScore: 0,
		Timer:         0,
		TimerRunning:  false,
		Half:          1,
		HalfPrefix:    DefaultHalfPrefix,
	}
}

// Update is a partial state mutation. Nil fields keep their previous
// value; set fields replace it.
type Update struct {
	TeamHomeName  *string `json:"teamHomeName,omitempty"`
	TeamAwayName  *string `json:"teamAwayName,omitempty"`
	TeamHomeColor *string `json:"teamHomeColor,omitempty"`
	TeamAwayColor *string `json:"teamAwayColor,omitempty"`
	TeamHomeScore *int    `json:"teamHomeScore,omitempty"`
	TeamAwayScore *int    `json:"teamAwayScore,omitempty"`
	Timer         *int    `json:"timer,omitempty"`
	TimerRunning  *bool   `json:"isTimerRunning,omitempty"`
	Half          *int    `json:"half,omitempty"`
	HalfPrefix    *string `json:"halfPrefix,omitempty"`

	TimerPresets *[PresetCount]int `json:"timerPresets,omitempty"`
	EventLogo    *string           `json:"eventLogo,omitempty"`
}
