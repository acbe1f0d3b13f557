package app

import (
	"time"

	"github.com/uprightlabs/posture_monitor/internal/posture"
)

// AngleMessage is what the sampler publishes on the angle topic: the
// calibrated fusion output plus the coarse on-device verdict.
type AngleMessage struct {
	Angle float64   `json:"angle"` // primary axis, degrees
	Pitch float64   `json:"pitch"`
	Roll  float64   `json:"roll"`
	State string    `json:"state"` // coarse: good|mild|bad
	TS    time.Time `json:"ts"`
}

// StateMessage is what the recorder publishes on the state topic after
// smoothing and full classification.
type StateMessage struct {
	Angle float64       `json:"angle"` // smoothed, degrees
	Raw   float64       `json:"raw"`
	State posture.State `json:"state"`
	Score int           `json:"score"`
	TS    time.Time     `json:"ts"`
}

// Event types on the events topic.
const (
	EventWarn         = "warn"
	EventReinforce    = "reinforce"
	EventStreak       = "streak"
	EventSessionStart = "session_start"
	EventSessionStop  = "session_stop"
)

// EventMessage is published on the events topic for alerts, streak
// milestones and session lifecycle changes.
type EventMessage struct {
	Type      string    `json:"type"`
	State     string    `json:"state,omitempty"`
	StreakSec int       `json:"streak_sec,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	TS        time.Time `json:"ts"`
}

// Control commands accepted on the control topic.
const (
	ControlStart = "start"
	ControlStop  = "stop"
)
