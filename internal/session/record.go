package session

import (
	"time"

	"github.com/uprightlabs/posture_monitor/internal/posture"
)

// ClassifiedSample is one tick of the classified stream: the smoothed
// primary-axis angle and the state derived from it.
type ClassifiedSample struct {
	Timestamp time.Time     `json:"ts"`
	Angle     float64       `json:"angle"`
	State     posture.State `json:"state"`
}

// Moment marks a notably bad posture sample inside a session.
type Moment struct {
	Timestamp time.Time `json:"ts"`
	Angle     float64   `json:"angle"`
}

// Record is the per-session ledger. Mutated once per classified sample
// while active, sealed on stop and immutable afterwards. Durations are
// wall-clock seconds accounted from sample deltas, so the per-state
// buckets always add up to TotalSec.
type Record struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Active    bool      `json:"active"`

	TotalSec     float64 `json:"total_sec"`
	ExcellentSec float64 `json:"excellent_sec"`
	GoodSec      float64 `json:"good_sec"`
	FairSec      float64 `json:"fair_sec"`
	PoorSec      float64 `json:"poor_sec"`

	SampleCount   int64   `json:"sample_count"`
	AverageAngle  float64 `json:"average_angle"` // mean of |angle|
	AngleStdDev   float64 `json:"angle_std_dev"` // filled at seal time
	WorstAngle    float64 `json:"worst_angle"`   // signed angle of the largest |angle| seen
	BestStreakSec int     `json:"best_streak_sec"`

	TopWorst []Moment `json:"top_worst"` // ≤3, by |angle| desc, ties most-recent-first
}

// GoodOrBetterSec is the time spent at Good or Excellent.
func (r Record) GoodOrBetterSec() float64 {
	return r.ExcellentSec + r.GoodSec
}

// BadSec is the time spent at Fair or Poor.
func (r Record) BadSec() float64 {
	return r.FairSec + r.PoorSec
}

// DailySummary accumulates sealed sessions for one local calendar day.
// Created on the day's first session, updated additively afterwards,
// never overwritten wholesale.
type DailySummary struct {
	Date         string  `json:"date"` // YYYY-MM-DD, local time
	SessionCount int64   `json:"session_count"`
	TotalSec     float64 `json:"total_sec"`
	GoodSec      float64 `json:"good_sec"`
	BadSec       float64 `json:"bad_sec"`
}

// WeeklySummary groups daily summaries by ISO week at query time; it is
// derived data, never stored.
type WeeklySummary struct {
	Year         int     `json:"year"`
	Week         int     `json:"week"`
	Days         int     `json:"days"`
	SessionCount int64   `json:"session_count"`
	TotalSec     float64 `json:"total_sec"`
	GoodSec      float64 `json:"good_sec"`
	BadSec       float64 `json:"bad_sec"`
}

// DayKey formats the local calendar date a session (or summary row) is
// keyed by.
func DayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// Fold returns the daily-summary delta a sealed session contributes.
func (r Record) Fold() DailySummary {
	return DailySummary{
		Date:         DayKey(r.StartTime),
		SessionCount: 1,
		TotalSec:     r.TotalSec,
		GoodSec:      r.GoodOrBetterSec(),
		BadSec:       r.BadSec(),
	}
}
