// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/uprightlabs/posture_monitor/internal/config"
	"github.com/uprightlabs/posture_monitor/internal/imu"
	"github.com/uprightlabs/posture_monitor/internal/orientation"
	"github.com/uprightlabs/posture_monitor/internal/posture"
	"github.com/uprightlabs/posture_monitor/internal/session"
	"github.com/uprightlabs/posture_monitor/internal/store"
)

// RunReplay feeds a recorded sample log through the full pipeline as one
// session and prints the sealed result. With persist the session also
// lands in the configured sqlite database, exactly as if the recorder
// had tracked it live.
func RunReplay(cfg *config.Config, logPath string, persist bool) error {
	src, err := imu.OpenReplay(logPath)
	if err != nil {
		return err
	}
	defer src.Close()

	est := orientation.NewEstimator(cfg.BlendAlpha)
	if saved, err := orientation.LoadOffset(cfg.CalibrationFile); err == nil {
		est.SetOffset(saved.Offset)
		log.Printf("replay: loaded zero offset from %s", cfg.CalibrationFile)
	}

	var dest session.Store = nopStore{}
	if persist {
		sq, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer sq.Close()
		dest = sq
	}

	agg := session.NewAggregator(dest)
	smoother := posture.NewSmoother(cfg.SmoothingAlpha)
	streak := posture.NewStreakTracker()
	var dwell posture.Dwell
	policy := posture.NewAlertPolicy(
		time.Duration(cfg.MinAlertDurationSec)*time.Second,
		time.Duration(cfg.AlertCooldownSec)*time.Second,
		time.Duration(cfg.ReinforceIntervalSec)*time.Second,
	)
	thresholds := cfg.Thresholds()

	var (
		started        bool
		lastTS         time.Time
		lastStreakTick time.Time
		warns, boosts  int
		milestonesSeen int
	)

	for {
		sample, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("replay: read error (skipping): %v", err)
			continue
		}

		now := sample.Timestamp
		if !started {
			if _, err := agg.Start(now); err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			lastStreakTick = now
			started = true
		}

		st := est.Fuse(sample)
		angle := st.Pitch
		if cfg.PrimaryAxis == "roll" {
			angle = st.Roll
		}
		smoothed := smoother.Next(angle)
		state := posture.Classify(smoothed, thresholds)

		if err := agg.Record(session.ClassifiedSample{Timestamp: now, Angle: smoothed, State: state}); err != nil {
			log.Printf("replay: record sample: %v", err)
		}

		if now.Sub(lastStreakTick) >= time.Second {
			lastStreakTick = now
			ss, milestone := streak.Tick(state)
			agg.NoteBestStreak(ss.BestSec)
			if milestone {
				milestonesSeen++
				fmt.Printf("%s  streak milestone: %ds\n", now.Format(time.TimeOnly), ss.CurrentSec)
			}
		}

		inState, goodFor := dwell.Observe(state, now)
		switch policy.Evaluate(state, inState, goodFor, now) {
		case posture.DecisionWarn:
			warns++
			fmt.Printf("%s  WARN: %s at %.1f°\n", now.Format(time.TimeOnly), state, smoothed)
		case posture.DecisionReinforce:
			boosts++
			fmt.Printf("%s  reinforce: sustained good posture\n", now.Format(time.TimeOnly))
		}

		lastTS = now
	}

	if !started {
		return fmt.Errorf("replay log %s contained no samples", logPath)
	}

	rec, err := agg.Stop(lastTS)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}

	fmt.Printf("\nsession %s\n", rec.ID)
	fmt.Printf("  %s → %s (%.0fs)\n",
		rec.StartTime.Format(time.RFC3339), rec.EndTime.Format(time.RFC3339), rec.TotalSec)
	fmt.Printf("  excellent %.0fs  good %.0fs  fair %.0fs  poor %.0fs\n",
		rec.ExcellentSec, rec.GoodSec, rec.FairSec, rec.PoorSec)
	fmt.Printf("  avg |angle| %.2f°  stddev %.2f°  worst %.1f°  best streak %ds\n",
		rec.AverageAngle, rec.AngleStdDev, rec.WorstAngle, rec.BestStreakSec)
	for i, m := range rec.TopWorst {
		fmt.Printf("  worst #%d: %.1f° at %s\n", i+1, m.Angle, m.Timestamp.Format(time.TimeOnly))
	}
	fmt.Printf("  %d warns, %d reinforcements, %d streak milestones\n", warns, boosts, milestonesSeen)
	if src.Skipped > 0 {
		fmt.Printf("  %d malformed rows skipped\n", src.Skipped)
	}
	if persist {
		fmt.Printf("  persisted to %s\n", cfg.DBPath)
	}

	return nil
}

// nopStore discards everything; replay uses it when not persisting.
type nopStore struct{}

func (nopStore) CreateSession(session.Record) error { return nil }

func (nopStore) InsertSample(string, session.ClassifiedSample) error { return nil }

func (nopStore) SealSession(session.Record) error { return nil }

func (nopStore) UpsertDailySummary(string, session.DailySummary) error { return nil }

func (nopStore) QueryLastNDays(int) ([]session.DailySummary, error) { return nil, nil }
