// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"

	"github.com/uprightlabs/posture_monitor/internal/config"
	"github.com/uprightlabs/posture_monitor/internal/posture"
	"github.com/uprightlabs/posture_monitor/internal/session"
	"github.com/uprightlabs/posture_monitor/internal/store"
)

// RunRecorder consumes the sampler's angle stream and runs the client
// pipeline: smooth, classify, streaks and alerts, session aggregation,
// sqlite persistence. Sessions start and stop over the control topic.
func RunRecorder(cfg *config.Config) error {
	log.Println("starting posture recorder (MQTT → sqlite)")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Printf("recorder: store open at %s", cfg.DBPath)

	r := newRecorder(cfg, st)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDRecorder)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	r.client = client
	log.Printf("recorder: connected to MQTT broker at %s", cfg.MQTTBroker)

	// A single consumer goroutine serializes the whole pipeline. The
	// subscribe callbacks never block: if the consumer lags, the oldest
	// queued ticks are evicted so it resumes with fresh ones.
	token := client.Subscribe(cfg.TopicAngle, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m AngleMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("recorder: angle unmarshal error: %v", err)
			return
		}
		queueLatest(r.samples, m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("recorder: subscribed to %s", cfg.TopicAngle)

	control := make(chan string, 4)
	ctlToken := client.Subscribe(cfg.TopicControl, 0, func(_ mqtt.Client, msg mqtt.Message) {
		cmd := strings.TrimSpace(string(msg.Payload()))
		select {
		case control <- cmd:
		default:
			log.Printf("recorder: control command %q dropped", cmd)
		}
	})
	ctlToken.Wait()
	if ctlToken.Error() != nil {
		return ctlToken.Error()
	}
	log.Printf("recorder: subscribed to %s", cfg.TopicControl)

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.RollupCron, func() { runRollup(cfg, st) }); err != nil {
		return fmt.Errorf("rollup schedule %q: %w", cfg.RollupCron, err)
	}
	sched.Start()
	defer sched.Stop()
	log.Printf("recorder: retention/rollup scheduled at %q", cfg.RollupCron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case m := <-r.samples:
			r.handleSample(m)
		case cmd := <-control:
			r.handleControl(cmd, time.Now())
		case <-sigCh:
			log.Println("recorder: shutting down")
			r.shutdown(time.Now())
			return nil
		}
	}
}

type recorder struct {
	cfg        *config.Config
	st         *store.SQLite
	client     mqtt.Client
	agg        *session.Aggregator
	smoother   *posture.Smoother
	streak     *posture.StreakTracker
	dwell      posture.Dwell
	policy     *posture.AlertPolicy
	thresholds posture.Thresholds
	samples    chan AngleMessage

	inSession  bool
	lastStreak time.Time
}

// newRecorder wires the pipeline; the MQTT client is attached once
// connected.
func newRecorder(cfg *config.Config, st *store.SQLite) *recorder {
	return &recorder{
		cfg:        cfg,
		st:         st,
		agg:        session.NewAggregator(st),
		smoother:   posture.NewSmoother(cfg.SmoothingAlpha),
		streak:     posture.NewStreakTracker(),
		thresholds: cfg.Thresholds(),
		policy: posture.NewAlertPolicy(
			time.Duration(cfg.MinAlertDurationSec)*time.Second,
			time.Duration(cfg.AlertCooldownSec)*time.Second,
			time.Duration(cfg.ReinforceIntervalSec)*time.Second,
		),
		samples: make(chan AngleMessage, 64),
	}
}

// queueLatest enqueues m without blocking, evicting the oldest queued
// message when the buffer is full.
func queueLatest(ch chan AngleMessage, m AngleMessage) {
	for {
		select {
		case ch <- m:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// drainSamples applies every already-queued sample. Control commands and
// shutdown run it first, so a stop seals against the stream state after
// the samples that preceded it.
func (r *recorder) drainSamples() {
	for {
		select {
		case m := <-r.samples:
			r.handleSample(m)
		default:
			return
		}
	}
}

func (r *recorder) handleSample(m AngleMessage) {
	smoothed := r.smoother.Next(m.Angle)
	state := posture.Classify(smoothed, r.thresholds)
	now := m.TS

	r.publishJSON(r.cfg.TopicState, StateMessage{
		Angle: smoothed,
		Raw:   m.Angle,
		State: state,
		Score: state.Score(),
		TS:    now,
	}, true)

	if r.inSession {
		cs := session.ClassifiedSample{Timestamp: now, Angle: smoothed, State: state}
		if err := r.agg.Record(cs); err != nil {
			log.Printf("recorder: record sample: %v", err)
		}

		// The streak clock ticks at one-second cadence regardless of the
		// sample rate.
		if now.Sub(r.lastStreak) >= time.Second {
			r.lastStreak = now
			ss, milestone := r.streak.Tick(state)
			r.agg.NoteBestStreak(ss.BestSec)
			if milestone {
				r.publishEvent(EventMessage{
					Type:      EventStreak,
					State:     state.String(),
					StreakSec: ss.CurrentSec,
					Message:   fmt.Sprintf("%ds of good posture", ss.CurrentSec),
					TS:        now,
				})
			}
		}
	}

	inState, goodFor := r.dwell.Observe(state, now)
	switch r.policy.Evaluate(state, inState, goodFor, now) {
	case posture.DecisionWarn:
		log.Printf("recorder: warn, %s for a while at %.1f°", state, smoothed)
		r.publishEvent(EventMessage{
			Type:    EventWarn,
			State:   state.String(),
			Message: "posture has slipped, straighten up",
			TS:      now,
		})
	case posture.DecisionReinforce:
		log.Println("recorder: reinforcing sustained good posture")
		r.publishEvent(EventMessage{
			Type:    EventReinforce,
			State:   state.String(),
			Message: "great posture, keep it up",
			TS:      now,
		})
	}
}

func (r *recorder) handleControl(cmd string, now time.Time) {
	r.drainSamples()

	switch cmd {
	case ControlStart:
		rec, err := r.agg.Start(now)
		if err != nil {
			if errors.Is(err, session.ErrSessionActive) {
				log.Printf("recorder: session start ignored: %v", err)
				return
			}
			// Persistence trouble; the session still runs in memory.
			log.Printf("recorder: session start: %v", err)
		}
		r.inSession = true
		r.streak.Reset()
		r.lastStreak = now
		r.publishEvent(EventMessage{Type: EventSessionStart, SessionID: rec.ID, TS: now})
		log.Printf("recorder: session %s started", rec.ID)

	case ControlStop:
		rec, err := r.agg.Stop(now)
		if err != nil {
			if errors.Is(err, session.ErrNoActiveSession) {
				log.Printf("recorder: session stop ignored: %v", err)
				return
			}
			log.Printf("recorder: session stop: %v", err)
		}
		r.inSession = false
		r.publishEvent(EventMessage{
			Type:      EventSessionStop,
			SessionID: rec.ID,
			Message:   summaryLine(rec),
			TS:        now,
		})
		log.Printf("recorder: session %s sealed: %s", rec.ID, summaryLine(rec))

	default:
		log.Printf("recorder: unknown control command %q", cmd)
	}
}

func (r *recorder) shutdown(now time.Time) {
	r.drainSamples()

	if r.inSession {
		rec, err := r.agg.Stop(now)
		if err != nil {
			log.Printf("recorder: stop on shutdown: %v", err)
		} else {
			log.Printf("recorder: session %s sealed on shutdown", rec.ID)
		}
		r.inSession = false
	}

	flushed, err := r.agg.FlushPending()
	if err != nil {
		log.Printf("recorder: %d sealed sessions flushed, %d still pending: %v",
			flushed, r.agg.PendingCount(), err)
	} else if flushed > 0 {
		log.Printf("recorder: flushed %d pending sessions", flushed)
	}

	if n := r.agg.Dropped(); n > 0 {
		log.Printf("recorder: %d out-of-order samples dropped this run", n)
	}
}

func (r *recorder) publishJSON(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("recorder: marshal error: %v", err)
		return
	}
	if token := r.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		log.Printf("recorder: MQTT publish error (%s): %v", topic, token.Error())
	}
}

func (r *recorder) publishEvent(ev EventMessage) {
	r.publishJSON(r.cfg.TopicEvents, ev, false)
}

func summaryLine(rec session.Record) string {
	return fmt.Sprintf("%.0fs tracked, %.0fs good or better, worst %.1f°, best streak %ds",
		rec.TotalSec, rec.GoodOrBetterSec(), rec.WorstAngle, rec.BestStreakSec)
}

// runRollup prunes raw samples past the retention window and logs the
// recent weekly rollup.
func runRollup(cfg *config.Config, st *store.SQLite) {
	cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
	n, err := st.PruneSamplesBefore(cutoff)
	if err != nil {
		log.Printf("recorder: sample prune: %v", err)
	} else {
		log.Printf("recorder: pruned %d samples older than %s", n, cutoff.Format("2006-01-02"))
	}

	weeks, err := st.WeeklySummaries(4)
	if err != nil {
		log.Printf("recorder: weekly rollup: %v", err)
		return
	}
	for _, w := range weeks {
		log.Printf("recorder: week %d-W%02d: %d sessions over %d days, %.0fs tracked, %.0fs good or better",
			w.Year, w.Week, w.SessionCount, w.Days, w.TotalSec, w.GoodSec)
	}
}
