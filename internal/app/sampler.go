// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/uprightlabs/posture_monitor/internal/config"
	"github.com/uprightlabs/posture_monitor/internal/imu"
	"github.com/uprightlabs/posture_monitor/internal/orientation"
	"github.com/uprightlabs/posture_monitor/internal/posture"
)

// firstReadGiveUp bounds the consecutive read failures tolerated before
// the very first successful sample. After the first sample, read errors
// only skip the tick.
const firstReadGiveUp = 100

// RunSampler is the device-side loop: read the sensor, fuse, classify
// against the coarse scale, drive the haptic motor, publish.
func RunSampler(cfg *config.Config) error {
	log.Println("starting posture sampler (sensor → MQTT)")

	src, err := OpenSource(cfg)
	if err != nil {
		return fmt.Errorf("open %s source: %w", cfg.SensorSource, err)
	}
	if c, ok := src.(interface{ Close() error }); ok {
		defer c.Close()
	}

	est := orientation.NewEstimator(cfg.BlendAlpha)
	calibrateAtBoot(cfg, src, est)

	motor, err := openMotor(cfg.MotorGPIOPin, time.Duration(cfg.MotorPulseMs)*time.Millisecond)
	if err != nil {
		// The monitor still works without the actuator.
		log.Printf("sampler: motor disabled: %v", err)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDSampler)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("sampler: connected to MQTT broker at %s", cfg.MQTTBroker)

	latest := &latestAngle{}
	go serveAngle(cfg.SamplerHTTPPort, latest)

	thresholds := cfg.Thresholds()
	var dwell posture.Dwell
	// Reinforcement nudges come from the recorder; the device only warns.
	policy := posture.NewAlertPolicy(
		time.Duration(cfg.MinAlertDurationSec)*time.Second,
		time.Duration(cfg.AlertCooldownSec)*time.Second,
		0,
	)

	ticker := time.NewTicker(time.Duration(cfg.SampleIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Println("sampler: starting sample loop")

	gotFirst := false
	misses := 0
	for range ticker.C {
		sample, err := src.Next()
		if err != nil {
			misses++
			if !gotFirst && misses >= firstReadGiveUp {
				return fmt.Errorf("no sensor reading after %d attempts: %w", misses, err)
			}
			log.Printf("sampler: read error (skipping tick): %v", err)
			continue
		}
		gotFirst = true

		st := est.Fuse(sample)
		angle := st.Pitch
		if cfg.PrimaryAxis == "roll" {
			angle = st.Roll
		}
		state := posture.Classify(angle, thresholds)

		now := sample.Timestamp
		inState, goodFor := dwell.Observe(state, now)
		if policy.Evaluate(state, inState, goodFor, now) == posture.DecisionWarn {
			log.Printf("sampler: posture warning at %.1f°", angle)
			motor.Buzz()
		}

		msg := AngleMessage{
			Angle: angle,
			Pitch: st.Pitch,
			Roll:  st.Roll,
			State: state.Coarse().String(),
			TS:    now,
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			log.Printf("sampler: marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicAngle, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("sampler: MQTT publish error: %v", token.Error())
		}

		latest.set(msg)
	}
	return nil
}

// OpenSource opens the sample source the config selects. The calibrate
// CLI shares this wiring.
func OpenSource(cfg *config.Config) (imu.Source, error) {
	switch cfg.SensorSource {
	case "serial":
		return imu.OpenSerialSource(imu.SerialConfig{
			Port:             cfg.SerialPort,
			Baud:             uint(cfg.SerialBaud),
			AccelCountsPerG:  cfg.AccelCountsPerG,
			GyroCountsPerDPS: cfg.GyroCountsPerDPS,
		})
	case "mpu9250":
		return imu.OpenMPU9250(imu.MPUConfig{
			SPIDevice:        cfg.SPIDevice,
			CSPin:            cfg.SPICSPin,
			AccelCountsPerG:  cfg.AccelCountsPerG,
			GyroCountsPerDPS: cfg.GyroCountsPerDPS,
		})
	default:
		log.Println("sampler: using mock sensor source")
		return imu.NewMockSource(), nil
	}
}

// calibrateAtBoot loads the saved zero offset, or derives one from a
// stationary window when no file exists. Failure is logged, not fatal:
// the estimator then reports uncorrected angles.
func calibrateAtBoot(cfg *config.Config, src imu.Source, est *orientation.Estimator) {
	if saved, err := orientation.LoadOffset(cfg.CalibrationFile); err == nil {
		est.SetOffset(saved.Offset)
		log.Printf("sampler: loaded zero offset from %s (captured %s)",
			cfg.CalibrationFile, saved.CapturedAt.Format("2006-01-02 15:04"))
		return
	}

	log.Printf("sampler: no offset file, calibrating (%d samples, keep the device still)", cfg.CalibrationWindow)
	off, quality, err := orientation.Calibrate(src, cfg.CalibrationWindow,
		time.Duration(cfg.CalibrationIntervalMs)*time.Millisecond)
	if err != nil {
		log.Printf("sampler: calibration failed, running uncalibrated: %v", err)
		return
	}
	est.SetOffset(off)
	log.Printf("sampler: calibrated, stddev pitch=%.2f° roll=%.2f°", quality.PitchStdDev, quality.RollStdDev)

	if err := orientation.SaveOffset(cfg.CalibrationFile, off, quality); err != nil {
		log.Printf("sampler: could not save offset file: %v", err)
	}
}

// latestAngle is the single value the HTTP responder serves. The sample
// loop writes it with a short exclusive lock; readers never block the loop.
type latestAngle struct {
	mu   sync.RWMutex
	msg  AngleMessage
	have bool
}

func (l *latestAngle) set(m AngleMessage) {
	l.mu.Lock()
	l.msg = m
	l.have = true
	l.mu.Unlock()
}

func (l *latestAngle) get() (AngleMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.msg, l.have
}

func serveAngle(port int, latest *latestAngle) {
	mux := http.NewServeMux()
	mux.HandleFunc("/angle", func(w http.ResponseWriter, r *http.Request) {
		msg, ok := latest.get()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(msg); err != nil {
			log.Printf("sampler: json encode error: %v", err)
		}
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("sampler: angle responder listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("sampler: http server error: %v", err)
	}
}

// hapticMotor pulses a GPIO-driven vibration motor. A nil motor is a
// disabled one; Buzz on it is a no-op.
type hapticMotor struct {
	pin   gpio.PinIO
	pulse time.Duration
}

func openMotor(pinName string, pulse time.Duration) (*hapticMotor, error) {
	if pinName == "" {
		return nil, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio pin %q: %w", pinName, err)
	}
	return &hapticMotor{pin: pin, pulse: pulse}, nil
}

func (m *hapticMotor) Buzz() {
	if m == nil {
		return
	}
	if err := m.pin.Out(gpio.High); err != nil {
		log.Printf("sampler: motor on: %v", err)
		return
	}
	time.AfterFunc(m.pulse, func() {
		if err := m.pin.Out(gpio.Low); err != nil {
			log.Printf("sampler: motor off: %v", err)
		}
	})
}
