// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

// MockSource generates a smooth slouch-and-recover motion without any
// hardware: the pitch angle swings sinusoidally and the gyro reports the
// matching angular rate, so the fused output tracks a known trajectory.
type MockSource struct {
	start     time.Time
	AmplDeg   float64 // peak pitch excursion, degrees
	PeriodSec float64 // full slouch/recover cycle
	now       func() time.Time
}

// NewMockSource returns a source cycling between upright and slouched
// roughly every 20 seconds.
func NewMockSource() *MockSource {
	return &MockSource{
		start:     time.Now(),
		AmplDeg:   30,
		PeriodSec: 20,
		now:       time.Now,
	}
}

func (m *MockSource) Next() (Sample, error) {
	now := m.now()
	elapsed := now.Sub(m.start).Seconds()

	omega := 2 * math.Pi / m.PeriodSec
	pitchRad := m.AmplDeg * math.Pi / 180 * math.Sin(omega*elapsed)
	pitchRateDeg := m.AmplDeg * omega * math.Cos(omega*elapsed)

	// Gravity vector for a pure pitch rotation: ax = -sin, az = cos, so the
	// accel tilt estimate recovers exactly the pitch above.
	return Sample{
		Timestamp: now,
		Ax:        -math.Sin(pitchRad),
		Ay:        0,
		Az:        math.Cos(pitchRad),
		Gy:        pitchRateDeg,
	}, nil
}
