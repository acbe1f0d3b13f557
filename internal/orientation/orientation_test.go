package orientation

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uprightlabs/posture_monitor/internal/imu"
)

// constSource repeats one sample forever.
type constSource struct {
	s imu.Sample
}

func (c constSource) Next() (imu.Sample, error) { return c.s, nil }

// failingSource succeeds n times, then fails.
type failingSource struct {
	n     int
	calls int
}

func (f *failingSource) Next() (imu.Sample, error) {
	f.calls++
	if f.calls > f.n {
		return imu.Sample{}, imu.ErrSensorUnavailable
	}
	return imu.Sample{Az: 1}, nil
}

// alternatingSource wobbles ax by ±amp around level.
type alternatingSource struct {
	amp   float64
	calls int
}

func (a *alternatingSource) Next() (imu.Sample, error) {
	a.calls++
	ax := a.amp
	if a.calls%2 == 0 {
		ax = -a.amp
	}
	return imu.Sample{Ax: ax, Az: 1}, nil
}

func TestTiltFromAccel(t *testing.T) {
	cases := []struct {
		name       string
		ax, ay, az float64
		pitchDeg   float64
		rollDeg    float64
	}{
		{"level", 0, 0, 1, 0, 0},
		{"pitch 30 forward", -0.5, 0, math.Sqrt(3) / 2, 30, 0},
		{"pitch -30", 0.5, 0, math.Sqrt(3) / 2, -30, 0},
		{"roll 30", 0, 0.5, math.Sqrt(3) / 2, 0, 30},
		{"unit free: raw counts", 0, 8192, 14189, 0, 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pitch, roll := TiltFromAccel(tc.ax, tc.ay, tc.az)
			assert.InDelta(t, tc.pitchDeg, toDegrees(pitch), 0.01)
			assert.InDelta(t, tc.rollDeg, toDegrees(roll), 0.01)
		})
	}
}

func TestEstimatorSeedsFromAccel(t *testing.T) {
	e := NewEstimator(0.98)
	st := e.Fuse(imu.Sample{
		Timestamp: time.Now(),
		Ax:        -0.5,
		Az:        math.Sqrt(3) / 2,
		Gy:        500, // ignored on the seeding call
	})
	assert.InDelta(t, 30, st.Pitch, 0.01)
	assert.InDelta(t, 0, st.Roll, 0.01)
}

func TestEstimatorPureIntegrationAtAlphaOne(t *testing.T) {
	e := NewEstimator(1)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	e.Fuse(imu.Sample{Timestamp: t0, Az: 1})

	// 100 steps of 10ms at 90 deg/s is exactly 90 degrees of pitch.
	var st State
	for i := 1; i <= 100; i++ {
		st = e.Fuse(imu.Sample{
			Timestamp: t0.Add(time.Duration(i) * 10 * time.Millisecond),
			Az:        1,
			Gy:        90,
		})
	}
	assert.InDelta(t, 90, st.Pitch, 1e-9)
	assert.InDelta(t, 0, st.Roll, 1e-9)
}

func TestEstimatorAccelCorrectionPullsTowardGravity(t *testing.T) {
	e := NewEstimator(0.9)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Seed level, then feed a steady 30-degree tilt with silent gyros. The
	// estimate must converge on the accelerometer answer.
	e.Fuse(imu.Sample{Timestamp: t0, Az: 1})
	var st State
	for i := 1; i <= 400; i++ {
		st = e.Fuse(imu.Sample{
			Timestamp: t0.Add(time.Duration(i) * 10 * time.Millisecond),
			Ax:        -0.5,
			Az:        math.Sqrt(3) / 2,
		})
	}
	assert.InDelta(t, 30, st.Pitch, 0.1)
}

func TestEstimatorSkipsAccelCorrectionInFreeFall(t *testing.T) {
	e := NewEstimator(0) // full accel trust, so a bogus correction would be obvious
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	e.Fuse(imu.Sample{Timestamp: t0, Az: 1})
	st := e.Fuse(imu.Sample{
		Timestamp: t0.Add(10 * time.Millisecond),
		Ax:        0.08,
		Az:        0.05, // |a| ≈ 0.09g: falling
	})
	assert.InDelta(t, 0, st.Pitch, 1e-9)
}

func TestEstimatorClampsClockAnomalies(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("backwards timestamp integrates nothing", func(t *testing.T) {
		e := NewEstimator(1)
		e.Fuse(imu.Sample{Timestamp: t0, Az: 1})
		st := e.Fuse(imu.Sample{Timestamp: t0.Add(-time.Second), Az: 1, Gy: 100})
		assert.InDelta(t, 0, st.Pitch, 1e-9)
	})

	t.Run("long stall is capped", func(t *testing.T) {
		e := NewEstimator(1)
		e.Fuse(imu.Sample{Timestamp: t0, Az: 1})
		st := e.Fuse(imu.Sample{Timestamp: t0.Add(10 * time.Second), Az: 1, Gy: 10})
		assert.InDelta(t, 5, st.Pitch, 1e-9) // 10 deg/s over the 0.5s cap
	})
}

func TestEstimatorRemovesOffset(t *testing.T) {
	e := NewEstimator(0.98)
	require.False(t, e.Calibrated())

	e.SetOffset(Offset{Pitch: toRadians(5)})
	require.True(t, e.Calibrated())

	st := e.Fuse(imu.Sample{Timestamp: time.Now(), Az: 1})
	assert.InDelta(t, -5, st.Pitch, 0.01)
	assert.InDelta(t, 0, st.Roll, 0.01)
}

func TestCalibrateLevelSensorConvergesToZero(t *testing.T) {
	off, q, err := Calibrate(constSource{imu.Sample{Az: 1}}, 200, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, off.Pitch, 1e-12)
	assert.InDelta(t, 0, off.Roll, 1e-12)
	assert.InDelta(t, 0, q.PitchStdDev, 1e-12)
}

func TestCalibrateCapturesMountingBias(t *testing.T) {
	tilted := constSource{imu.Sample{Ax: -0.5, Az: math.Sqrt(3) / 2}}
	off, _, err := Calibrate(tilted, 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 30, toDegrees(off.Pitch), 0.01)

	// An estimator using the offset reports the biased mount as upright.
	e := NewEstimator(0.98)
	e.SetOffset(off)
	st := e.Fuse(imu.Sample{Timestamp: time.Now(), Ax: -0.5, Az: math.Sqrt(3) / 2})
	assert.InDelta(t, 0, st.Pitch, 0.01)
}

func TestCalibrateAveragesOutNoise(t *testing.T) {
	off, q, err := Calibrate(&alternatingSource{amp: 0.01}, 500, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, toDegrees(off.Pitch), 0.01)
	assert.Greater(t, q.PitchStdDev, 0.1) // the wobble is visible in the spread
}

func TestCalibrateAbortsOnSensorFailure(t *testing.T) {
	off, _, err := Calibrate(&failingSource{n: 3}, 500, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCalibrationIncomplete))
	assert.Equal(t, Offset{}, off)
}

func TestCalibrateRejectsTooSmallWindow(t *testing.T) {
	// A single sample has no stddev; the quality would come back NaN and an
	// offset file written from it would not even marshal.
	for _, window := range []int{-1, 0, 1} {
		_, q, err := Calibrate(constSource{imu.Sample{Az: 1}}, window, 0)
		assert.ErrorIs(t, err, ErrCalibrationIncomplete, "window %d", window)
		assert.False(t, math.IsNaN(q.PitchStdDev), "window %d", window)
	}

	off, q, err := Calibrate(constSource{imu.Sample{Az: 1}}, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, off.Pitch, 1e-12)
	assert.False(t, math.IsNaN(q.PitchStdDev))
	require.NoError(t, SaveOffset(filepath.Join(t.TempDir(), "offset.json"), off, q))
}

func TestOffsetFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.json")
	wantOff := Offset{Pitch: 0.0123, Roll: -0.0456}
	wantQ := Quality{PitchStdDev: 0.31, RollStdDev: 0.27}

	before := time.Now()
	require.NoError(t, SaveOffset(path, wantOff, wantQ))

	got, err := LoadOffset(path)
	require.NoError(t, err)
	assert.Equal(t, wantOff, got.Offset)
	assert.Equal(t, wantQ, got.Quality)
	assert.False(t, got.CapturedAt.Before(before))

	_, err = LoadOffset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
