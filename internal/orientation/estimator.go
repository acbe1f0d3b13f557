package orientation

import (
	"math"
	"time"

	"github.com/uprightlabs/posture_monitor/internal/imu"
)

// Fusion steps longer than this are clamped: after a clock stall or a
// dropped sample burst, integrating gyro rate over the whole gap would
// swing the estimate wildly.
const maxFuseStep = 500 * time.Millisecond

// Below this acceleration magnitude (g) the gravity direction is
// meaningless (free-fall, heavy shaking), so the accel correction is
// skipped and the gyro term carries the step alone.
const minAccelMag = 0.5

// Estimator fuses inertial samples into a stable pitch/roll estimate with
// a complementary filter: gyro integration tracks fast motion, the
// accelerometer tilt pulls the estimate back toward gravity to cancel
// drift. alpha is the gyro weight; 0.98 is a good default, 1 disables the
// accel correction entirely.
type Estimator struct {
	alpha      float64
	offset     Offset
	calibrated bool

	seeded bool
	pitch  float64 // fused estimate, radians, before bias removal
	roll   float64
	last   time.Time
}

func NewEstimator(alpha float64) *Estimator {
	return &Estimator{alpha: alpha}
}

// SetOffset installs a calibration result. The running estimate is kept;
// only the bias removed at output changes.
func (e *Estimator) SetOffset(off Offset) {
	e.offset = off
	e.calibrated = true
}

// Calibrated reports whether the current offset came from a completed
// calibration run rather than the zero default.
func (e *Estimator) Calibrated() bool {
	return e.calibrated
}

// Fuse advances the filter by one sample and returns the new estimate in
// degrees. The integration step is the wall-clock delta between this
// sample's timestamp and the previous one, recomputed fresh every call.
// The first call seeds the estimate from the accelerometer alone so the
// filter starts on gravity instead of converging from zero.
func (e *Estimator) Fuse(s imu.Sample) State {
	accelPitch, accelRoll := TiltFromAccel(s.Ax, s.Ay, s.Az)

	if !e.seeded {
		e.pitch = accelPitch
		e.roll = accelRoll
		e.seeded = true
		e.last = s.Timestamp
		return e.state()
	}

	dt := s.Timestamp.Sub(e.last)
	e.last = s.Timestamp
	if dt < 0 {
		dt = 0
	}
	if dt > maxFuseStep {
		dt = maxFuseStep
	}
	dtSec := dt.Seconds()

	// Gyro integration. Rates arrive in deg/s; the filter state is radians.
	gyroPitch := e.pitch + toRadians(s.Gy)*dtSec
	gyroRoll := e.roll + toRadians(s.Gx)*dtSec

	alpha := e.alpha
	if mag := math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az); mag < minAccelMag {
		alpha = 1
	}

	e.pitch = alpha*gyroPitch + (1-alpha)*accelPitch
	e.roll = alpha*gyroRoll + (1-alpha)*accelRoll

	return e.state()
}

func (e *Estimator) state() State {
	return State{
		Pitch: toDegrees(e.pitch - e.offset.Pitch),
		Roll:  toDegrees(e.roll - e.offset.Roll),
	}
}
