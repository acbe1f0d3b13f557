package orientation

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/uprightlabs/posture_monitor/internal/imu"
)

// ErrCalibrationIncomplete reports that the calibration window did not
// complete. The caller keeps its previous offset (or zero) and should
// surface the uncalibrated state rather than treat it as fatal.
var ErrCalibrationIncomplete = errors.New("orientation: calibration incomplete")

// Calibration window defaults. 500 samples at 5ms is 2.5s of stillness,
// short enough to ask of a user at power-on.
const (
	DefaultCalibrationWindow   = 500
	DefaultCalibrationInterval = 5 * time.Millisecond
)

// Quality summarizes how still the device actually was while calibrating,
// as the standard deviation of the per-sample tilt estimates in degrees.
// A fidgety user shows up here as a large spread.
type Quality struct {
	PitchStdDev float64 `json:"pitch_std_dev"`
	RollStdDev  float64 `json:"roll_std_dev"`
}

// Calibrate derives the zero-point mounting bias by averaging the
// accelerometer-only tilt over a fixed window. The device is assumed
// motionless for the duration; that is the caller's precondition, not
// verified here (Quality lets the caller judge afterwards). Blocks until
// the window completes or a read fails.
func Calibrate(src imu.Source, window int, interval time.Duration) (Offset, Quality, error) {
	// The quality stddev needs at least two samples; one sample would
	// report NaN and poison the saved offset file.
	if window < 2 {
		return Offset{}, Quality{}, fmt.Errorf("%w: window %d must be at least 2 samples", ErrCalibrationIncomplete, window)
	}

	pitches := make([]float64, 0, window)
	rolls := make([]float64, 0, window)

	for i := 0; i < window; i++ {
		s, err := src.Next()
		if err != nil {
			return Offset{}, Quality{}, fmt.Errorf("%w: sample %d/%d: %v", ErrCalibrationIncomplete, i, window, err)
		}

		pitch, roll := TiltFromAccel(s.Ax, s.Ay, s.Az)
		pitches = append(pitches, pitch)
		rolls = append(rolls, roll)

		if i < window-1 {
			time.Sleep(interval)
		}
	}

	pitchMean, pitchStd := stat.MeanStdDev(pitches, nil)
	rollMean, rollStd := stat.MeanStdDev(rolls, nil)

	off := Offset{Pitch: pitchMean, Roll: rollMean}
	q := Quality{
		PitchStdDev: toDegrees(pitchStd),
		RollStdDev:  toDegrees(rollStd),
	}
	return off, q, nil
}
