package orientation

import (
	"math"
)

// State is the estimator's running pitch/roll estimate after bias removal,
// in degrees. Single owner: never share one estimator's state across
// goroutines.
type State struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Offset is the stationary mounting bias, in radians. Computed once by
// Calibrate and read-only afterwards until recalibration is requested.
type Offset struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// TiltFromAccel computes pitch and roll in radians from accelerometer data
// only. Units cancel, so raw counts work as well as g.
//
// Uses simple tilt formulas:
//
//	pitch = atan2(-ax, sqrt(ay² + az²))
//	roll  = atan2(ay, az)
func TiltFromAccel(ax, ay, az float64) (pitch, roll float64) {
	pitch = math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
	roll = math.Atan2(ay, az)
	return pitch, roll
}

func toDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
