package imu

import (
	"errors"
	"time"
)

// ErrSensorUnavailable reports that the sensor driver could not produce a
// reading. Callers treat it as "no sample this tick" rather than a fatal
// condition.
var ErrSensorUnavailable = errors.New("imu: sensor unavailable")

// Sample is a single inertial reading in physical units. Accelerations are
// in g, rotation rates in deg/s. Immutable once read.
type Sample struct {
	Timestamp time.Time `json:"ts"`

	Ax float64 `json:"ax"` // accel, g
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // gyro, deg/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`
}

// Source is anything that can provide inertial samples over time: the
// MPU-9250 over SPI, the serial wearable, a replay log, or a mock.
type Source interface {
	Next() (Sample, error)
}
