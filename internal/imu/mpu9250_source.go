// Copyright (c) 2026 Upright Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// MPUConfig selects the SPI device and chip-select pin the sensor is wired
// to, plus the count scaling for the configured sensor ranges.
type MPUConfig struct {
	SPIDevice        string // e.g. /dev/spidev0.0
	CSPin            string // GPIO name, e.g. "18"
	AccelCountsPerG  float64
	GyroCountsPerDPS float64
}

type mpuSource struct {
	imu        *mpu9250.MPU9250
	accelScale float64
	gyroScale  float64
	now        func() time.Time
}

// OpenMPU9250 initializes the MPU-9250 over SPI and returns a Source that
// reads accelerometer and gyroscope counts, scaled to g and deg/s.
func OpenMPU9250(cfg MPUConfig) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: initialization: %w", err)
	}

	// Fixed ±2g / ±250°/s ranges; the counts-per-unit scales in the
	// config must describe these.
	if err := dev.SetAccelRange(0); err != nil {
		return nil, fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	if err := dev.SetGyroRange(0); err != nil {
		return nil, fmt.Errorf("mpu9250: set gyro range: %w", err)
	}

	if _, err := dev.SelfTest(); err != nil {
		log.Printf("mpu9250: WARNING: self-test failed: %v", err)
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("mpu9250: WARNING: calibration failed: %v", err)
	}

	return &mpuSource{
		imu:        dev,
		accelScale: cfg.AccelCountsPerG,
		gyroScale:  cfg.GyroCountsPerDPS,
		now:        time.Now,
	}, nil
}

func (s *mpuSource) Next() (Sample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: accel X: %v", ErrSensorUnavailable, err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: accel Y: %v", ErrSensorUnavailable, err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: accel Z: %v", ErrSensorUnavailable, err)
	}

	gx, err := s.imu.GetRotationX()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: gyro X: %v", ErrSensorUnavailable, err)
	}
	gy, err := s.imu.GetRotationY()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: gyro Y: %v", ErrSensorUnavailable, err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: gyro Z: %v", ErrSensorUnavailable, err)
	}

	return Sample{
		Timestamp: s.now(),
		Ax:        float64(ax) / s.accelScale,
		Ay:        float64(ay) / s.accelScale,
		Az:        float64(az) / s.accelScale,
		Gx:        float64(gx) / s.gyroScale,
		Gy:        float64(gy) / s.gyroScale,
		Gz:        float64(gz) / s.gyroScale,
	}, nil
}
