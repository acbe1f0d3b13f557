package imu

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// The wearable board streams one proprietary NMEA sentence per sample:
//
//	$PIMU,ax,ay,az,gx,gy,gz*hh
//
// with all six values as signed raw counts. Counts are scaled to physical
// units here so the rest of the pipeline never sees device-specific ranges.
const sentencePIMU = "IMU"

// PIMU is the decoded form of the wearable's inertial sentence.
type PIMU struct {
	nmea.BaseSentence
	Ax, Ay, Az int64 // accel counts
	Gx, Gy, Gz int64 // gyro counts
}

var registerPIMU sync.Once

func registerSentences() {
	registerPIMU.Do(func() {
		nmea.MustRegisterParser(sentencePIMU, func(s nmea.BaseSentence) (nmea.Sentence, error) {
			p := nmea.NewParser(s)
			return PIMU{
				BaseSentence: s,
				Ax:           p.Int64(0, "ax"),
				Ay:           p.Int64(1, "ay"),
				Az:           p.Int64(2, "az"),
				Gx:           p.Int64(3, "gx"),
				Gy:           p.Int64(4, "gy"),
				Gz:           p.Int64(5, "gz"),
			}, p.Err()
		})
	})
}

// SerialConfig describes the wearable's serial link and count scaling.
type SerialConfig struct {
	Port             string
	Baud             uint
	AccelCountsPerG  float64 // e.g. 16384 for a ±2g MPU part
	GyroCountsPerDPS float64 // e.g. 131 for ±250 deg/s
}

// SerialSource reads samples from a wearable board over a serial port.
type SerialSource struct {
	port       io.ReadWriteCloser
	reader     *bufio.Reader
	accelScale float64
	gyroScale  float64
	now        func() time.Time
}

// OpenSerialSource opens the port and prepares the sentence parser.
func OpenSerialSource(cfg SerialConfig) (*SerialSource, error) {
	registerSentences()

	opts := serial.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              cfg.Baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("wearable serial open (%s): %w", cfg.Port, err)
	}

	return &SerialSource{
		port:       port,
		reader:     bufio.NewReader(port),
		accelScale: cfg.AccelCountsPerG,
		gyroScale:  cfg.GyroCountsPerDPS,
		now:        time.Now,
	}, nil
}

// Next blocks until a complete $PIMU sentence arrives. Garbled or foreign
// sentences (boot banners, partial lines) are skipped, matching how noisy
// serial sensors behave in practice.
func (s *SerialSource) Next() (Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return Sample{}, fmt.Errorf("%w: serial read: %v", ErrSensorUnavailable, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if sentence.DataType() != sentencePIMU {
			continue
		}

		m := sentence.(PIMU)
		return s.scale(m), nil
	}
}

func (s *SerialSource) scale(m PIMU) Sample {
	return Sample{
		Timestamp: s.now(),
		Ax:        float64(m.Ax) / s.accelScale,
		Ay:        float64(m.Ay) / s.accelScale,
		Az:        float64(m.Az) / s.accelScale,
		Gx:        float64(m.Gx) / s.gyroScale,
		Gy:        float64(m.Gy) / s.gyroScale,
		Gz:        float64(m.Gz) / s.gyroScale,
	}
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}
