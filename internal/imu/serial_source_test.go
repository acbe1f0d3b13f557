package imu

import (
	"fmt"
	"math"
	"testing"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// sentence wraps a payload in $...*hh framing with a valid XOR checksum.
func sentence(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, sum)
}

func TestParsePIMUSentence(t *testing.T) {
	registerSentences()

	line := sentence("PIMU,16384,0,-16384,131,-262,0")
	s, err := nmea.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", line, err)
	}
	if s.DataType() != sentencePIMU {
		t.Fatalf("DataType = %q, want %q", s.DataType(), sentencePIMU)
	}

	m, ok := s.(PIMU)
	if !ok {
		t.Fatalf("parsed type %T, want PIMU", s)
	}
	if m.Ax != 16384 || m.Ay != 0 || m.Az != -16384 {
		t.Errorf("accel counts = %d,%d,%d, want 16384,0,-16384", m.Ax, m.Ay, m.Az)
	}
	if m.Gx != 131 || m.Gy != -262 || m.Gz != 0 {
		t.Errorf("gyro counts = %d,%d,%d, want 131,-262,0", m.Gx, m.Gy, m.Gz)
	}
}

func TestParsePIMUSentenceRejectsBadInput(t *testing.T) {
	registerSentences()

	cases := []struct {
		name string
		line string
	}{
		{"bad checksum", "$PIMU,1,2,3,4,5,6*00"},
		{"short fields", sentence("PIMU,1,2,3")},
		{"non numeric", sentence("PIMU,a,b,c,d,e,f")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := nmea.Parse(tc.line); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.line)
			}
		})
	}
}

func TestSerialScale(t *testing.T) {
	registerSentences()

	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	src := &SerialSource{
		accelScale: 16384,
		gyroScale:  131,
		now:        func() time.Time { return fixed },
	}

	s, err := nmea.Parse(sentence("PIMU,16384,-8192,0,131,0,-262"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	got := src.scale(s.(PIMU))
	if !got.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, fixed)
	}
	if got.Ax != 1.0 || got.Ay != -0.5 || got.Az != 0 {
		t.Errorf("accel = %v,%v,%v, want 1,-0.5,0", got.Ax, got.Ay, got.Az)
	}
	if got.Gx != 1.0 || got.Gy != 0 || got.Gz != -2.0 {
		t.Errorf("gyro = %v,%v,%v, want 1,0,-2", got.Gx, got.Gy, got.Gz)
	}
}

func TestMockSourceGravityMagnitude(t *testing.T) {
	src := NewMockSource()
	base := time.Now()
	for i := 0; i < 50; i++ {
		tick := base.Add(time.Duration(i) * 250 * time.Millisecond)
		src.now = func() time.Time { return tick }

		s, err := src.Next()
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		mag := math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
		if math.Abs(mag-1.0) > 1e-9 {
			t.Fatalf("sample %d: |a| = %v, want 1g", i, mag)
		}
		if !s.Timestamp.Equal(tick) {
			t.Fatalf("sample %d: timestamp not taken from clock", i)
		}
	}
}
