package imu

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReplaySource plays back a recorded sample log. The log is CSV with one
// sample per row: ts,ax,ay,az,gx,gy,gz where ts is RFC3339Nano and the six
// values are already in physical units (g, deg/s).
//
// Next returns io.EOF once the log is exhausted; malformed rows are skipped
// and counted, matching how the live serial reader treats garbled lines.
type ReplaySource struct {
	f       *os.File
	r       *csv.Reader
	Skipped int
}

func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7
	r.ReuseRecord = true

	return &ReplaySource{f: f, r: r}, nil
}

func (s *ReplaySource) Next() (Sample, error) {
	for {
		row, err := s.r.Read()
		if err == io.EOF {
			return Sample{}, io.EOF
		}
		if err != nil {
			s.Skipped++
			continue
		}

		sample, err := parseReplayRow(row)
		if err != nil {
			s.Skipped++
			continue
		}
		return sample, nil
	}
}

func (s *ReplaySource) Close() error {
	return s.f.Close()
}

func parseReplayRow(row []string) (Sample, error) {
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return Sample{}, fmt.Errorf("replay timestamp %q: %w", row[0], err)
	}

	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return Sample{}, fmt.Errorf("replay field %d %q: %w", i+1, row[i+1], err)
		}
		vals[i] = v
	}

	return Sample{
		Timestamp: ts,
		Ax:        vals[0],
		Ay:        vals[1],
		Az:        vals[2],
		Gx:        vals[3],
		Gy:        vals[4],
		Gz:        vals[5],
	}, nil
}
