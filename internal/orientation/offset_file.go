package orientation

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SavedOffset is the offset file's contents: the calibration result plus
// when it was captured and how still the device actually was. The extra
// fields let the sampler log what it is trusting at boot.
type SavedOffset struct {
	Offset     Offset    `json:"offset"`
	Quality    Quality   `json:"quality"`
	CapturedAt time.Time `json:"captured_at"`
}

// SaveOffset writes a calibration result to a JSON file so a separate
// process (or the next boot) can reuse it without recalibrating.
func SaveOffset(path string, off Offset, q Quality) error {
	saved := SavedOffset{Offset: off, Quality: q, CapturedAt: time.Now()}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("encode offset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write offset file: %w", err)
	}
	return nil
}

// LoadOffset reads an offset previously written by SaveOffset.
func LoadOffset(path string) (SavedOffset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SavedOffset{}, fmt.Errorf("read offset file: %w", err)
	}
	var saved SavedOffset
	if err := json.Unmarshal(data, &saved); err != nil {
		return SavedOffset{}, fmt.Errorf("decode offset file %s: %w", path, err)
	}
	return saved, nil
}
