package posture

import "errors"

// ErrInvalidThresholds rejects a threshold set that is not strictly
// increasing and positive. Callers keep their previous valid configuration
// when they see this.
var ErrInvalidThresholds = errors.New("posture: thresholds must satisfy 0 < excellent < good < fair")

// Thresholds are the |angle| boundaries (degrees) between quality states.
// Configuration, not derived data: product hasn't settled on one set, so
// nothing in this package hardcodes values.
type Thresholds struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Fair      float64 `json:"fair"`
}

// DefaultThresholds returns the boundaries the mobile variants converged on.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 5, Good: 15, Fair: 25}
}

func (t Thresholds) Validate() error {
	if !(0 < t.Excellent && t.Excellent < t.Good && t.Good < t.Fair) {
		return ErrInvalidThresholds
	}
	return nil
}
