package posture

import "math"

// Classify maps a tilt angle to a quality state. Pure and symmetric:
// only |angle| matters, leaning back is judged like leaning forward.
// Boundary values are inclusive on the better class, so an angle exactly
// at a threshold keeps the higher grade. No hysteresis here; dwell and
// cooldown rules live in AlertPolicy, which consumes the classified
// stream instead of coupling smoothing into the classification rule.
func Classify(angle float64, t Thresholds) State {
	mag := math.Abs(angle)
	switch {
	case mag <= t.Excellent:
		return Excellent
	case mag <= t.Good:
		return Good
	case mag <= t.Fair:
		return Fair
	default:
		return Poor
	}
}
