package posture

// Smoother is an exponential moving average over a scalar signal:
//
//	smoothed = prev*(1-alpha) + raw*alpha
//
// alpha in (0,1]: smaller is smoother but laggier, 1 is passthrough.
// One primitive reused for both pre-classification filtering and display
// damping; the firmware loop does not smooth, client layers do.
type Smoother struct {
	alpha  float64
	value  float64
	seeded bool
}

func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Next folds one raw value in and returns the new smoothed value. The
// first value seeds the average directly so the output doesn't ramp up
// from zero.
func (s *Smoother) Next(raw float64) float64 {
	if !s.seeded {
		s.value = raw
		s.seeded = true
		return s.value
	}
	s.value = s.value*(1-s.alpha) + raw*s.alpha
	return s.value
}

// Value returns the current smoothed value without folding anything in.
func (s *Smoother) Value() float64 {
	return s.value
}

// Reset clears the average so the next value seeds it again.
func (s *Smoother) Reset() {
	s.value = 0
	s.seeded = false
}
