package posture

import (
	"encoding/json"
	"fmt"
)

// State is the discrete posture quality derived from the tilt angle.
// Severity increases with the value: Excellent is best, Poor is worst.
type State int

const (
	Excellent State = iota
	Good
	Fair
	Poor
)

func (s State) String() string {
	switch s {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	case Poor:
		return "poor"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Score maps the state to the 0-100 scale the dashboards display.
func (s State) Score() int {
	switch s {
	case Excellent:
		return 100
	case Good:
		return 75
	case Fair:
		return 50
	default:
		return 25
	}
}

// GoodOrBetter reports whether the state counts toward streaks and
// reinforcement.
func (s State) GoodOrBetter() bool {
	return s <= Good
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState is the inverse of String.
func ParseState(v string) (State, error) {
	switch v {
	case "excellent":
		return Excellent, nil
	case "good":
		return Good, nil
	case "fair":
		return Fair, nil
	case "poor":
		return Poor, nil
	default:
		return Excellent, fmt.Errorf("unknown posture state %q", v)
	}
}

// Coarse is the three-level scale the firmware actuates on: the wearer
// only ever feels "fine", "getting sloppy", or "sit up".
type Coarse int

const (
	CoarseGood Coarse = iota
	CoarseMild
	CoarseBad
)

func (c Coarse) String() string {
	switch c {
	case CoarseGood:
		return "good"
	case CoarseMild:
		return "mild"
	default:
		return "bad"
	}
}

// Coarse collapses the four-level state onto the firmware scale.
func (s State) Coarse() Coarse {
	switch s {
	case Excellent, Good:
		return CoarseGood
	case Fair:
		return CoarseMild
	default:
		return CoarseBad
	}
}
