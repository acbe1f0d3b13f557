package posture

import "time"

// Decision is what AlertPolicy tells the notification or actuator sink to
// do. The policy only decides; it never performs I/O.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionWarn
	DecisionReinforce
)

func (d Decision) String() string {
	switch d {
	case DecisionWarn:
		return "warn"
	case DecisionReinforce:
		return "reinforce"
	default:
		return "none"
	}
}

// Dwell measures how long the classified stream has stayed in one state,
// and separately how long it has stayed at Good or better. Each
// observation extends the clocks by the wall time since the previous one,
// and a run change starts the new run with the interval that produced it:
// at a steady 1 Hz the Nth consecutive tick of a state reads N seconds.
// Warnings key on the exact-state clock, reinforcement on the
// good-or-better one, so flipping between Excellent and Good does not
// restart a reinforce run.
type Dwell struct {
	state   State
	inState time.Duration
	goodFor time.Duration
	last    time.Time
	primed  bool
}

// Observe advances both clocks and reports them: inState is the time in
// exactly s, goodFor the time at Good or better.
func (d *Dwell) Observe(s State, now time.Time) (inState, goodFor time.Duration) {
	if !d.primed {
		d.primed = true
		d.state = s
		d.last = now
		return 0, 0
	}

	delta := now.Sub(d.last)
	if delta < 0 {
		delta = 0
	}
	d.last = now

	if s != d.state {
		d.state = s
		d.inState = delta
	} else {
		d.inState += delta
	}

	if s.GoodOrBetter() {
		d.goodFor += delta
	} else {
		d.goodFor = 0
	}
	return d.inState, d.goodFor
}

// AlertPolicy turns sustained posture states into alert decisions with
// hysteresis: a Warn needs the Poor state to persist for minDuration, and
// no two alerts of any kind fire within cooldown of each other. The dwell
// requirement keeps a single noisy sample that dips across a threshold
// from buzzing the wearer.
type AlertPolicy struct {
	minDuration    time.Duration
	cooldown       time.Duration
	reinforceEvery time.Duration

	lastAlert     time.Time
	hasAlerted    bool
	reinforceMark int64
}

// NewAlertPolicy configures the hysteresis. reinforceEvery is the
// sustained good-posture interval that earns a Reinforce (0 disables
// reinforcement).
func NewAlertPolicy(minDuration, cooldown, reinforceEvery time.Duration) *AlertPolicy {
	return &AlertPolicy{
		minDuration:    minDuration,
		cooldown:       cooldown,
		reinforceEvery: reinforceEvery,
	}
}

// Evaluate decides for one observation of the classified stream. inState
// is how long the stream has been in exactly state s, goodFor how long it
// has stayed at Good or better (see Dwell); now is used only for cooldown
// bookkeeping. Warns need the full minDuration in Poor specifically, so a
// Fair spell never pre-pays a warning; reinforce milestones accrue across
// Excellent and Good alike.
func (p *AlertPolicy) Evaluate(s State, inState, goodFor time.Duration, now time.Time) Decision {
	inCooldown := p.hasAlerted && now.Sub(p.lastAlert) < p.cooldown

	switch {
	case s == Poor:
		p.reinforceMark = 0
		if inState >= p.minDuration && !inCooldown {
			p.lastAlert = now
			p.hasAlerted = true
			return DecisionWarn
		}

	case s.GoodOrBetter():
		if p.reinforceEvery <= 0 {
			return DecisionNone
		}
		mark := int64(goodFor / p.reinforceEvery)
		if mark < p.reinforceMark {
			// The good dwell restarted since the last milestone.
			p.reinforceMark = mark
		}
		if mark > p.reinforceMark {
			// Milestones that pass during cooldown are skipped, not queued.
			p.reinforceMark = mark
			if !inCooldown {
				p.lastAlert = now
				p.hasAlerted = true
				return DecisionReinforce
			}
		}

	default:
		// Fair neither warns nor reinforces, and breaks a reinforce run.
		p.reinforceMark = 0
	}
	return DecisionNone
}
