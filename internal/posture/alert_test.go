package posture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alertBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestDwellCountsConsecutiveTicks(t *testing.T) {
	var d Dwell

	inState, goodFor := d.Observe(Good, alertBase)
	assert.Equal(t, time.Duration(0), inState)
	assert.Equal(t, time.Duration(0), goodFor)

	inState, goodFor = d.Observe(Good, alertBase.Add(1*time.Second))
	assert.Equal(t, time.Second, inState)
	assert.Equal(t, time.Second, goodFor)

	inState, goodFor = d.Observe(Good, alertBase.Add(2*time.Second))
	assert.Equal(t, 2*time.Second, inState)
	assert.Equal(t, 2*time.Second, goodFor)

	// A state change restarts the exact-state dwell with the interval that
	// produced it, so the Nth consecutive tick of the new state reads N
	// seconds. Poor also zeroes the good-or-better clock.
	inState, goodFor = d.Observe(Poor, alertBase.Add(3*time.Second))
	assert.Equal(t, time.Second, inState)
	assert.Equal(t, time.Duration(0), goodFor)

	inState, goodFor = d.Observe(Poor, alertBase.Add(4*time.Second))
	assert.Equal(t, 2*time.Second, inState)
	assert.Equal(t, time.Duration(0), goodFor)

	// Clock going backwards never shrinks the dwell.
	inState, _ = d.Observe(Poor, alertBase.Add(3*time.Second))
	assert.Equal(t, 2*time.Second, inState)
}

func TestDwellGoodClockSpansExcellentAndGood(t *testing.T) {
	var d Dwell

	d.Observe(Excellent, alertBase)
	_, goodFor := d.Observe(Excellent, alertBase.Add(1*time.Second))
	assert.Equal(t, time.Second, goodFor)

	// Excellent to Good restarts the exact-state clock but not the
	// good-or-better one.
	inState, goodFor := d.Observe(Good, alertBase.Add(2*time.Second))
	assert.Equal(t, time.Second, inState)
	assert.Equal(t, 2*time.Second, goodFor)

	inState, goodFor = d.Observe(Excellent, alertBase.Add(3*time.Second))
	assert.Equal(t, time.Second, inState)
	assert.Equal(t, 3*time.Second, goodFor)

	// Fair breaks the good-or-better run.
	_, goodFor = d.Observe(Fair, alertBase.Add(4*time.Second))
	assert.Equal(t, time.Duration(0), goodFor)

	_, goodFor = d.Observe(Good, alertBase.Add(5*time.Second))
	assert.Equal(t, time.Second, goodFor)
}

func TestWarnRequiresMinimumDwell(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, time.Minute, 0)

	// A one-second dip into Poor inside a good run must not buzz.
	var d Dwell
	seq := []State{Good, Good, Poor, Good, Good}
	for i, s := range seq {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(s, now)
		assert.Equal(t, DecisionNone, p.Evaluate(s, inState, goodFor, now), "tick %d", i)
	}
}

func TestWarnClockStartsAtPoorEdge(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, time.Minute, 0)

	// A long Fair spell must not pre-pay the warning dwell.
	var d Dwell
	var decisions []Decision
	seq := []State{Fair, Fair, Fair, Fair, Fair, Fair, Fair, Fair, Poor, Poor, Poor, Poor}
	for i, s := range seq {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(s, now)
		decisions = append(decisions, p.Evaluate(s, inState, goodFor, now))
	}

	want := make([]Decision, len(seq))
	want[10] = DecisionWarn // three seconds into the Poor run, not on its first tick
	assert.Equal(t, want, decisions)
}

func TestWarnFiresAfterDwellAndHonorsCooldown(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, 5*time.Second, 0)

	var d Dwell
	var warnTimes []time.Time
	for i := 1; i <= 20; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(Poor, now)
		if p.Evaluate(Poor, inState, goodFor, now) == DecisionWarn {
			warnTimes = append(warnTimes, now)
		}
	}

	// The first tick primes the dwell clock, so three seconds of dwell
	// accumulate on the fourth tick.
	require.NotEmpty(t, warnTimes)
	assert.Equal(t, alertBase.Add(4*time.Second), warnTimes[0], "first warn after the dwell minimum")
	for i := 1; i < len(warnTimes); i++ {
		gap := warnTimes[i].Sub(warnTimes[i-1])
		assert.GreaterOrEqual(t, gap, 5*time.Second, "warns %d and %d violate cooldown", i-1, i)
	}
}

func TestReinforceAtSustainedGoodMilestones(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, 2*time.Second, 5*time.Second)

	var d Dwell
	var reinforcedAt []int
	for i := 0; i <= 12; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(Good, now)
		if p.Evaluate(Good, inState, goodFor, now) == DecisionReinforce {
			reinforcedAt = append(reinforcedAt, i)
		}
	}
	assert.Equal(t, []int{5, 10}, reinforcedAt)
}

func TestReinforceSurvivesExcellentGoodFlips(t *testing.T) {
	p := NewAlertPolicy(30*time.Second, 5*time.Minute, 30*time.Minute)

	// Two hours at 1 Hz, alternating Excellent and Good every ten minutes.
	// The good-or-better run never breaks, so every half-hour milestone
	// still pays out.
	var d Dwell
	var reinforcedAt []time.Duration
	for i := 0; i <= 7200; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		s := Excellent
		if (i/600)%2 == 1 {
			s = Good
		}
		inState, goodFor := d.Observe(s, now)
		if p.Evaluate(s, inState, goodFor, now) == DecisionReinforce {
			reinforcedAt = append(reinforcedAt, time.Duration(i)*time.Second)
		}
	}

	want := []time.Duration{30 * time.Minute, time.Hour, 90 * time.Minute, 2 * time.Hour}
	assert.Equal(t, want, reinforcedAt)
}

func TestReinforceRunBrokenByWorseState(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, time.Second, 5*time.Second)

	var d Dwell
	var decisions []Decision
	seq := []State{Good, Good, Good, Good, Fair, Good, Good, Good, Good, Good, Good}
	for i, s := range seq {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(s, now)
		decisions = append(decisions, p.Evaluate(s, inState, goodFor, now))
	}

	// The Fair tick at i=4 restarts the run, so the milestone lands on the
	// fifth consecutive Good after it (i=9), not at i=5.
	want := make([]Decision, len(seq))
	want[9] = DecisionReinforce
	assert.Equal(t, want, decisions)
}

func TestReinforceDisabledByZeroInterval(t *testing.T) {
	p := NewAlertPolicy(3*time.Second, time.Second, 0)
	var d Dwell
	for i := 0; i < 100; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(Excellent, now)
		assert.Equal(t, DecisionNone, p.Evaluate(Excellent, inState, goodFor, now))
	}
}

func TestWarnAndReinforceShareCooldown(t *testing.T) {
	p := NewAlertPolicy(2*time.Second, 10*time.Second, 5*time.Second)

	var d Dwell
	// Five seconds of good dwell earn a Reinforce (the first tick only
	// primes the clock)...
	var last Decision
	for i := 1; i <= 6; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(Good, now)
		last = p.Evaluate(Good, inState, goodFor, now)
	}
	require.Equal(t, DecisionReinforce, last)
	reinforcedAt := alertBase.Add(6 * time.Second)

	// ...and a Poor dwell right after stays silent until the shared
	// cooldown expires.
	var warnAt time.Time
	for i := 7; i <= 20; i++ {
		now := alertBase.Add(time.Duration(i) * time.Second)
		inState, goodFor := d.Observe(Poor, now)
		if p.Evaluate(Poor, inState, goodFor, now) == DecisionWarn {
			warnAt = now
			break
		}
	}
	require.False(t, warnAt.IsZero(), "warn never fired")
	assert.GreaterOrEqual(t, warnAt.Sub(reinforcedAt), 10*time.Second)
}

// The reference walkthrough: one sample per second through the full
// classify/dwell/alert chain.
func TestScenarioSlouchTriggersWarnOnThirdPoorSample(t *testing.T) {
	th := Thresholds{Excellent: 5, Good: 15, Fair: 25}
	require.NoError(t, th.Validate())

	policy := NewAlertPolicy(3*time.Second, time.Minute, 30*time.Minute)
	var d Dwell

	angles := []float64{2, 8, 18, 28, 28, 28, 2}
	wantStates := []State{Excellent, Good, Fair, Poor, Poor, Poor, Excellent}

	var states []State
	var decisions []Decision
	for i, angle := range angles {
		now := alertBase.Add(time.Duration(i) * time.Second)
		s := Classify(angle, th)
		states = append(states, s)
		inState, goodFor := d.Observe(s, now)
		decisions = append(decisions, policy.Evaluate(s, inState, goodFor, now))
	}

	assert.Equal(t, wantStates, states)

	wantDecisions := make([]Decision, len(angles))
	wantDecisions[5] = DecisionWarn // the third consecutive Poor sample, not earlier
	assert.Equal(t, wantDecisions, decisions)
}
