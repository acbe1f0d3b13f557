package posture

// StreakMilestoneSec is the streak length granularity that earns a
// milestone event: every full minute of sustained good-or-better posture.
const StreakMilestoneSec = 60

// StreakState is a snapshot of the current and best streak lengths.
// In-memory only; streaks do not survive the session.
type StreakState struct {
	CurrentSec int `json:"current_sec"`
	BestSec    int `json:"best_sec"`
}

// StreakTracker counts consecutive good-or-better seconds. Tick is called
// once per second while a session is active.
type StreakTracker struct {
	cur  int
	best int
}

func NewStreakTracker() *StreakTracker {
	return &StreakTracker{}
}

// Tick consumes one second of classification. A good-or-better state
// extends the streak; anything worse resets it to zero immediately, no
// grace period. Returns the new snapshot and whether this tick crossed a
// milestone boundary. Increments are by exactly one, so each boundary is
// crossed on exactly one tick and never re-reported while a streak holds.
func (t *StreakTracker) Tick(s State) (StreakState, bool) {
	if s.GoodOrBetter() {
		t.cur++
	} else {
		t.cur = 0
	}
	if t.cur > t.best {
		t.best = t.cur
	}
	milestone := t.cur > 0 && t.cur%StreakMilestoneSec == 0
	return t.State(), milestone
}

// State returns the current snapshot without consuming a tick.
func (t *StreakTracker) State() StreakState {
	return StreakState{CurrentSec: t.cur, BestSec: t.best}
}

// Reset clears both counters for a new session.
func (t *StreakTracker) Reset() {
	t.cur = 0
	t.best = 0
}
