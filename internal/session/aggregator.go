package session

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/uprightlabs/posture_monitor/internal/posture"
)

var (
	ErrSessionActive   = errors.New("session: session already active")
	ErrNoActiveSession = errors.New("session: no active session")
)

// welford is the incremental mean/variance accumulator.
type welford struct {
	n    int64
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

func (w *welford) stdDev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// Aggregator turns the classified sample stream into session statistics.
// Exactly one session may be active at a time and exactly one goroutine
// may drive an Aggregator: the stream is expected to be serialized by the
// caller, with timestamp ordering enforced here as a backstop (stale and
// out-of-order samples are dropped, never double-counted).
type Aggregator struct {
	store Store

	active  *Record
	wf      welford
	lastTS  time.Time
	dropped int

	pending []Record // sealed but not yet persisted
}

func NewAggregator(st Store) *Aggregator {
	return &Aggregator{store: st}
}

// Start opens a new session. If persistence fails the session is still
// active in memory and the error is reported wrapped in ErrPersistFailed;
// SealSession upserts the full row later, so nothing is lost.
func (a *Aggregator) Start(now time.Time) (Record, error) {
	if a.active != nil {
		return Record{}, ErrSessionActive
	}

	rec := &Record{
		ID:        uuid.NewString(),
		StartTime: now,
		Active:    true,
	}
	a.active = rec
	a.wf = welford{}
	a.lastTS = now // the first sample is credited from session start
	a.dropped = 0

	if a.store != nil {
		if err := a.store.CreateSession(*rec); err != nil {
			return *rec, fmt.Errorf("%w: create session: %v", ErrPersistFailed, err)
		}
	}
	return *rec, nil
}

// Record folds one classified sample into the active session. The sample
// is credited with the wall-clock delta since the previous accepted
// sample. The first sample may coincide with the session start (a
// replayed log opens its session on its first row) and is then credited
// zero duration; after that, samples at or before the previous timestamp
// are dropped so a reconnect or duplicate callback can never decrement or
// double-count duration. Statistics are applied before persistence, so a
// store error (wrapped ErrPersistFailed) never loses the accounting.
func (a *Aggregator) Record(cs ClassifiedSample) error {
	if a.active == nil {
		return ErrNoActiveSession
	}
	if a.active.SampleCount == 0 {
		if cs.Timestamp.Before(a.lastTS) {
			a.dropped++
			return nil
		}
	} else if !cs.Timestamp.After(a.lastTS) {
		a.dropped++
		return nil
	}

	delta := cs.Timestamp.Sub(a.lastTS).Seconds()
	a.lastTS = cs.Timestamp

	rec := a.active
	rec.TotalSec += delta
	switch cs.State {
	case posture.Excellent:
		rec.ExcellentSec += delta
	case posture.Good:
		rec.GoodSec += delta
	case posture.Fair:
		rec.FairSec += delta
	default:
		rec.PoorSec += delta
	}

	rec.SampleCount++
	mag := math.Abs(cs.Angle)
	a.wf.add(mag)
	rec.AverageAngle = a.wf.mean
	if mag >= math.Abs(rec.WorstAngle) {
		rec.WorstAngle = cs.Angle
	}
	rec.TopWorst = insertWorst(rec.TopWorst, Moment{Timestamp: cs.Timestamp, Angle: cs.Angle})

	if a.store != nil {
		if err := a.store.InsertSample(rec.ID, cs); err != nil {
			return fmt.Errorf("%w: insert sample: %v", ErrPersistFailed, err)
		}
	}
	return nil
}

// NoteBestStreak records the streak high-water mark reported by the
// streak tracker; the sealed record carries the maximum seen.
func (a *Aggregator) NoteBestStreak(sec int) {
	if a.active != nil && sec > a.active.BestStreakSec {
		a.active.BestStreakSec = sec
	}
}

// Stop seals the active session and folds it into the daily summary via
// the store. The sealed record is returned even when persistence fails;
// in that case it is also queued for FlushPending and the error is
// wrapped in ErrPersistFailed.
func (a *Aggregator) Stop(now time.Time) (Record, error) {
	if a.active == nil {
		return Record{}, ErrNoActiveSession
	}

	rec := a.active
	a.active = nil

	if now.Before(a.lastTS) {
		now = a.lastTS // a sample already accounted past this instant
	}
	rec.EndTime = now
	rec.Active = false
	rec.AngleStdDev = a.wf.stdDev()

	sealed := snapshot(*rec)
	if a.store != nil {
		if err := a.store.SealSession(sealed); err != nil {
			a.pending = append(a.pending, sealed)
			return sealed, fmt.Errorf("%w: seal session: %v", ErrPersistFailed, err)
		}
	}
	return sealed, nil
}

// FlushPending retries sealed records whose persistence failed. Returns
// how many were flushed; records that fail again stay queued.
func (a *Aggregator) FlushPending() (int, error) {
	if a.store == nil || len(a.pending) == 0 {
		return 0, nil
	}

	var kept []Record
	var firstErr error
	flushed := 0
	for _, rec := range a.pending {
		if err := a.store.SealSession(rec); err != nil {
			kept = append(kept, rec)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		flushed++
	}
	a.pending = kept

	if firstErr != nil {
		return flushed, fmt.Errorf("%w: %d sealed sessions still pending: %v", ErrPersistFailed, len(kept), firstErr)
	}
	return flushed, nil
}

// PendingCount reports how many sealed sessions await a persistence retry.
func (a *Aggregator) PendingCount() int {
	return len(a.pending)
}

// Active returns a copy of the running session, if any.
func (a *Aggregator) Active() (Record, bool) {
	if a.active == nil {
		return Record{}, false
	}
	return snapshot(*a.active), true
}

// Dropped reports how many stale or out-of-order samples were discarded
// since the session started.
func (a *Aggregator) Dropped() int {
	return a.dropped
}

func snapshot(r Record) Record {
	r.TopWorst = append([]Moment(nil), r.TopWorst...)
	return r
}

// insertWorst keeps the top three moments ordered by |angle| descending.
// The incoming moment is the newest, so on equal magnitude it lands ahead
// of older ones.
func insertWorst(top []Moment, m Moment) []Moment {
	pos := len(top)
	for i, cur := range top {
		if math.Abs(m.Angle) >= math.Abs(cur.Angle) {
			pos = i
			break
		}
	}

	top = append(top, Moment{})
	copy(top[pos+1:], top[pos:])
	top[pos] = m

	if len(top) > 3 {
		top = top[:3]
	}
	return top
}
