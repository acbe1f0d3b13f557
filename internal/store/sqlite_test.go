package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uprightlabs/posture_monitor/internal/posture"
	"github.com/uprightlabs/posture_monitor/internal/session"
)

var storeBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "posture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAt(sec int, angle float64, st posture.State) session.ClassifiedSample {
	return session.ClassifiedSample{
		Timestamp: storeBase.Add(time.Duration(sec) * time.Second),
		Angle:     angle,
		State:     st,
	}
}

func sealedRecord(id string) session.Record {
	return session.Record{
		ID:            id,
		StartTime:     storeBase,
		EndTime:       storeBase.Add(2 * time.Second),
		TotalSec:      2,
		GoodSec:       1,
		PoorSec:       1,
		SampleCount:   2,
		AverageAngle:  18,
		AngleStdDev:   14.14,
		WorstAngle:    -28,
		BestStreakSec: 1,
		TopWorst: []session.Moment{
			{Timestamp: storeBase.Add(2 * time.Second), Angle: -28},
			{Timestamp: storeBase.Add(1 * time.Second), Angle: 8},
		},
	}
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := sealedRecord("s-1")
	require.NoError(t, s.CreateSession(session.Record{ID: rec.ID, StartTime: rec.StartTime, Active: true}))
	require.NoError(t, s.InsertSample(rec.ID, sampleAt(1, 8, posture.Good)))
	require.NoError(t, s.InsertSample(rec.ID, sampleAt(2, -28, posture.Poor)))
	require.NoError(t, s.SealSession(rec))

	got, err := s.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, rec.ID, got[0].ID)
	assert.False(t, got[0].Active)
	assert.Equal(t, rec.StartTime.UnixNano(), got[0].StartTime.UnixNano())
	assert.Equal(t, rec.EndTime.UnixNano(), got[0].EndTime.UnixNano())
	assert.Equal(t, rec.TotalSec, got[0].TotalSec)
	assert.Equal(t, rec.WorstAngle, got[0].WorstAngle)
	assert.Equal(t, rec.SampleCount, got[0].SampleCount)
	if diff := cmp.Diff(rec.TopWorst, got[0].TopWorst); diff != "" {
		t.Errorf("top worst mismatch (-want +got):\n%s", diff)
	}

	trace, err := s.SamplesForSession(rec.ID)
	require.NoError(t, err)
	want := []session.ClassifiedSample{
		{Timestamp: storeBase.Add(1 * time.Second), Angle: 8, State: posture.Good},
		{Timestamp: storeBase.Add(2 * time.Second), Angle: -28, State: posture.Poor},
	}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("sample trace mismatch (-want +got):\n%s", diff)
	}
}

func TestSealSessionFoldsExactlyOnce(t *testing.T) {
	s := openTestStore(t)

	rec := sealedRecord("s-retry")
	require.NoError(t, s.CreateSession(session.Record{ID: rec.ID, StartTime: rec.StartTime, Active: true}))

	// A client retrying after a lost reply seals twice.
	require.NoError(t, s.SealSession(rec))
	require.NoError(t, s.SealSession(rec))

	days, err := s.QueryLastNDays(5)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, int64(1), days[0].SessionCount, "fold must be idempotent")
	assert.InDelta(t, 2.0, days[0].TotalSec, 1e-9)
	assert.InDelta(t, 1.0, days[0].GoodSec, 1e-9)
	assert.InDelta(t, 1.0, days[0].BadSec, 1e-9)

	got, err := s.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSealSessionWorksWithoutPriorCreate(t *testing.T) {
	s := openTestStore(t)

	// The create write was lost to an earlier failure; the seal carries the
	// whole row.
	rec := sealedRecord("s-orphan")
	require.NoError(t, s.SealSession(rec))

	got, err := s.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.TotalSec, got[0].TotalSec)

	days, err := s.QueryLastNDays(5)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, int64(1), days[0].SessionCount)
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	rec := session.Record{ID: "dup", StartTime: storeBase, Active: true}
	require.NoError(t, s.CreateSession(rec))
	assert.Error(t, s.CreateSession(rec))
}

func TestDailySummariesAccumulateAndQueryNewestFirst(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertDailySummary("2026-03-13", session.DailySummary{SessionCount: 1, TotalSec: 100, GoodSec: 80, BadSec: 20}))
	require.NoError(t, s.UpsertDailySummary("2026-03-14", session.DailySummary{SessionCount: 1, TotalSec: 50, GoodSec: 30, BadSec: 20}))
	require.NoError(t, s.UpsertDailySummary("2026-03-14", session.DailySummary{SessionCount: 2, TotalSec: 25, GoodSec: 25}))

	days, err := s.QueryLastNDays(10)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2026-03-14", days[0].Date)
	assert.Equal(t, int64(3), days[0].SessionCount)
	assert.InDelta(t, 75.0, days[0].TotalSec, 1e-9)
	assert.InDelta(t, 55.0, days[0].GoodSec, 1e-9)
	assert.InDelta(t, 20.0, days[0].BadSec, 1e-9)
	assert.Equal(t, "2026-03-13", days[1].Date)

	one, err := s.QueryLastNDays(1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "2026-03-14", one[0].Date)
}

func TestWeeklySummariesGroupByISOWeek(t *testing.T) {
	s := openTestStore(t)

	// 2026-03-09 and 2026-03-14 are ISO week 11; 2026-03-16 is week 12.
	require.NoError(t, s.UpsertDailySummary("2026-03-09", session.DailySummary{SessionCount: 1, TotalSec: 10, GoodSec: 10}))
	require.NoError(t, s.UpsertDailySummary("2026-03-14", session.DailySummary{SessionCount: 2, TotalSec: 20, BadSec: 20}))
	require.NoError(t, s.UpsertDailySummary("2026-03-16", session.DailySummary{SessionCount: 1, TotalSec: 5, GoodSec: 5}))

	weeks, err := s.WeeklySummaries(10)
	require.NoError(t, err)
	require.Len(t, weeks, 2)

	assert.Equal(t, 2026, weeks[0].Year)
	assert.Equal(t, 12, weeks[0].Week)
	assert.Equal(t, 1, weeks[0].Days)
	assert.InDelta(t, 5.0, weeks[0].TotalSec, 1e-9)

	assert.Equal(t, 11, weeks[1].Week)
	assert.Equal(t, 2, weeks[1].Days)
	assert.Equal(t, int64(3), weeks[1].SessionCount)
	assert.InDelta(t, 30.0, weeks[1].TotalSec, 1e-9)

	newest, err := s.WeeklySummaries(1)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, 12, newest[0].Week)
}

func TestPruneSamplesBefore(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertSample("s-1", sampleAt(0, 1, posture.Excellent)))
	require.NoError(t, s.InsertSample("s-1", sampleAt(3600, 2, posture.Excellent)))
	require.NoError(t, s.InsertSample("s-1", sampleAt(7200, 3, posture.Excellent)))

	n, err := s.PruneSamplesBefore(storeBase.Add(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	trace, err := s.SamplesForSession("s-1")
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.InDelta(t, 3.0, trace[0].Angle, 1e-9)
}

// The full pipeline against the real store: aggregate, seal, re-query, and
// check the totals survive the trip.
func TestAggregatorRoundTripThroughSQLite(t *testing.T) {
	s := openTestStore(t)
	agg := session.NewAggregator(s)

	_, err := agg.Start(storeBase)
	require.NoError(t, err)
	require.NoError(t, agg.Record(sampleAt(1, 2, posture.Excellent)))
	require.NoError(t, agg.Record(sampleAt(2, 8, posture.Good)))
	require.NoError(t, agg.Record(sampleAt(3, 28, posture.Poor)))
	sealed, err := agg.Stop(storeBase.Add(3 * time.Second))
	require.NoError(t, err)

	days, err := s.QueryLastNDays(1)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, session.DayKey(storeBase), days[0].Date)
	assert.InDelta(t, sealed.TotalSec, days[0].TotalSec, 1e-9)
	assert.InDelta(t, sealed.GoodOrBetterSec(), days[0].GoodSec, 1e-9)
	assert.InDelta(t, sealed.BadSec(), days[0].BadSec, 1e-9)

	got, err := s.RecentSessions(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, sealed.ExcellentSec+sealed.GoodSec+sealed.FairSec+sealed.PoorSec, got[0].TotalSec, 1e-9)

	trace, err := s.SamplesForSession(sealed.ID)
	require.NoError(t, err)
	assert.Len(t, trace, 3)
}
