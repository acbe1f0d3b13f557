package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/uprightlabs/posture_monitor/internal/posture"
	"github.com/uprightlabs/posture_monitor/internal/session"
)

// SQLite implements session.Store on a local sqlite file. Timestamps are
// stored as unix nanoseconds so index order is chronological order; daily
// summaries are keyed by the local YYYY-MM-DD string.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database and applies the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		active INTEGER NOT NULL DEFAULT 0,
		total_sec REAL NOT NULL DEFAULT 0,
		excellent_sec REAL NOT NULL DEFAULT 0,
		good_sec REAL NOT NULL DEFAULT 0,
		fair_sec REAL NOT NULL DEFAULT 0,
		poor_sec REAL NOT NULL DEFAULT 0,
		sample_count INTEGER NOT NULL DEFAULT 0,
		average_angle REAL NOT NULL DEFAULT 0,
		angle_std_dev REAL NOT NULL DEFAULT 0,
		worst_angle REAL NOT NULL DEFAULT 0,
		best_streak_sec INTEGER NOT NULL DEFAULT 0,
		top_worst TEXT NOT NULL DEFAULT '[]',
		folded INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);

	CREATE TABLE IF NOT EXISTS samples (
		session_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		angle REAL NOT NULL,
		state TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_session_ts ON samples(session_id, ts);
	CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts);

	CREATE TABLE IF NOT EXISTS daily_summaries (
		date TEXT PRIMARY KEY,
		session_count INTEGER NOT NULL DEFAULT 0,
		total_sec REAL NOT NULL DEFAULT 0,
		good_sec REAL NOT NULL DEFAULT 0,
		bad_sec REAL NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) CreateSession(rec session.Record) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, start_time, active) VALUES (?, ?, 1)`,
		rec.ID, rec.StartTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) InsertSample(sessionID string, cs session.ClassifiedSample) error {
	_, err := s.db.Exec(
		`INSERT INTO samples (session_id, ts, angle, state) VALUES (?, ?, ?, ?)`,
		sessionID, cs.Timestamp.UnixNano(), cs.Angle, cs.State.String(),
	)
	if err != nil {
		return fmt.Errorf("insert sample for %s: %w", sessionID, err)
	}
	return nil
}

// SealSession stores the final record and folds it into the day's summary
// in one transaction. The folded flag makes the fold exactly-once: a retry
// after a failed or repeated seal updates the row but never double-counts
// the daily totals.
func (s *SQLite) SealSession(rec session.Record) error {
	topWorst, err := json.Marshal(rec.TopWorst)
	if err != nil {
		return fmt.Errorf("encode worst moments: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("seal session %s: %w", rec.ID, err)
	}
	defer tx.Rollback()

	var folded int
	err = tx.QueryRow(`SELECT folded FROM sessions WHERE id = ?`, rec.ID).Scan(&folded)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("seal session %s: %w", rec.ID, err)
	}

	// Full upsert: the seal must succeed even when the create was lost to
	// an earlier persistence failure.
	_, err = tx.Exec(`
	INSERT INTO sessions (
		id, start_time, end_time, active, total_sec,
		excellent_sec, good_sec, fair_sec, poor_sec,
		sample_count, average_angle, angle_std_dev, worst_angle,
		best_streak_sec, top_worst, folded
	) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(id) DO UPDATE SET
		end_time = excluded.end_time,
		active = 0,
		total_sec = excluded.total_sec,
		excellent_sec = excluded.excellent_sec,
		good_sec = excluded.good_sec,
		fair_sec = excluded.fair_sec,
		poor_sec = excluded.poor_sec,
		sample_count = excluded.sample_count,
		average_angle = excluded.average_angle,
		angle_std_dev = excluded.angle_std_dev,
		worst_angle = excluded.worst_angle,
		best_streak_sec = excluded.best_streak_sec,
		top_worst = excluded.top_worst,
		folded = 1`,
		rec.ID, rec.StartTime.UnixNano(), rec.EndTime.UnixNano(), rec.TotalSec,
		rec.ExcellentSec, rec.GoodSec, rec.FairSec, rec.PoorSec,
		rec.SampleCount, rec.AverageAngle, rec.AngleStdDev, rec.WorstAngle,
		rec.BestStreakSec, string(topWorst),
	)
	if err != nil {
		return fmt.Errorf("seal session %s: %w", rec.ID, err)
	}

	if folded == 0 {
		delta := rec.Fold()
		if err := upsertDaily(tx, delta.Date, delta); err != nil {
			return fmt.Errorf("fold session %s into %s: %w", rec.ID, delta.Date, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) UpsertDailySummary(date string, delta session.DailySummary) error {
	if err := upsertDaily(s.db, date, delta); err != nil {
		return fmt.Errorf("upsert daily %s: %w", date, err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertDaily(e execer, date string, delta session.DailySummary) error {
	_, err := e.Exec(`
	INSERT INTO daily_summaries (date, session_count, total_sec, good_sec, bad_sec)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		session_count = session_count + excluded.session_count,
		total_sec = total_sec + excluded.total_sec,
		good_sec = good_sec + excluded.good_sec,
		bad_sec = bad_sec + excluded.bad_sec`,
		date, delta.SessionCount, delta.TotalSec, delta.GoodSec, delta.BadSec,
	)
	return err
}

func (s *SQLite) QueryLastNDays(n int) ([]session.DailySummary, error) {
	rows, err := s.db.Query(`
	SELECT date, session_count, total_sec, good_sec, bad_sec
	FROM daily_summaries
	ORDER BY date DESC
	LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query last %d days: %w", n, err)
	}
	defer rows.Close()

	var out []session.DailySummary
	for rows.Next() {
		var d session.DailySummary
		if err := rows.Scan(&d.Date, &d.SessionCount, &d.TotalSec, &d.GoodSec, &d.BadSec); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentSessions returns up to limit sessions, newest first, including a
// still-active one.
func (s *SQLite) RecentSessions(limit int) ([]session.Record, error) {
	rows, err := s.db.Query(`
	SELECT id, start_time, end_time, active, total_sec,
	       excellent_sec, good_sec, fair_sec, poor_sec,
	       sample_count, average_angle, angle_std_dev, worst_angle,
	       best_streak_sec, top_worst
	FROM sessions
	ORDER BY start_time DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var rec session.Record
		var startNs int64
		var endNs sql.NullInt64
		var topWorst string

		err := rows.Scan(
			&rec.ID, &startNs, &endNs, &rec.Active, &rec.TotalSec,
			&rec.ExcellentSec, &rec.GoodSec, &rec.FairSec, &rec.PoorSec,
			&rec.SampleCount, &rec.AverageAngle, &rec.AngleStdDev, &rec.WorstAngle,
			&rec.BestStreakSec, &topWorst,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		rec.StartTime = time.Unix(0, startNs)
		if endNs.Valid {
			rec.EndTime = time.Unix(0, endNs.Int64)
		}
		if err := json.Unmarshal([]byte(topWorst), &rec.TopWorst); err != nil {
			return nil, fmt.Errorf("decode worst moments for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SamplesForSession returns a session's classified trace in time order.
func (s *SQLite) SamplesForSession(sessionID string) ([]session.ClassifiedSample, error) {
	rows, err := s.db.Query(`
	SELECT ts, angle, state FROM samples
	WHERE session_id = ?
	ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query samples for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []session.ClassifiedSample
	for rows.Next() {
		var cs session.ClassifiedSample
		var ns int64
		var state string
		if err := rows.Scan(&ns, &cs.Angle, &state); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		cs.Timestamp = time.Unix(0, ns)
		if cs.State, err = posture.ParseState(state); err != nil {
			return nil, fmt.Errorf("sample for %s: %w", sessionID, err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// WeeklySummaries groups the daily rows by ISO week at query time and
// returns up to nWeeks, newest first.
func (s *SQLite) WeeklySummaries(nWeeks int) ([]session.WeeklySummary, error) {
	rows, err := s.db.Query(`
	SELECT date, session_count, total_sec, good_sec, bad_sec
	FROM daily_summaries
	ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("query weekly summaries: %w", err)
	}
	defer rows.Close()

	var out []session.WeeklySummary
	for rows.Next() {
		var d session.DailySummary
		if err := rows.Scan(&d.Date, &d.SessionCount, &d.TotalSec, &d.GoodSec, &d.BadSec); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}

		day, err := time.ParseInLocation("2006-01-02", d.Date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad daily date %q: %w", d.Date, err)
		}
		year, week := day.ISOWeek()

		if len(out) == 0 || out[len(out)-1].Year != year || out[len(out)-1].Week != week {
			if len(out) == nWeeks {
				break
			}
			out = append(out, session.WeeklySummary{Year: year, Week: week})
		}

		w := &out[len(out)-1]
		w.Days++
		w.SessionCount += d.SessionCount
		w.TotalSec += d.TotalSec
		w.GoodSec += d.GoodSec
		w.BadSec += d.BadSec
	}
	return out, rows.Err()
}

// PruneSamplesBefore deletes per-sample trace rows older than t; sealed
// session records and daily summaries are kept forever.
func (s *SQLite) PruneSamplesBefore(t time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM samples WHERE ts < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}
