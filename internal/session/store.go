package session

import "errors"

// ErrPersistFailed wraps persistence errors. The in-memory record that
// failed to persist is always retained so a retry loses nothing.
var ErrPersistFailed = errors.New("session: persistence write failed")

// Store is the persistence contract the aggregator needs. The sqlite
// implementation lives in internal/store; tests use fakes.
type Store interface {
	// CreateSession registers a freshly started session.
	CreateSession(rec Record) error
	// InsertSample appends one classified sample to a session's trace.
	InsertSample(sessionID string, cs ClassifiedSample) error
	// SealSession stores the final record and folds it into its day's
	// DailySummary. The fold must happen exactly once per session no
	// matter how many times SealSession is retried.
	SealSession(rec Record) error
	// UpsertDailySummary adds a delta into one day's row.
	UpsertDailySummary(date string, delta DailySummary) error
	// QueryLastNDays returns up to n most recent daily summaries, newest
	// first.
	QueryLastNDays(n int) ([]DailySummary, error)
}
