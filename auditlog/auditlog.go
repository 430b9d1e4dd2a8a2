package auditlog

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/easun/isolar-poller/inverter"
)

// Log records one row per poll tick.
type Log struct {
	db *sql.DB
}

// New wraps an already-open, already-migrated database.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// RecordSuccess logs a successful poll tick.
func (l *Log) RecordSuccess() {
	l.insert("success", 0, "", "")
}

// RecordFailure logs a failed poll tick, classifying err against the
// known error taxonomy when possible.
func (l *Log) RecordFailure(consecutiveFailures int, err error) {
	l.insert("failure", consecutiveFailures, taxonomyOf(err), err.Error())
}

func (l *Log) insert(outcome string, consecutiveFailures int, taxonomy, detail string) {
	_, err := l.db.Exec(
		`INSERT INTO poll_ticks (occurred_at, outcome, consecutive_failures, error_taxonomy, detail) VALUES (?, ?, ?, ?, ?)`,
		time.Now(), outcome, consecutiveFailures, nullIfEmpty(taxonomy), nullIfEmpty(detail),
	)
	if err != nil {
		log.Printf("⚠️ audit log insert failed: %v", err)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// taxonomyOf maps an error to the name of the sentinel it wraps, or ""
// when it doesn't match the known taxonomy.
func taxonomyOf(err error) string {
	switch {
	case errors.Is(err, inverter.ErrDiscoveryFailed):
		return "DiscoveryFailed"
	case errors.Is(err, inverter.ErrAcceptTimeout):
		return "AcceptTimeout"
	case errors.Is(err, inverter.ErrFramingError):
		return "FramingError"
	case errors.Is(err, inverter.ErrProtocolError):
		return "ProtocolError"
	case errors.Is(err, inverter.ErrDecodeError):
		return "DecodeError"
	case errors.Is(err, inverter.ErrEmptyPoll):
		return "EmptyPoll"
	case errors.Is(err, inverter.ErrStuckPoll):
		return "StuckPoll"
	default:
		return ""
	}
}
