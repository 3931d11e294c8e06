// Package store provides a SQLite-backed query log for the MarketPulse
// API server. Every answered question is persisted so the history and
// analytics endpoints can report on usage across server restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// QueryRecord is a single answered question.
type QueryRecord struct {
	// ID is the auto-assigned row ID.
	ID int64 `json:"id"`
	// Question is the user's question as received.
	Question string `json:"question"`
	// Answer is the synthesized answer that was returned.
	Answer string `json:"answer"`
	// SourcesScanned is the total number of retrieved context documents.
	SourcesScanned int `json:"sources_scanned"`
	// DurationMS is the end-to-end pipeline latency in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// CreatedAt is when the query completed.
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the query log for the analytics endpoint.
type Stats struct {
	// TotalQueries is the number of answered questions on record.
	TotalQueries int64 `json:"total_queries"`
	// QueriesLast24h is the number answered in the last 24 hours.
	QueriesLast24h int64 `json:"queries_last_24h"`
	// AvgDurationMS is the mean pipeline latency across all queries.
	AvgDurationMS float64 `json:"avg_duration_ms"`
	// AvgSourcesScanned is the mean number of context documents per query.
	AvgSourcesScanned float64 `json:"avg_sources_scanned"`
}

// QueryStore persists and retrieves the query log.
// Implementations must be safe for concurrent use.
type QueryStore interface {
	// Append persists one answered question.
	Append(ctx context.Context, rec QueryRecord) error
	// Recent returns the most recent n records, newest-first.
	Recent(ctx context.Context, n int) ([]QueryRecord, error)
	// Stats summarizes the full log.
	Stats(ctx context.Context) (Stats, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.marketpulse/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".marketpulse")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    question        TEXT    NOT NULL,
    answer          TEXT    NOT NULL,
    sources_scanned INTEGER NOT NULL,
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created
    ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists one answered question.
func (s *SQLiteStore) Append(ctx context.Context, rec QueryRecord) error {
	const q = `INSERT INTO queries (question, answer, sources_scanned, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?)`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q,
		rec.Question, rec.Answer, rec.SourcesScanned, rec.DurationMS, created.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]QueryRecord, error) {
	const q = `
SELECT id, question, answer, sources_scanned, duration_ms, created_at
FROM   queries
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer,
			&rec.SourcesScanned, &rec.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		rec.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Stats summarizes the full log. Averages are zero when the log is empty.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	const q = `
SELECT COUNT(*),
       COALESCE(AVG(duration_ms), 0),
       COALESCE(AVG(sources_scanned), 0),
       COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
FROM   queries`

	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	var st Stats
	if err := s.db.QueryRowContext(ctx, q, cutoff).Scan(
		&st.TotalQueries, &st.AvgDurationMS, &st.AvgSourcesScanned, &st.QueriesLast24h); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
