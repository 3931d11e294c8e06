package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"first", "second", "third"} {
		rec := QueryRecord{
			Question:       q,
			Answer:         "answer to " + q,
			SourcesScanned: 6,
			DurationMS:     int64(100 * (i + 1)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%q) failed: %v", q, err)
		}
	}

	recs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(recs))
	}
	// Newest first.
	if recs[0].Question != "third" || recs[1].Question != "second" {
		t.Errorf("wrong order: got %q, %q", recs[0].Question, recs[1].Question)
	}
	if recs[0].Answer != "answer to third" {
		t.Errorf("Answer = %q", recs[0].Answer)
	}
	if recs[0].SourcesScanned != 6 {
		t.Errorf("SourcesScanned = %d, want 6", recs[0].SourcesScanned)
	}
}

func TestRecent_Empty(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	recs, err := s.Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty log, got %d records", len(recs))
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	// Empty log: all zeros, no error.
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty log failed: %v", err)
	}
	if st.TotalQueries != 0 || st.AvgDurationMS != 0 {
		t.Errorf("empty log stats = %+v", st)
	}

	// One recent, one older than 24h.
	if err := s.Append(ctx, QueryRecord{
		Question: "old", Answer: "a", SourcesScanned: 4, DurationMS: 100,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, QueryRecord{
		Question: "new", Answer: "b", SourcesScanned: 6, DurationMS: 300,
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalQueries != 2 {
		t.Errorf("TotalQueries = %d, want 2", st.TotalQueries)
	}
	if st.QueriesLast24h != 1 {
		t.Errorf("QueriesLast24h = %d, want 1", st.QueriesLast24h)
	}
	if st.AvgDurationMS != 200 {
		t.Errorf("AvgDurationMS = %v, want 200", st.AvgDurationMS)
	}
	if st.AvgSourcesScanned != 5 {
		t.Errorf("AvgSourcesScanned = %v, want 5", st.AvgSourcesScanned)
	}
}
