package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/onslaught7/market-pulse-engine/internal/analyst"
	"github.com/onslaught7/market-pulse-engine/internal/logging"
	"github.com/onslaught7/market-pulse-engine/internal/store"
)

// validate checks ingestRequest bodies before they are queued.
var validate = validator.New()

// defaultHistoryLimit is the number of records returned by GET /api/history
// when no limit query parameter is given.
const defaultHistoryLimit = 20

// handleQuery handles POST /api/query. It runs the full pipeline
// synchronously and returns the answer with its source count, or a
// stage-attributed error.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	ans, err := s.engine.Ask(r.Context(), req.Question)
	elapsed := time.Since(start)
	if err != nil {
		s.writeQueryError(w, log, err)
		s.observeQuery(queryOutcome(err), elapsed)
		return
	}
	s.observeQuery("ok", elapsed)

	s.recordQuery(r, ans, elapsed)
	writeJSON(w, http.StatusOK, ans)
}

// writeQueryError maps pipeline errors onto HTTP status codes: empty
// questions are the caller's fault (400), everything else is a failing
// dependency (502) with the stage named in the detail string.
func (s *Server) writeQueryError(w http.ResponseWriter, log *slog.Logger, err error) {
	if errors.Is(err, analyst.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, "Question cannot be empty.")
		return
	}

	var se *analyst.StageError
	if errors.As(err, &se) {
		log.Error("query pipeline failed",
			slog.String("stage", string(se.Stage)),
			slog.Any("error", se.Err),
		)
		writeError(w, http.StatusBadGateway, se.Detail())
		return
	}

	log.Error("query failed", slog.Any("error", err))
	writeError(w, http.StatusBadGateway, "Failed to process the question.")
}

// queryOutcome maps a pipeline error onto a metrics outcome label.
func queryOutcome(err error) string {
	if errors.Is(err, analyst.ErrEmptyQuestion) {
		return "invalid"
	}
	var se *analyst.StageError
	if errors.As(err, &se) {
		return string(se.Stage) + "_error"
	}
	return "error"
}

// recordQuery appends the answered question to the query log. Failures are
// logged and otherwise ignored; persistence never blocks a response.
func (s *Server) recordQuery(r *http.Request, ans *analyst.Answer, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	rec := store.QueryRecord{
		Question:       ans.Question,
		Answer:         ans.Answer,
		SourcesScanned: ans.SourcesScanned,
		DurationMS:     elapsed.Milliseconds(),
	}
	if err := s.history.Append(r.Context(), rec); err != nil {
		logging.FromContext(r.Context()).Warn("query log append failed", slog.Any("error", err))
	}
}

// handleIngest handles POST /api/ingest. The validated task is queued for
// the ingestion worker and accepted with 202; indexing happens
// asynchronously.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion queue is not configured")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "user_id, document_id and content are required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content must not be blank")
		return
	}

	raw, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode task")
		return
	}
	if err := s.queue.Push(r.Context(), raw); err != nil {
		logging.FromContext(r.Context()).Error("ingest enqueue failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "Failed to queue document for ingestion.")
		return
	}

	logging.FromContext(r.Context()).Info("document queued",
		slog.String("document_id", req.DocumentID),
	)
	writeJSON(w, http.StatusAccepted, ingestResponse{Status: "queued", DocumentID: req.DocumentID})
}

// handleHistory handles GET /api/history. Supports ?limit=N, capped at 100.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "query history is not configured")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read query history")
		return
	}
	if recs == nil {
		recs = []store.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleAnalytics handles GET /api/analytics with aggregate usage stats.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "query history is not configured")
		return
	}

	stats, err := s.history.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("analytics read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
