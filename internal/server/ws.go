package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onslaught7/market-pulse-engine/internal/analyst"
	"github.com/onslaught7/market-pulse-engine/internal/logging"
)

// upgrader promotes GET /ws requests to WebSocket connections. Origins are
// not checked; the API is open to browser clients on any host, matching the
// permissive CORS policy on the REST endpoints.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is a single server-to-client frame on the streaming endpoint.
type wsMessage struct {
	// Type is "token", "done", or "error".
	Type string `json:"type"`
	// Content carries the token text when Type is "token".
	Content string `json:"content,omitempty"`
	// SourcesScanned carries the context document count when Type is "done".
	// A pointer keeps the field off token and error frames while a zero
	// count still serializes on done.
	SourcesScanned *int `json:"sources_scanned,omitempty"`
	// Detail carries the failure description when Type is "error".
	Detail string `json:"detail,omitempty"`
}

// handleWS handles GET /ws. Each received JSON frame is one question; the
// answer is streamed back as "token" frames followed by a "done" frame.
// A failing turn produces an "error" frame but keeps the connection open
// for further questions. The handler returns when the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	s.metrics.wsActiveStreams.Inc()
	defer s.metrics.wsActiveStreams.Dec()

	for {
		var req queryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}

		start := time.Now()
		ans, err := s.engine.AskStream(r.Context(), req.Question, func(tok string) error {
			return conn.WriteJSON(wsMessage{Type: "token", Content: tok})
		})
		elapsed := time.Since(start)
		if err != nil {
			s.observeQuery(queryOutcome(err), elapsed)
			if !s.writeWSError(conn, log, err) {
				return
			}
			continue
		}
		s.observeQuery("ok", elapsed)
		s.recordQuery(r, ans, elapsed)

		if err := conn.WriteJSON(wsMessage{Type: "done", SourcesScanned: &ans.SourcesScanned}); err != nil {
			log.Warn("websocket write failed", slog.Any("error", err))
			return
		}
	}
}

// writeWSError sends an in-band "error" frame for a failed turn. Returns
// false when the connection itself is broken and the loop should exit.
func (s *Server) writeWSError(conn *websocket.Conn, log *slog.Logger, err error) bool {
	detail := "Failed to process the question."
	switch {
	case errors.Is(err, analyst.ErrEmptyQuestion):
		detail = "Question cannot be empty."
	default:
		var se *analyst.StageError
		if errors.As(err, &se) {
			detail = se.Detail()
			log.Error("streaming pipeline failed",
				slog.String("stage", string(se.Stage)),
				slog.Any("error", se.Err),
			)
		} else {
			log.Error("streaming query failed", slog.Any("error", err))
		}
	}

	if werr := conn.WriteJSON(wsMessage{Type: "error", Detail: detail}); werr != nil {
		log.Warn("websocket write failed", slog.Any("error", werr))
		return false
	}
	return true
}
