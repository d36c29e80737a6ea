package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediasearch/searchservice/internal/auth"
	"mediasearch/searchservice/internal/domain"
)

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	writer := &sseWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: s.streamWriteTimeout,
		logger:       s.logger,
	}
	err := s.search.SearchStream(r.Context(), auth.PrincipalFrom(r.Context()), query, writer.emit)
	writer.clearDeadline()
	if err == nil {
		return
	}
	if !writer.started {
		s.writeSearchError(w, r, query, err)
		return
	}
	s.logger.Debug("search stream closed early",
		slog.String("query", truncate(query, 60)),
		slog.String("error", err.Error()),
	)
}

// sseWriter sends headers lazily so that errors raised before the first
// event still get a JSON error response.
type sseWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	logger       *slog.Logger
	started      bool
	noDeadline   bool
}

func (sw *sseWriter) emit(event domain.StreamEvent) error {
	if !sw.started {
		header := sw.w.Header()
		header.Set("Content-Type", "text/event-stream; charset=utf-8")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		sw.w.WriteHeader(http.StatusOK)
		sw.started = true
	}
	sw.armDeadline()
	return writeSSEEvent(sw.w, sw.rc, event.Payload())
}

func (sw *sseWriter) armDeadline() {
	if sw.writeTimeout <= 0 || sw.noDeadline {
		return
	}
	if err := sw.rc.SetWriteDeadline(time.Now().Add(sw.writeTimeout)); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			sw.noDeadline = true
			sw.logger.Debug("stream write deadline not supported by response writer")
		}
	}
}

func (sw *sseWriter) clearDeadline() {
	if sw.started && !sw.noDeadline && sw.writeTimeout > 0 {
		_ = sw.rc.SetWriteDeadline(time.Time{})
	}
}

func writeSSEEvent(w http.ResponseWriter, rc *http.ResponseController, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	return rc.Flush()
}
