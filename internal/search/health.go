package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
)

type sourceHealth struct {
	kind                domain.SourceKind
	name                string
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker records per-source outcomes for diagnostics. It never
// prevents a source from being scheduled.
type healthTracker struct {
	mu     sync.Mutex
	states map[string]*sourceHealth
	now    func() time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		states: make(map[string]*sourceHealth),
		now:    time.Now,
	}
}

func (h *healthTracker) record(outcome Outcome, query string) {
	key := strings.TrimSpace(outcome.Source)
	if key == "" {
		return
	}
	// Cancelled tasks say nothing about the source.
	if errors.Is(outcome.Err, ErrSearchCancelled) {
		return
	}

	now := h.now()
	timeout := isTimeoutLikeError(outcome.Err)
	status := "ok"
	switch {
	case timeout:
		status = "timeout"
	case outcome.Err != nil:
		status = "error"
	}
	metrics.SourceRequestsTotal.WithLabelValues(key, string(outcome.Kind), status).Inc()
	if outcome.Elapsed > 0 {
		metrics.SourceRequestDuration.WithLabelValues(key).Observe(outcome.Elapsed.Seconds())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[key]
	if state == nil {
		state = &sourceHealth{}
		h.states[key] = state
	}
	state.kind = outcome.Kind
	state.name = outcome.SourceName
	state.totalRequests++
	state.lastQuery = truncateQuery(query)
	if outcome.Elapsed > 0 {
		state.lastLatency = outcome.Elapsed
	}
	state.lastTimeout = timeout
	if timeout {
		state.timeoutCount++
	}

	if outcome.Err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		return
	}
	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = outcome.Err.Error()
}

func (h *healthTracker) diagnostics(sources []domain.SourceInfo) []domain.SourceDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.SourceDiagnostics, 0, len(sources))
	for _, info := range sources {
		item := domain.SourceDiagnostics{
			Key:  info.Key,
			Name: info.Name,
			Kind: info.Kind,
		}
		if state := h.states[info.Key]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})
	return items
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTaskTimeout) || errors.Is(err, ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

func truncateQuery(query string) string {
	const maxLogged = 64
	runes := []rune(strings.TrimSpace(query))
	if len(runes) <= maxLogged {
		return string(runes)
	}
	return string(runes[:maxLogged]) + "…"
}
