package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
)

var ErrStreamClosed = errors.New("stream closed")

// EmitFunc writes one event to the consumer. A non-nil error closes the stream.
type EmitFunc func(event domain.StreamEvent) error

// streamSink guards the consumer. Once a write fails or the request context
// ends, the sink stays closed and the shared context is cancelled so no
// further sources are started.
type streamSink struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	emit   EmitFunc
	closed atomic.Bool
}

func newStreamSink(parent context.Context, emit EmitFunc) *streamSink {
	ctx, cancel := context.WithCancelCause(parent)
	return &streamSink{ctx: ctx, cancel: cancel, emit: emit}
}

func (s *streamSink) send(event domain.StreamEvent) bool {
	if s.closed.Load() {
		return false
	}
	if s.ctx.Err() != nil {
		s.close(context.Cause(s.ctx))
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.emit(event); err != nil {
		s.close(err)
		return false
	}
	metrics.StreamEventsTotal.WithLabelValues(string(event.Type)).Inc()
	return true
}

func (s *streamSink) close(cause error) {
	if s.closed.CompareAndSwap(false, true) {
		metrics.StreamClosedTotal.Inc()
		s.cancel(fmt.Errorf("%w: %w", ErrStreamClosed, cause))
	}
}

func (s *streamSink) err() error {
	if !s.closed.Load() {
		return nil
	}
	cause := context.Cause(s.ctx)
	if errors.Is(cause, ErrStreamClosed) {
		return cause
	}
	// The parent ended first, so its cause won over the one passed to cancel.
	return fmt.Errorf("%w: %w", ErrStreamClosed, cause)
}

// SearchStream publishes one event per settled source, bracketed by start and
// complete. It returns once complete has been written or the stream closed.
func (s *Service) SearchStream(ctx context.Context, principal *domain.Principal, query string, emit EmitFunc) error {
	q := normalizeQuery(query)
	if q == "" {
		return ErrInvalidQuery
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return ErrQueryTooLong
	}

	startedAt := time.Now()
	settings := s.settings.SearchSettings()
	adapters, err := s.enumerator.Enumerate(ctx, principal, settings)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}
	tasks := tasksFor(adapters, q)

	sink := newStreamSink(ctx, emit)
	defer sink.cancel(nil)

	requestID := uuid.NewString()
	logger := s.logger.With(slog.String("requestId", requestID))
	if !sink.send(domain.StreamEvent{
		Type:      domain.StreamEventStart,
		RequestID: requestID,
		Query:     q,
		Total:     len(tasks),
	}) {
		return sink.err()
	}

	filter := settings.Filter()
	totalResults := 0
	s.scheduler.Run(sink.ctx, tasks, func(outcome Outcome, progress domain.Progress) {
		s.observe(outcome, q)
		if outcome.Err != nil {
			sink.send(domain.StreamEvent{
				Type:       domain.StreamEventSourceError,
				RequestID:  requestID,
				Source:     outcome.Source,
				SourceName: outcome.SourceName,
				Error:      outcome.Err.Error(),
				Completed:  progress.Completed,
				Total:      progress.Total,
			})
			return
		}
		results := filter.Apply(outcome.Batch.Results)
		totalResults += len(results)
		sink.send(domain.StreamEvent{
			Type:       domain.StreamEventSourceResult,
			RequestID:  requestID,
			Source:     outcome.Source,
			SourceName: outcome.SourceName,
			Results:    results,
			Completed:  progress.Completed,
			Total:      progress.Total,
		})
	})

	sink.send(domain.StreamEvent{
		Type:         domain.StreamEventComplete,
		RequestID:    requestID,
		TotalResults: totalResults,
		Completed:    len(tasks),
		Total:        len(tasks),
	})

	elapsed := time.Since(startedAt)
	metrics.AggregationDuration.WithLabelValues("stream").Observe(elapsed.Seconds())
	if err := sink.err(); err != nil {
		logger.Info("search stream closed early",
			slog.String("query", truncateQuery(q)),
			slog.String("reason", err.Error()),
			slog.Int64("elapsedMs", elapsed.Milliseconds()),
		)
		return err
	}
	logger.Info("search stream completed",
		slog.String("query", truncateQuery(q)),
		slog.Int("sources", len(tasks)),
		slog.Int("results", totalResults),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return nil
}
