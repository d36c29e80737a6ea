package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
)

const defaultSuggestTimeout = 3 * time.Second

type Service struct {
	enumerator     SourceEnumerator
	scheduler      *Scheduler
	settings       SettingsProvider
	logger         *slog.Logger
	suggestTimeout time.Duration
	health         *healthTracker
}

type ServiceOption func(*Service)

func WithConcurrency(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.scheduler = NewScheduler(limit, s.scheduler.Deadline())
		}
	}
}

func WithGlobalDeadline(deadline time.Duration) ServiceOption {
	return func(s *Service) {
		if deadline > 0 {
			s.scheduler = NewScheduler(s.scheduler.Limit(), deadline)
		}
	}
}

func WithSettings(provider SettingsProvider) ServiceOption {
	return func(s *Service) {
		if provider != nil {
			s.settings = provider
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSuggestTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.suggestTimeout = timeout
		}
	}
}

func NewService(enumerator SourceEnumerator, opts ...ServiceOption) *Service {
	svc := &Service{
		enumerator:     enumerator,
		scheduler:      NewScheduler(defaultMaxConcurrent, defaultGlobalDeadline),
		settings:       StaticSettings(Settings{}),
		logger:         slog.Default(),
		suggestTimeout: defaultSuggestTimeout,
		health:         newHealthTracker(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search fans the query out to every source the principal may use and returns
// the merged, weight-ranked list. Source failures only shrink the result.
func (s *Service) Search(ctx context.Context, principal *domain.Principal, query string) (domain.SearchResponse, error) {
	q := normalizeQuery(query)
	if q == "" {
		return domain.SearchResponse{Results: []domain.ResultItem{}}, nil
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return domain.SearchResponse{}, ErrQueryTooLong
	}

	startedAt := time.Now()
	settings := s.settings.SearchSettings()
	adapters, err := s.enumerator.Enumerate(ctx, principal, settings)
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	tasks := tasksFor(adapters, q)
	outcomes := s.scheduler.Run(ctx, tasks, func(outcome Outcome, _ domain.Progress) {
		s.observe(outcome, q)
	})

	results, err := safeMerge(outcomes, settings)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	elapsed := time.Since(startedAt)
	metrics.AggregationDuration.WithLabelValues("batch").Observe(elapsed.Seconds())
	s.logger.Info("search completed",
		slog.String("query", truncateQuery(q)),
		slog.Int("sources", len(tasks)),
		slog.Int("results", len(results)),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return domain.SearchResponse{Results: results}, nil
}

func safeMerge(outcomes []Outcome, settings Settings) (results []domain.ResultItem, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			results = nil
			err = fmt.Errorf("%w: merge panicked: %v", ErrEngine, recovered)
		}
	}()
	return MergeBatches(batchesOf(outcomes), settings), nil
}

func tasksFor(adapters []Adapter, query string) []Task {
	tasks := make([]Task, 0, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		tasks = append(tasks, NewTask(adapter, query))
	}
	return tasks
}

func (s *Service) observe(outcome Outcome, query string) {
	s.health.record(outcome, query)
	if outcome.Err != nil {
		s.logger.Warn("source failed",
			slog.String("source", outcome.Source),
			slog.String("kind", string(outcome.Kind)),
			slog.String("error", outcome.Err.Error()),
			slog.Int64("elapsedMs", outcome.Elapsed.Milliseconds()),
		)
		return
	}
	s.logger.Debug("source completed",
		slog.String("source", outcome.Source),
		slog.Int("results", len(outcome.Batch.Results)),
		slog.Int64("elapsedMs", outcome.Elapsed.Milliseconds()),
	)
}

// Sources lists the sources the principal would query right now.
func (s *Service) Sources(ctx context.Context, principal *domain.Principal) ([]domain.SourceInfo, error) {
	settings := s.settings.SearchSettings()
	adapters, err := s.enumerator.Enumerate(ctx, principal, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	items := make([]domain.SourceInfo, 0, len(adapters))
	for _, adapter := range adapters {
		items = append(items, domain.SourceInfo{
			Key:    adapter.Key(),
			Name:   adapter.Name(),
			Kind:   adapter.Kind(),
			Weight: settings.Weight(adapter.Key()),
		})
	}
	return items, nil
}

func (s *Service) SourceDiagnostics(ctx context.Context, principal *domain.Principal) ([]domain.SourceDiagnostics, error) {
	sources, err := s.Sources(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.health.diagnostics(sources), nil
}
