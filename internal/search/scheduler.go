package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
)

const (
	defaultMaxConcurrent  = 3
	defaultGlobalDeadline = 20 * time.Second
)

// CompletionFunc observes each settled task. Calls are serialized and happen in
// completion order, exactly once per submitted task.
type CompletionFunc func(outcome Outcome, progress domain.Progress)

// Scheduler runs tasks with at most limit in flight and stops starting new
// ones once the global deadline passes or the context is cancelled.
type Scheduler struct {
	limit    int
	deadline time.Duration
	tracer   trace.Tracer
}

func NewScheduler(limit int, deadline time.Duration) *Scheduler {
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}
	if deadline <= 0 {
		deadline = defaultGlobalDeadline
	}
	return &Scheduler{
		limit:    limit,
		deadline: deadline,
		tracer:   otel.Tracer("mediasearch/searchservice/search"),
	}
}

func (s *Scheduler) Limit() int { return s.limit }

func (s *Scheduler) Deadline() time.Duration { return s.deadline }

// Run blocks until every task has settled or the deadline/cancellation fires.
// Tasks still pending at that point are reported as failed; their eventual
// results are ignored. Outcomes are returned in completion order.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, onComplete CompletionFunc) []Outcome {
	total := len(tasks)
	if total == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	var (
		mu        sync.Mutex
		completed int
		sealed    bool
		settled   = make([]bool, total)
		outcomes  = make([]Outcome, 0, total)
	)
	publish := func(index int, outcome Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if sealed || settled[index] {
			return
		}
		settled[index] = true
		completed++
		outcomes = append(outcomes, outcome)
		if onComplete != nil {
			onComplete(outcome, domain.Progress{Completed: completed, Total: total})
		}
	}

	sem := semaphore.NewWeighted(int64(s.limit))
	var wg sync.WaitGroup
	for index, task := range tasks {
		if runCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		metrics.SchedulerRunningTasks.Inc()
		go func(index int, task Task) {
			defer wg.Done()
			defer sem.Release(1)
			defer metrics.SchedulerRunningTasks.Dec()
			publish(index, s.execute(runCtx, task))
		}(index, task)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()
	select {
	case <-allDone:
	case <-runCtx.Done():
	}

	reason := ErrDeadlineExceeded
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ErrSearchCancelled
	}

	mu.Lock()
	defer mu.Unlock()
	for index, task := range tasks {
		if settled[index] {
			continue
		}
		settled[index] = true
		completed++
		outcome := Outcome{
			Source:     task.Key,
			SourceName: task.Name,
			Kind:       task.Kind,
			Batch:      domain.EmptyBatch(task.Key, task.Name),
			Err:        reason,
		}
		outcomes = append(outcomes, outcome)
		if onComplete != nil {
			onComplete(outcome, domain.Progress{Completed: completed, Total: total})
		}
	}
	sealed = true
	return outcomes
}

func (s *Scheduler) execute(ctx context.Context, task Task) Outcome {
	spanCtx, span := s.tracer.Start(ctx, "search.source",
		trace.WithAttributes(
			attribute.String("source.key", task.Key),
			attribute.String("source.kind", string(task.Kind)),
		),
	)
	defer span.End()

	outcome := task.Execute(spanCtx)
	span.SetAttributes(attribute.Int("source.results", len(outcome.Batch.Results)))
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	return outcome
}
