package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediasearch/searchservice/internal/domain"
)

// Task is one deferred invocation of a source for the current query.
type Task struct {
	Key     string
	Name    string
	Kind    domain.SourceKind
	Timeout time.Duration
	Run     func(ctx context.Context) ([]domain.ResultItem, error)
}

// Outcome is the settled result of a task. Batch is always usable; Err is kept
// only so the stream can report why a source contributed nothing.
type Outcome struct {
	Source     string
	SourceName string
	Kind       domain.SourceKind
	Batch      domain.ResultBatch
	Err        error
	Elapsed    time.Duration
}

func NewTask(adapter Adapter, query string) Task {
	return Task{
		Key:     adapter.Key(),
		Name:    adapter.Name(),
		Kind:    adapter.Kind(),
		Timeout: adapter.Timeout(),
		Run: func(ctx context.Context) ([]domain.ResultItem, error) {
			return adapter.Search(ctx, query)
		},
	}
}

// Execute runs the task under its own timeout and settles every failure mode
// (error, timeout, panic) into an empty batch for the source.
func (t Task) Execute(ctx context.Context) Outcome {
	startedAt := time.Now()
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	defer cancel()

	type result struct {
		items []domain.ResultItem
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrSourcePanic, recovered)}
			}
		}()
		if t.Run == nil {
			done <- result{}
			return
		}
		items, err := t.Run(runCtx)
		done <- result{items: items, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-runCtx.Done():
		// The adapter may ignore cancellation; its late result is dropped.
		res.err = runCtx.Err()
	}
	return t.settle(ctx, res.items, res.err, time.Since(startedAt))
}

func (t Task) settle(parent context.Context, items []domain.ResultItem, err error, elapsed time.Duration) Outcome {
	outcome := Outcome{
		Source:     t.Key,
		SourceName: t.Name,
		Kind:       t.Kind,
		Elapsed:    elapsed,
	}
	if err != nil {
		outcome.Err = t.classify(parent, err)
		outcome.Batch = domain.EmptyBatch(t.Key, t.Name)
		return outcome
	}

	batch := domain.EmptyBatch(t.Key, t.Name)
	for _, item := range items {
		if item.Source == "" {
			item.Source = t.Key
		}
		if item.SourceName == "" {
			item.SourceName = t.Name
		}
		if item.Episodes == nil {
			item.Episodes = []string{}
		}
		if item.EpisodeTitles == nil {
			item.EpisodeTitles = []string{}
		}
		batch.Results = append(batch.Results, item)
	}
	outcome.Batch = batch
	return outcome
}

func (t Task) classify(parent context.Context, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return ErrDeadlineExceeded
	case parent.Err() != nil:
		return ErrSearchCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrTaskTimeout, t.Timeout)
	default:
		return err
	}
}
