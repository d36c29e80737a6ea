package localcatalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
	"mediasearch/searchservice/internal/providers/common"
	"mediasearch/searchservice/internal/providers/tmdb"
)

var (
	ErrCatalogDisabled   = errors.New("local catalog is not configured")
	ErrRebuildInProgress = errors.New("catalog rebuild already running")
)

const defaultEnrichConcurrency = 4

type SettingsSource interface {
	LocalCatalog(ctx context.Context) (domain.LocalCatalogSettings, error)
}

// Matcher looks up metadata for a parsed folder title.
type Matcher interface {
	Enabled() bool
	Match(ctx context.Context, title string, year int) (tmdb.SearchResult, bool, error)
}

type RebuilderConfig struct {
	Settings          SettingsSource
	Index             *Index
	Store             Store
	Matcher           Matcher
	HTTPClient        *http.Client
	Retry             common.RetryConfig
	EnrichConcurrency int
	Logger            *slog.Logger
}

type Rebuilder struct {
	settings          SettingsSource
	index             *Index
	store             Store
	matcher           Matcher
	httpClient        *http.Client
	retry             common.RetryConfig
	enrichConcurrency int
	logger            *slog.Logger
	running           atomic.Bool
}

func NewRebuilder(cfg RebuilderConfig) *Rebuilder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = common.DefaultRetryConfig()
	}
	concurrency := cfg.EnrichConcurrency
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return &Rebuilder{
		settings:          cfg.Settings,
		index:             cfg.Index,
		store:             cfg.Store,
		matcher:           cfg.Matcher,
		httpClient:        cfg.HTTPClient,
		retry:             retry,
		enrichConcurrency: concurrency,
		logger:            logger,
	}
}

// Rebuild re-indexes the top-level folders under the configured root and
// returns the entry count. Only one rebuild runs at a time.
func (r *Rebuilder) Rebuild(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRebuildInProgress
	}
	defer r.running.Store(false)

	settings, err := r.settings.LocalCatalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog settings: %w", err)
	}
	if !settings.Complete() {
		return 0, ErrCatalogDisabled
	}

	startedAt := time.Now()
	client := NewClient(ClientConfig{
		BaseURL:  settings.URL,
		Username: settings.Username,
		Password: settings.Password,
		HTTP:     r.httpClient,
	})
	root := strings.TrimSpace(settings.RootPath)
	if root == "" {
		root = "/"
	}

	var listing []FileEntry
	err = common.Retry(ctx, r.retry, func(ctx context.Context) error {
		var listErr error
		listing, listErr = client.List(ctx, root)
		return listErr
	})
	if err != nil {
		return 0, err
	}

	entries := make([]domain.CatalogEntry, 0, len(listing))
	for _, item := range listing {
		name := strings.TrimSpace(item.Name)
		if !item.IsDir || name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		title, year := common.SplitTitleYear(name)
		entries = append(entries, domain.CatalogEntry{
			Folder: name,
			Path:   path.Join(root, name),
			Title:  title,
			Year:   year,
		})
	}

	r.enrich(ctx, entries)

	if r.store != nil {
		if err := r.store.Save(ctx, entries); err != nil {
			return 0, fmt.Errorf("save catalog: %w", err)
		}
	}
	r.index.Replace(entries)

	elapsed := time.Since(startedAt)
	metrics.CatalogRebuildDuration.Observe(elapsed.Seconds())
	r.logger.Info("local catalog rebuilt",
		slog.String("root", root),
		slog.Int("entries", len(entries)),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return len(entries), nil
}

func (r *Rebuilder) enrich(ctx context.Context, entries []domain.CatalogEntry) {
	if r.matcher == nil || !r.matcher.Enabled() {
		return
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.enrichConcurrency)
	for index := range entries {
		group.Go(func() error {
			entry := &entries[index]
			match, ok, err := r.matcher.Match(groupCtx, entry.Title, entry.Year)
			if err != nil {
				r.logger.Debug("tmdb lookup failed",
					slog.String("folder", entry.Folder),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !ok {
				return nil
			}
			entry.TMDBID = match.ID
			entry.PosterURL = match.PosterURL()
			entry.Overview = match.Overview
			if entry.Year == 0 {
				entry.Year = match.Year()
			}
			return nil
		})
	}
	_ = group.Wait()
}

// Run rebuilds once at start and then every interval until ctx is done.
func (r *Rebuilder) Run(ctx context.Context, interval time.Duration) {
	rebuild := func() {
		if _, err := r.Rebuild(ctx); err != nil && !errors.Is(err, ErrCatalogDisabled) && ctx.Err() == nil {
			r.logger.Warn("local catalog rebuild failed", slog.String("error", err.Error()))
		}
	}
	rebuild()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rebuild()
		}
	}
}
