package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"mediasearch/searchservice/internal/domain"
)

type ContentAPIClient interface {
	Search(ctx context.Context, site domain.ContentSite, query string) ([]domain.ResultItem, error)
}

type MediaServerClient interface {
	SearchItems(ctx context.Context, instance domain.MediaServerInstance, query string, limit int) ([]domain.MediaItem, error)
}

// CatalogIndex serves the local catalog entries, loading them from the
// persistent store when the in-memory copy is cold.
type CatalogIndex interface {
	Entries(ctx context.Context) ([]domain.CatalogEntry, error)
}

type AdapterLimits struct {
	ContentAPITimeout     time.Duration
	MediaServerTimeout    time.Duration
	LocalCatalogTimeout   time.Duration
	MaxResultsPerSource   int
	MediaServerPageSize   int
	LocalCatalogScanLimit int
}

func DefaultAdapterLimits() AdapterLimits {
	return AdapterLimits{
		ContentAPITimeout:     8 * time.Second,
		MediaServerTimeout:    5 * time.Second,
		LocalCatalogTimeout:   3 * time.Second,
		MaxResultsPerSource:   50,
		MediaServerPageSize:   50,
		LocalCatalogScanLimit: 5000,
	}
}

func (l AdapterLimits) withDefaults() AdapterLimits {
	defaults := DefaultAdapterLimits()
	if l.ContentAPITimeout <= 0 {
		l.ContentAPITimeout = defaults.ContentAPITimeout
	}
	if l.MediaServerTimeout <= 0 {
		l.MediaServerTimeout = defaults.MediaServerTimeout
	}
	if l.LocalCatalogTimeout <= 0 {
		l.LocalCatalogTimeout = defaults.LocalCatalogTimeout
	}
	if l.MaxResultsPerSource <= 0 {
		l.MaxResultsPerSource = defaults.MaxResultsPerSource
	}
	if l.MediaServerPageSize <= 0 {
		l.MediaServerPageSize = defaults.MediaServerPageSize
	}
	if l.LocalCatalogScanLimit <= 0 {
		l.LocalCatalogScanLimit = defaults.LocalCatalogScanLimit
	}
	return l
}

type contentAPIAdapter struct {
	site       domain.ContentSite
	client     ContentAPIClient
	filter     ContentFilter
	maxResults int
	timeout    time.Duration
}

func (a *contentAPIAdapter) Key() string             { return a.site.Key }
func (a *contentAPIAdapter) Name() string            { return a.site.Name }
func (a *contentAPIAdapter) Kind() domain.SourceKind { return domain.SourceKindContentAPI }
func (a *contentAPIAdapter) Timeout() time.Duration  { return a.timeout }

func (a *contentAPIAdapter) Search(ctx context.Context, query string) ([]domain.ResultItem, error) {
	items, err := a.client.Search(ctx, a.site, query)
	if err != nil {
		return nil, err
	}
	if len(items) > a.maxResults {
		items = items[:a.maxResults]
	}
	return a.filter.Apply(items), nil
}

type mediaServerAdapter struct {
	key      string
	name     string
	instance domain.MediaServerInstance
	client   MediaServerClient
	pageSize int
	timeout  time.Duration
}

func (a *mediaServerAdapter) Key() string             { return a.key }
func (a *mediaServerAdapter) Name() string            { return a.name }
func (a *mediaServerAdapter) Kind() domain.SourceKind { return domain.SourceKindMediaServer }
func (a *mediaServerAdapter) Timeout() time.Duration  { return a.timeout }

func (a *mediaServerAdapter) Search(ctx context.Context, query string) ([]domain.ResultItem, error) {
	native, err := a.client.SearchItems(ctx, a.instance, query, a.pageSize)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ResultItem, 0, len(native))
	for _, entry := range native {
		if strings.TrimSpace(entry.ID) == "" {
			continue
		}
		item := domain.ResultItem{
			ID:          entry.ID,
			Source:      a.key,
			SourceName:  a.name,
			Title:       strings.TrimSpace(entry.Name),
			PosterURL:   entry.ImageURL,
			Description: strings.TrimSpace(entry.Overview),
			TypeName:    mediaTypeLabel(entry.Type),
		}
		if entry.ProductionYear > 0 {
			item.Year = strconv.Itoa(entry.ProductionYear)
		}
		items = append(items, item)
		if len(items) >= a.pageSize {
			break
		}
	}
	return items, nil
}

func mediaTypeLabel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie":
		return "Movie"
	case "series":
		return "Series"
	default:
		return strings.TrimSpace(raw)
	}
}

const (
	localCatalogKey  = "local"
	localCatalogName = "Local Library"
	// scan loop checks for cancellation every this many entries
	catalogCancelCheck = 256
)

type localCatalogAdapter struct {
	index      CatalogIndex
	maxResults int
	scanLimit  int
	timeout    time.Duration
}

func (a *localCatalogAdapter) Key() string             { return localCatalogKey }
func (a *localCatalogAdapter) Name() string            { return localCatalogName }
func (a *localCatalogAdapter) Kind() domain.SourceKind { return domain.SourceKindLocalCatalog }
func (a *localCatalogAdapter) Timeout() time.Duration  { return a.timeout }

func (a *localCatalogAdapter) Search(ctx context.Context, query string) ([]domain.ResultItem, error) {
	entries, err := a.index.Entries(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	if needle == "" {
		return []domain.ResultItem{}, nil
	}

	items := make([]domain.ResultItem, 0, min(a.maxResults, len(entries)))
	for index, entry := range entries {
		if index >= a.scanLimit || len(items) >= a.maxResults {
			break
		}
		if index%catalogCancelCheck == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.Contains(fold.String(entry.Folder), needle) && !strings.Contains(fold.String(entry.Title), needle) {
			continue
		}
		items = append(items, catalogResult(entry))
	}
	return items, nil
}

func catalogResult(entry domain.CatalogEntry) domain.ResultItem {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = entry.Folder
	}
	id := entry.Path
	if id == "" {
		id = entry.Folder
	}
	item := domain.ResultItem{
		ID:            id,
		Source:        localCatalogKey,
		SourceName:    localCatalogName,
		Title:         title,
		PosterURL:     entry.PosterURL,
		Description:   entry.Overview,
		TypeName:      "Local",
		ExternalRefID: entry.TMDBID,
	}
	if entry.Year > 0 {
		item.Year = strconv.Itoa(entry.Year)
	}
	return item
}
