package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"mediasearch/searchservice/internal/domain"
)

type ContentSiteLister interface {
	ContentSites(ctx context.Context) ([]domain.ContentSite, error)
}

type MediaServerLister interface {
	MediaServers(ctx context.Context) ([]domain.MediaServerInstance, error)
}

type LocalCatalogConfigurer interface {
	LocalCatalog(ctx context.Context) (domain.LocalCatalogSettings, error)
}

const (
	mediaServerKey  = "emby"
	mediaServerName = "Emby"
)

type EnumeratorConfig struct {
	Sites         ContentSiteLister
	MediaServers  MediaServerLister
	Catalog       LocalCatalogConfigurer
	ContentClient ContentAPIClient
	MediaClient   MediaServerClient
	CatalogIndex  CatalogIndex
	Limits        AdapterLimits
	Logger        *slog.Logger
}

// Enumerator builds the per-request adapter list. A category whose
// collaborator fails contributes no sources; the others are unaffected.
type Enumerator struct {
	sites         ContentSiteLister
	mediaServers  MediaServerLister
	catalog       LocalCatalogConfigurer
	contentClient ContentAPIClient
	mediaClient   MediaServerClient
	catalogIndex  CatalogIndex
	limits        AdapterLimits
	logger        *slog.Logger
}

func NewEnumerator(cfg EnumeratorConfig) *Enumerator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{
		sites:         cfg.Sites,
		mediaServers:  cfg.MediaServers,
		catalog:       cfg.Catalog,
		contentClient: cfg.ContentClient,
		mediaClient:   cfg.MediaClient,
		catalogIndex:  cfg.CatalogIndex,
		limits:        cfg.Limits.withDefaults(),
		logger:        logger,
	}
}

func (e *Enumerator) Enumerate(ctx context.Context, principal *domain.Principal, settings Settings) ([]Adapter, error) {
	if principal == nil {
		return nil, fmt.Errorf("%w: missing principal", ErrEnumeration)
	}

	var (
		adapters  []Adapter
		attempted int
		failures  []error
	)

	if e.sites != nil && e.contentClient != nil {
		attempted++
		sites, err := e.sites.ContentSites(ctx)
		if err != nil {
			e.logger.Warn("content sources unavailable", slog.String("error", err.Error()))
			failures = append(failures, fmt.Errorf("content sites: %w", err))
		} else {
			adapters = append(adapters, e.contentAdapters(sites, principal, settings)...)
		}
	}

	if e.mediaServers != nil && e.mediaClient != nil {
		attempted++
		instances, err := e.mediaServers.MediaServers(ctx)
		if err != nil {
			e.logger.Warn("media servers unavailable", slog.String("error", err.Error()))
			failures = append(failures, fmt.Errorf("media servers: %w", err))
		} else {
			adapters = append(adapters, e.mediaAdapters(instances)...)
		}
	}

	if e.catalog != nil && e.catalogIndex != nil {
		attempted++
		catalog, err := e.catalog.LocalCatalog(ctx)
		if err != nil {
			e.logger.Warn("local catalog settings unavailable", slog.String("error", err.Error()))
			failures = append(failures, fmt.Errorf("local catalog: %w", err))
		} else if catalog.Complete() {
			adapters = append(adapters, &localCatalogAdapter{
				index:      e.catalogIndex,
				maxResults: e.limits.MaxResultsPerSource,
				scanLimit:  e.limits.LocalCatalogScanLimit,
				timeout:    e.limits.LocalCatalogTimeout,
			})
		}
	}

	if attempted > 0 && len(failures) == attempted {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, errors.Join(failures...))
	}
	return adapters, nil
}

func (e *Enumerator) contentAdapters(sites []domain.ContentSite, principal *domain.Principal, settings Settings) []Adapter {
	filter := settings.Filter()
	seen := make(map[string]struct{}, len(sites))
	adapters := make([]Adapter, 0, len(sites))
	for _, site := range sites {
		site.Key = strings.TrimSpace(site.Key)
		site.API = strings.TrimSpace(site.API)
		if site.Key == "" || site.API == "" || site.Disabled {
			continue
		}
		if _, dup := seen[site.Key]; dup {
			continue
		}
		if !principalAllowsSite(principal, site) {
			continue
		}
		seen[site.Key] = struct{}{}
		if strings.TrimSpace(site.Name) == "" {
			site.Name = site.Key
		}
		adapters = append(adapters, &contentAPIAdapter{
			site:       site,
			client:     e.contentClient,
			filter:     filter,
			maxResults: e.limits.MaxResultsPerSource,
			timeout:    e.limits.ContentAPITimeout,
		})
	}
	return adapters
}

func principalAllowsSite(principal *domain.Principal, site domain.ContentSite) bool {
	if len(site.Roles) > 0 && !slices.ContainsFunc(site.Roles, func(role string) bool {
		return strings.EqualFold(strings.TrimSpace(role), principal.Role)
	}) {
		return false
	}
	if len(principal.Sources) > 0 && !slices.Contains(principal.Sources, site.Key) {
		return false
	}
	return true
}

func (e *Enumerator) mediaAdapters(instances []domain.MediaServerInstance) []Adapter {
	enabled := make([]domain.MediaServerInstance, 0, len(instances))
	for _, instance := range instances {
		if instance.Enabled && strings.TrimSpace(instance.URL) != "" {
			enabled = append(enabled, instance)
		}
	}

	adapters := make([]Adapter, 0, len(enabled))
	for _, instance := range enabled {
		key, name := MediaServerIdentity(instance, len(enabled))
		adapters = append(adapters, &mediaServerAdapter{
			key:      key,
			name:     name,
			instance: instance,
			client:   e.mediaClient,
			pageSize: e.limits.MediaServerPageSize,
			timeout:  e.limits.MediaServerTimeout,
		})
	}
	return adapters
}

// MediaServerIdentity names a media-server source. A lone instance keeps the
// generic identity so clients built against a single server keep working.
func MediaServerIdentity(instance domain.MediaServerInstance, enabledCount int) (string, string) {
	if enabledCount <= 1 {
		return mediaServerKey, mediaServerName
	}
	id := strings.TrimSpace(instance.ID)
	if id == "" {
		id = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(instance.Name), " ", "-"))
	}
	name := strings.TrimSpace(instance.Name)
	if name == "" {
		name = id
	}
	return mediaServerKey + "_" + id, mediaServerName + " - " + name
}
