package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediasearch/searchservice/internal/auth"
	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/providers/localcatalog"
	"mediasearch/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, principal *domain.Principal, query string) (domain.SearchResponse, error)
	SearchStream(ctx context.Context, principal *domain.Principal, query string, emit search.EmitFunc) error
	Suggestions(ctx context.Context, principal *domain.Principal, query string) ([]domain.Suggestion, error)
	Sources(ctx context.Context, principal *domain.Principal) ([]domain.SourceInfo, error)
	SourceDiagnostics(ctx context.Context, principal *domain.Principal) ([]domain.SourceDiagnostics, error)
}

type Authenticator interface {
	Authenticate(r *http.Request) (*domain.Principal, error)
}

type CatalogRefresher interface {
	Rebuild(ctx context.Context) (int, error)
}

type Server struct {
	search             SearchService
	auth               Authenticator
	catalog            CatalogRefresher
	imageHosts         func() []string
	logger             *slog.Logger
	cacheMaxAge        time.Duration
	streamWriteTimeout time.Duration
	imageUserAgent     string
}

const (
	emptyQueryMaxAge     = 24 * time.Hour
	catalogRefreshBudget = 5 * time.Minute
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAuthenticator(authenticator Authenticator) ServerOption {
	return func(s *Server) {
		s.auth = authenticator
	}
}

func WithCatalogRefresher(catalog CatalogRefresher) ServerOption {
	return func(s *Server) {
		s.catalog = catalog
	}
}

// WithImageHosts allows the image proxy to reach the returned hosts even when
// they resolve to private addresses.
func WithImageHosts(hosts func() []string) ServerOption {
	return func(s *Server) {
		s.imageHosts = hosts
	}
}

func WithCacheMaxAge(maxAge time.Duration) ServerOption {
	return func(s *Server) {
		if maxAge >= 0 {
			s.cacheMaxAge = maxAge
		}
	}
}

func WithStreamWriteTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.streamWriteTimeout = timeout
		}
	}
}

func WithImageUserAgent(userAgent string) ServerOption {
	return func(s *Server) {
		if strings.TrimSpace(userAgent) != "" {
			s.imageUserAgent = strings.TrimSpace(userAgent)
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:             searchService,
		logger:             slog.Default(),
		cacheMaxAge:        2 * time.Minute,
		streamWriteTimeout: 10 * time.Second,
		imageUserAgent:     "media-search/1.0",
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/search", s.requirePrincipal(s.handleSearch))
	mux.Handle("/search/stream", s.requirePrincipal(s.handleSearchStream))
	mux.Handle("/search/suggestions", s.requirePrincipal(s.handleSuggestions))
	mux.Handle("/search/sources", s.requirePrincipal(s.handleSources))
	mux.Handle("/search/sources/health", s.requirePrincipal(s.handleSourcesHealth))
	mux.Handle("/search/catalog/refresh", s.requirePrincipal(s.handleCatalogRefresh))
	mux.Handle("/search/image", s.requirePrincipal(s.handleImageProxy))
	// The stream bypasses otelhttp so its writer keeps deadline support; source
	// spans are still recorded by the scheduler.
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "media-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/search/stream"
		}),
	)
	return requestIDMiddleware(recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced))))
}

// requirePrincipal rejects the request with 401 before the handler runs unless
// the authenticator yields a principal.
func (s *Server) requirePrincipal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication is not configured")
			return
		}
		principal, err := s.auth.Authenticate(r)
		if err != nil || principal == nil {
			message := "authentication required"
			if errors.Is(err, auth.ErrInvalidToken) {
				message = "invalid token"
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", message)
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
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

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		w.Header().Set("Cache-Control", cacheControl("public", emptyQueryMaxAge))
		writeJSON(w, http.StatusOK, domain.SearchResponse{Results: []domain.ResultItem{}})
		return
	}

	response, err := s.search.Search(r.Context(), auth.PrincipalFrom(r.Context()), query)
	if err != nil {
		s.writeSearchError(w, r, query, err)
		return
	}
	if response.Results == nil {
		response.Results = []domain.ResultItem{}
	}
	w.Header().Set("Cache-Control", cacheControl("private", s.cacheMaxAge))
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/suggestions" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Suggestion{}})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Suggestion{}})
		return
	}

	items, err := s.search.Suggestions(r.Context(), auth.PrincipalFrom(r.Context()), query)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrNoSuggestSource):
		items = nil
	case errors.Is(err, search.ErrQueryTooLong), errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	default:
		s.logger.Warn("suggestions failed", slog.String("query", truncate(query, 60)), slog.String("error", err.Error()))
		items = nil
	}
	if items == nil {
		items = []domain.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/sources" {
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

	items, err := s.search.Sources(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.logger.Error("list sources failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sources")
		return
	}
	if items == nil {
		items = []domain.SourceInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/sources/health" {
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

	items, err := s.search.SourceDiagnostics(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.logger.Error("source diagnostics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read source health")
		return
	}
	if items == nil {
		items = []domain.SourceDiagnostics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     items,
	})
}

func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/catalog/refresh" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil || principal.Role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable", "local catalog is not configured")
		return
	}

	// A dropped client must not abort a half-written index.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), catalogRefreshBudget)
	defer cancel()

	started := time.Now()
	count, err := s.catalog.Rebuild(ctx)
	switch {
	case err == nil:
	case errors.Is(err, localcatalog.ErrRebuildInProgress):
		writeError(w, http.StatusConflict, "rebuild_in_progress", err.Error())
		return
	case errors.Is(err, localcatalog.ErrCatalogDisabled):
		writeError(w, http.StatusConflict, "catalog_disabled", err.Error())
		return
	default:
		s.logger.Error("catalog refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", "catalog refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":   count,
		"elapsedMs": time.Since(started).Milliseconds(),
	})
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, query string, err error) {
	switch {
	case errors.Is(err, search.ErrQueryTooLong), errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Debug("search aborted by client", slog.String("query", truncate(query, 60)))
	default:
		s.logger.ErrorContext(r.Context(), "search failed",
			slog.String("query", truncate(query, 60)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func cacheControl(scope string, maxAge time.Duration) string {
	seconds := int64(maxAge / time.Second)
	if seconds <= 0 {
		return "no-store"
	}
	return scope + ", max-age=" + strconv.FormatInt(seconds, 10)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
