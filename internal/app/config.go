package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr              string
	LogLevel              string
	LogFormat             string
	UserAgent             string
	MaxConcurrent         int
	GlobalTimeout         time.Duration
	ContentAPITimeout     time.Duration
	MediaServerTimeout    time.Duration
	LocalCatalogTimeout   time.Duration
	SuggestTimeout        time.Duration
	MaxResultsPerSource   int
	MediaServerPageSize   int
	LocalCatalogScanLimit int
	CacheMaxAge           time.Duration
	SourceCacheTTL        time.Duration
	StreamWriteTimeout    time.Duration
	SourcesFile           string
	RedisURL              string
	TMDBAPIKey            string
	TMDBBaseURL           string
	TMDBCacheTTL          time.Duration
	CatalogRefresh        time.Duration
	Auth                  AuthConfig
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Disabled bool
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8090"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:             getEnv("SEARCH_USER_AGENT", "mediasearch/1.0"),
		MaxConcurrent:         getEnvInt("SEARCH_MAX_CONCURRENT", 3),
		GlobalTimeout:         time.Duration(getEnvInt("SEARCH_GLOBAL_TIMEOUT_SECONDS", 20)) * time.Second,
		ContentAPITimeout:     time.Duration(getEnvInt("SEARCH_CONTENT_API_TIMEOUT_SECONDS", 8)) * time.Second,
		MediaServerTimeout:    time.Duration(getEnvInt("SEARCH_MEDIA_SERVER_TIMEOUT_SECONDS", 5)) * time.Second,
		LocalCatalogTimeout:   time.Duration(getEnvInt("SEARCH_LOCAL_CATALOG_TIMEOUT_SECONDS", 3)) * time.Second,
		SuggestTimeout:        time.Duration(getEnvInt("SEARCH_SUGGEST_TIMEOUT_SECONDS", 3)) * time.Second,
		MaxResultsPerSource:   getEnvInt("SEARCH_MAX_RESULTS_PER_SOURCE", 50),
		MediaServerPageSize:   getEnvInt("SEARCH_MEDIA_SERVER_PAGE_SIZE", 50),
		LocalCatalogScanLimit: getEnvInt("SEARCH_LOCAL_CATALOG_SCAN_LIMIT", 5000),
		CacheMaxAge:           time.Duration(getEnvInt("SEARCH_CACHE_SECONDS", 120)) * time.Second,
		SourceCacheTTL:        time.Duration(getEnvInt("SEARCH_SOURCE_CACHE_TTL_MINUTES", 10)) * time.Minute,
		StreamWriteTimeout:    time.Duration(getEnvInt("SEARCH_STREAM_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		SourcesFile:           getEnv("SOURCES_FILE", "config/sources.yaml"),
		RedisURL:              getEnv("REDIS_URL", ""),
		TMDBAPIKey:            strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:           getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBCacheTTL:          time.Duration(getEnvInt("TMDB_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
		CatalogRefresh:        time.Duration(getEnvInt("LOCAL_CATALOG_REFRESH_HOURS", 6)) * time.Hour,
		Auth: AuthConfig{
			Secret:   strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
			Issuer:   getEnv("AUTH_JWT_ISSUER", ""),
			Audience: getEnv("AUTH_JWT_AUDIENCE", ""),
			Disabled: getEnvBool("AUTH_DISABLED", false),
		},
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
