package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediasearch/searchservice/internal/providers/common"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	posterBaseURL   = "https://image.tmdb.org/t/p/w300"
	defaultLanguage = "en-US"
	redisCacheKey   = "msearch:tmdb:"
)

type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    redis.UniversalClient
	cacheTTL time.Duration
}

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Redis    redis.UniversalClient
	CacheTTL time.Duration
}

type SearchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	MediaType    string  `json:"media_type,omitempty"`
}

func (r SearchResult) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r SearchResult) Year() int {
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

func (r SearchResult) PosterURL() string {
	if r.PosterPath == "" {
		return ""
	}
	return posterBaseURL + r.PosterPath
}

type multiSearchResponse struct {
	Results []SearchResult `json:"results"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// SearchMulti returns movie and TV matches for query. Responses are cached in
// Redis when a client is configured.
func (c *Client) SearchMulti(ctx context.Context, query string) ([]SearchResult, error) {
	if !c.Enabled() {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	cacheKey := fmt.Sprintf("%smulti:%s:%s", redisCacheKey, strings.ToLower(query), c.language)

	if c.redis != nil {
		data, err := c.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var results []SearchResult
			if json.Unmarshal(data, &results) == nil {
				return results, nil
			}
		}
	}

	params := url.Values{
		"api_key":  {c.apiKey},
		"query":    {query},
		"language": {c.language},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/multi?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &common.StatusError{Service: "tmdb", StatusCode: resp.StatusCode}
	}

	var response multiSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode tmdb response: %w", err)
	}

	results := make([]SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		if r.MediaType == "movie" || r.MediaType == "tv" {
			results = append(results, r)
		}
	}

	if c.redis != nil {
		if data, err := json.Marshal(results); err == nil {
			_ = c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err()
		}
	}
	return results, nil
}

// Match picks the best result for a parsed title. When year is known, results
// from that year (or one off, for festival releases) win.
func (c *Client) Match(ctx context.Context, title string, year int) (SearchResult, bool, error) {
	results, err := c.SearchMulti(ctx, title)
	if err != nil || len(results) == 0 {
		return SearchResult{}, false, err
	}
	if year <= 0 {
		return results[0], true, nil
	}
	for _, r := range results {
		diff := r.Year() - year
		if diff >= -1 && diff <= 1 {
			return r, true, nil
		}
	}
	return SearchResult{}, false, nil
}
