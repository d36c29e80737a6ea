package contentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
	"mediasearch/searchservice/internal/providers/common"
)

const (
	defaultUserAgent = "mediasearch/1.0"
	defaultCacheSize = 512
	defaultCacheTTL  = 10 * time.Minute
	maxResponseBytes = 4 << 20
)

var ErrUpstream = errors.New("content api rejected request")

type Config struct {
	Client    *http.Client
	UserAgent string
	CacheSize int
	CacheTTL  time.Duration
}

// Client queries CMS-style video APIs (`?ac=videolist&wd=`).
type Client struct {
	http      *http.Client
	userAgent string
	cache     *expirable.LRU[string, []domain.ResultItem]
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		cache:     expirable.NewLRU[string, []domain.ResultItem](size, nil, ttl),
	}
}

type listResponse struct {
	Code common.FlexString `json:"code"`
	Msg  string            `json:"msg"`
	List []vodItem         `json:"list"`
}

type vodItem struct {
	ID       common.FlexString `json:"vod_id"`
	Name     string            `json:"vod_name"`
	Pic      string            `json:"vod_pic"`
	Year     common.FlexString `json:"vod_year"`
	Content  string            `json:"vod_content"`
	TypeName string            `json:"type_name"`
	PlayFrom string            `json:"vod_play_from"`
	PlayURL  string            `json:"vod_play_url"`
	DoubanID common.FlexString `json:"vod_douban_id"`
}

func (c *Client) Search(ctx context.Context, site domain.ContentSite, query string) ([]domain.ResultItem, error) {
	query = strings.TrimSpace(query)
	cacheKey := site.Key + "\x00" + query
	if cached, ok := c.cache.Get(cacheKey); ok {
		metrics.ContentCacheHitsTotal.Inc()
		return slices.Clone(cached), nil
	}
	metrics.ContentCacheMissesTotal.Inc()

	endpoint, err := buildSearchURL(site.API, query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &common.StatusError{Service: site.Key, StatusCode: resp.StatusCode}
	}

	var payload listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", site.Key, err)
	}
	if code := payload.Code.String(); code != "" && code != "1" && len(payload.List) == 0 {
		return nil, fmt.Errorf("%w: code %s %s", ErrUpstream, code, strings.TrimSpace(payload.Msg))
	}

	items := make([]domain.ResultItem, 0, len(payload.List))
	for _, vod := range payload.List {
		item, ok := toResultItem(site, vod)
		if ok {
			items = append(items, item)
		}
	}
	c.cache.Add(cacheKey, items)
	return slices.Clone(items), nil
}

func buildSearchURL(api, query string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(api))
	if err != nil {
		return "", fmt.Errorf("parse content api url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported content api scheme %q", parsed.Scheme)
	}
	values := parsed.Query()
	values.Set("ac", "videolist")
	values.Set("wd", query)
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

func toResultItem(site domain.ContentSite, vod vodItem) (domain.ResultItem, bool) {
	id := vod.ID.String()
	title := strings.TrimSpace(vod.Name)
	if id == "" || title == "" {
		return domain.ResultItem{}, false
	}
	episodes, titles := parseEpisodes(vod.PlayFrom, vod.PlayURL)
	item := domain.ResultItem{
		ID:            id,
		Source:        site.Key,
		SourceName:    site.Name,
		Title:         title,
		PosterURL:     strings.TrimSpace(vod.Pic),
		Description:   common.CleanHTMLText(vod.Content),
		TypeName:      strings.TrimSpace(vod.TypeName),
		Episodes:      episodes,
		EpisodeTitles: titles,
	}
	if year := common.ParseYear(vod.Year.String()); year > 0 {
		item.Year = strconv.Itoa(year)
	}
	if ref, err := strconv.Atoi(vod.DoubanID.String()); err == nil && ref > 0 {
		item.ExternalRefID = ref
	}
	return item, true
}

// parseEpisodes reads play groups separated by "$$$", each a "#"-separated list
// of "title$url" pairs. The m3u8 group is preferred when one exists.
func parseEpisodes(playFrom, playURL string) ([]string, []string) {
	episodes := []string{}
	titles := []string{}
	if strings.TrimSpace(playURL) == "" {
		return episodes, titles
	}

	groups := strings.Split(playURL, "$$$")
	sources := strings.Split(playFrom, "$$$")
	chosen := 0
	for index, group := range groups {
		if index < len(sources) && strings.Contains(strings.ToLower(sources[index]), "m3u8") {
			chosen = index
			break
		}
		if strings.Contains(strings.ToLower(group), ".m3u8") {
			chosen = index
			break
		}
	}

	for position, part := range strings.Split(groups[chosen], "#") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		title, link, found := strings.Cut(part, "$")
		if !found {
			link = title
			title = ""
		}
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = "Episode " + strconv.Itoa(position+1)
		}
		episodes = append(episodes, link)
		titles = append(titles, title)
	}
	return episodes, titles
}
