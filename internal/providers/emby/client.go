package emby

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/providers/common"
)

const (
	defaultUserAgent = "mediasearch/1.0"
	posterMaxWidth   = 400
	maxResponseBytes = 2 << 20
)

type Config struct {
	Client    *http.Client
	UserAgent string
}

// Client talks to Emby-compatible media servers. One client serves every
// configured instance; the instance carries the base URL and token.
type Client struct {
	http      *http.Client
	userAgent string
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
	return &Client{http: httpClient, userAgent: userAgent}
}

type itemsResponse struct {
	Items []embyItem `json:"Items"`
}

type embyItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	Type           string            `json:"Type"`
	ProductionYear int               `json:"ProductionYear"`
	Overview       string            `json:"Overview"`
	ImageTags      map[string]string `json:"ImageTags"`
}

func (c *Client) SearchItems(ctx context.Context, instance domain.MediaServerInstance, query string, limit int) ([]domain.MediaItem, error) {
	base := strings.TrimRight(strings.TrimSpace(instance.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("media server %q has no url", instance.ID)
	}

	path := "/Items"
	if userID := strings.TrimSpace(instance.UserID); userID != "" {
		path = "/Users/" + url.PathEscape(userID) + "/Items"
	}
	params := url.Values{
		"searchTerm":       {strings.TrimSpace(query)},
		"IncludeItemTypes": {"Movie,Series"},
		"Recursive":        {"true"},
		"Fields":           {"Overview,ProductionYear"},
	}
	if limit > 0 {
		params.Set("Limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(instance.APIKey); token != "" {
		req.Header.Set("X-Emby-Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &common.StatusError{Service: "emby", StatusCode: resp.StatusCode}
	}

	var payload itemsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode emby items: %w", err)
	}

	items := make([]domain.MediaItem, 0, len(payload.Items))
	for _, raw := range payload.Items {
		if raw.ID == "" {
			continue
		}
		items = append(items, domain.MediaItem{
			ID:             raw.ID,
			Name:           raw.Name,
			Type:           raw.Type,
			ProductionYear: raw.ProductionYear,
			Overview:       raw.Overview,
			ImageURL:       PosterURL(base, raw.ID, raw.ImageTags["Primary"]),
		})
	}
	return items, nil
}

// PosterURL builds the primary image URL for an item. Items without a primary
// image tag have no poster.
func PosterURL(base, itemID, tag string) string {
	if tag == "" {
		return ""
	}
	params := url.Values{
		"maxWidth": {strconv.Itoa(posterMaxWidth)},
		"tag":      {tag},
	}
	return strings.TrimRight(base, "/") + "/Items/" + url.PathEscape(itemID) + "/Images/Primary?" + params.Encode()
}
