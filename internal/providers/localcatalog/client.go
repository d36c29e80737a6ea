package localcatalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"mediasearch/searchservice/internal/providers/common"
)

var ErrUnauthorized = errors.New("file server rejected credentials")

type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	HTTP     *http.Client
}

// Client is a minimal OpenList/AList API client covering login and
// directory listing.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     httpClient,
	}
}

func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	var data struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": c.username, "password": c.password}
	if err := c.post(ctx, "/api/auth/login", "", body, &data); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if data.Token == "" {
		return "", fmt.Errorf("login: %w", ErrUnauthorized)
	}
	c.token = data.Token
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// List returns the entries of dir. An expired token triggers one re-login.
func (c *Client) List(ctx context.Context, dir string) ([]FileEntry, error) {
	var data struct {
		Content []FileEntry `json:"content"`
	}
	body := map[string]any{
		"path":     dir,
		"password": "",
		"page":     1,
		"per_page": 0,
		"refresh":  false,
	}
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.login(ctx)
		if err != nil {
			return nil, err
		}
		err = c.post(ctx, "/api/fs/list", token, body, &data)
		if errors.Is(err, ErrUnauthorized) && attempt == 0 {
			c.resetToken()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		return data.Content, nil
	}
	return nil, fmt.Errorf("list %s: %w", dir, ErrUnauthorized)
}

func (c *Client) post(ctx context.Context, path, token string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return &common.StatusError{Service: "openlist", StatusCode: resp.StatusCode}
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("decode openlist response: %w", err)
	}
	switch {
	case envelope.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case envelope.Code >= 500:
		return &common.StatusError{Service: "openlist", StatusCode: envelope.Code}
	case envelope.Code != http.StatusOK:
		return fmt.Errorf("openlist code %d: %s", envelope.Code, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
