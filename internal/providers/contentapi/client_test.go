package contentapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/providers/common"
)

const videolistPayload = `{
  "code": 1,
  "msg": "ok",
  "list": [
    {
      "vod_id": 101,
      "vod_name": "Alpha Station",
      "vod_pic": "https://img.example/alpha.jpg",
      "vod_year": "2021",
      "vod_content": "<p>A crew &amp; a <b>station</b>.</p>",
      "type_name": "Sci-Fi",
      "vod_play_from": "yun$$$m3u8",
      "vod_play_url": "EP1$https://yun.example/1$$$EP1$https://cdn.example/1.m3u8#EP2$https://cdn.example/2.m3u8",
      "vod_douban_id": "3541415"
    },
    {"vod_id": "", "vod_name": "missing id"},
    {"vod_id": "x7", "vod_name": "Beta", "vod_year": 0, "vod_play_url": ""}
  ]
}`

func TestSearchMapsVideolist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ac") != "videolist" || r.URL.Query().Get("wd") != "alpha" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("token") != "t1" {
			t.Errorf("configured query parameters were dropped: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(videolistPayload))
	}))
	defer srv.Close()

	client := NewClient(Config{})
	site := domain.ContentSite{Key: "alpha", Name: "Alpha CMS", API: srv.URL + "/api.php/provide/vod?token=t1"}
	items, err := client.Search(context.Background(), site, " alpha ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "101" || first.Source != "alpha" || first.SourceName != "Alpha CMS" {
		t.Fatalf("unexpected identity: %+v", first)
	}
	if first.Description != "A crew & a station ." {
		t.Fatalf("unexpected description %q", first.Description)
	}
	if first.Year != "2021" || first.TypeName != "Sci-Fi" || first.ExternalRefID != 3541415 {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	if len(first.Episodes) != 2 || first.Episodes[1] != "https://cdn.example/2.m3u8" || first.EpisodeTitles[0] != "EP1" {
		t.Fatalf("expected m3u8 group episodes, got %v %v", first.Episodes, first.EpisodeTitles)
	}

	second := items[1]
	if second.Year != "" || second.Episodes == nil || len(second.Episodes) != 0 {
		t.Fatalf("unexpected second item: %+v", second)
	}
}

func TestSearchCachesPerSiteAndQuery(t *testing.T) {
	var calls atomic.Int32
	var lastWord atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		lastWord.Store(r.URL.Query().Get("wd"))
		_, _ = w.Write([]byte(videolistPayload))
	}))
	defer srv.Close()

	client := NewClient(Config{})
	site := domain.ContentSite{Key: "alpha", API: srv.URL}
	for i := 0; i < 3; i++ {
		if _, err := client.Search(context.Background(), site, "Alpha"); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	other := domain.ContentSite{Key: "beta", API: srv.URL}
	if _, err := client.Search(context.Background(), other, "Alpha"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", got)
	}

	// Upstream search may be case-sensitive, so a differently cased query is
	// fetched rather than served from the "Alpha" entry.
	if _, err := client.Search(context.Background(), site, "alpha"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := calls.Load(); got != 3 || lastWord.Load() != "alpha" {
		t.Fatalf("expected exact-case upstream call, got %d calls wd=%v", got, lastWord.Load())
	}
}

func TestSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/rejected":
			_, _ = w.Write([]byte(`{"code": 0, "msg": "closed", "list": []}`))
		default:
			_, _ = w.Write([]byte(`<html>not json</html>`))
		}
	}))
	defer srv.Close()

	client := NewClient(Config{})
	_, err := client.Search(context.Background(), domain.ContentSite{Key: "a", API: srv.URL + "/down"}, "q")
	var statusErr *common.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}

	_, err = client.Search(context.Background(), domain.ContentSite{Key: "b", API: srv.URL + "/rejected"}, "q")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	if _, err = client.Search(context.Background(), domain.ContentSite{Key: "c", API: srv.URL + "/html"}, "q"); err == nil {
		t.Fatal("expected decode error")
	}

	if _, err = client.Search(context.Background(), domain.ContentSite{Key: "d", API: "ftp://example"}, "q"); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestParseEpisodes(t *testing.T) {
	cases := []struct {
		name      string
		playFrom  string
		playURL   string
		wantLinks []string
		wantNames []string
	}{
		{
			name:      "single group",
			playURL:   "第1集$https://a/1#第2集$https://a/2",
			wantLinks: []string{"https://a/1", "https://a/2"},
			wantNames: []string{"第1集", "第2集"},
		},
		{
			name:      "m3u8 detected from url",
			playFrom:  "x$$$y",
			playURL:   "HD$https://a/1.mp4$$$HD$https://b/1.m3u8",
			wantLinks: []string{"https://b/1.m3u8"},
			wantNames: []string{"HD"},
		},
		{
			name:      "bare links get numbered titles",
			playURL:   "https://a/1##https://a/2",
			wantLinks: []string{"https://a/1", "https://a/2"},
			wantNames: []string{"Episode 1", "Episode 3"},
		},
		{
			name:      "empty",
			wantLinks: []string{},
			wantNames: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			links, names := parseEpisodes(tc.playFrom, tc.playURL)
			if len(links) != len(tc.wantLinks) || len(names) != len(tc.wantNames) {
				t.Fatalf("got %v %v, want %v %v", links, names, tc.wantLinks, tc.wantNames)
			}
			for i := range links {
				if links[i] != tc.wantLinks[i] || names[i] != tc.wantNames[i] {
					t.Fatalf("episode %d: got (%q, %q), want (%q, %q)", i, names[i], links[i], tc.wantNames[i], tc.wantLinks[i])
				}
			}
		})
	}
}
