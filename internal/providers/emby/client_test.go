package emby

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/providers/common"
)

func TestSearchItemsUserScoped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/u1/Items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("searchTerm") != "matrix" || query.Get("IncludeItemTypes") != "Movie,Series" || query.Get("Limit") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Emby-Token") != "secret" {
			t.Errorf("missing token header")
		}
		_, _ = w.Write([]byte(`{"Items":[
		  {"Id":"a1","Name":"The Matrix","Type":"Movie","ProductionYear":1999,"Overview":"Neo.","ImageTags":{"Primary":"tag1"}},
		  {"Id":"","Name":"broken"},
		  {"Id":"b2","Name":"Matrix Show","Type":"Series"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{})
	instance := domain.MediaServerInstance{ID: "home", URL: srv.URL + "/", APIKey: "secret", UserID: "u1", Enabled: true}
	items, err := client.SearchItems(context.Background(), instance, "matrix", 50)
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	want := srv.URL + "/Items/a1/Images/Primary?maxWidth=400&tag=tag1"
	if items[0].ImageURL != want {
		t.Fatalf("unexpected poster %q, want %q", items[0].ImageURL, want)
	}
	if items[0].ProductionYear != 1999 || items[0].Type != "Movie" {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if items[1].ImageURL != "" {
		t.Fatalf("expected no poster without tag, got %q", items[1].ImageURL)
	}
}

func TestSearchItemsServerWide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"Items":[]}`))
	}))
	defer srv.Close()

	items, err := NewClient(Config{}).SearchItems(context.Background(), domain.MediaServerInstance{URL: srv.URL}, "x", 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %v %v", items, err)
	}
}

func TestSearchItemsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(Config{}).SearchItems(context.Background(), domain.MediaServerInstance{URL: srv.URL}, "x", 10)
	var statusErr *common.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}
