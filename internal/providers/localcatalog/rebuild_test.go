package localcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/providers/common"
	"mediasearch/searchservice/internal/providers/tmdb"
)

type staticSettings struct {
	settings domain.LocalCatalogSettings
	err      error
}

func (s staticSettings) LocalCatalog(context.Context) (domain.LocalCatalogSettings, error) {
	return s.settings, s.err
}

type fakeMatcher struct {
	results map[string]tmdb.SearchResult
}

func (m fakeMatcher) Enabled() bool { return true }

func (m fakeMatcher) Match(_ context.Context, title string, _ int) (tmdb.SearchResult, bool, error) {
	result, ok := m.results[title]
	return result, ok, nil
}

type fileServer struct {
	listCalls  atomic.Int32
	loginCalls atomic.Int32
	failLists  int32
	expireOnce atomic.Bool
}

func (f *fileServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "admin" || body["password"] != "pw" {
			_, _ = w.Write([]byte(`{"code":400,"message":"bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"token":"tok"}}`))
	})
	mux.HandleFunc("/api/fs/list", func(w http.ResponseWriter, r *http.Request) {
		n := f.listCalls.Add(1)
		if r.Header.Get("Authorization") != "tok" {
			t.Errorf("missing token on list")
		}
		if f.expireOnce.CompareAndSwap(true, false) {
			_, _ = w.Write([]byte(`{"code":401,"message":"token expired"}`))
			return
		}
		if n <= f.failLists {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["path"] != "/movies" {
			t.Errorf("unexpected path %v", body["path"])
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":[
		  {"name":"Spirited Away (2001)","is_dir":true},
		  {"name":"Unknown Folder","is_dir":true},
		  {"name":".trash","is_dir":true},
		  {"name":"readme.txt","is_dir":false}
		]}}`))
	})
	return mux
}

func catalogSettings(url string) staticSettings {
	return staticSettings{settings: domain.LocalCatalogSettings{
		Enabled: true, URL: url, Username: "admin", Password: "pw", RootPath: "/movies",
	}}
}

func fastRetry() common.RetryConfig {
	return common.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRebuildIndexesFoldersAndPersists(t *testing.T) {
	files := &fileServer{failLists: 1}
	srv := httptest.NewServer(files.handler(t))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, "")
	index := NewIndex(store)

	rebuilder := NewRebuilder(RebuilderConfig{
		Settings: catalogSettings(srv.URL),
		Index:    index,
		Store:    store,
		Matcher: fakeMatcher{results: map[string]tmdb.SearchResult{
			"Spirited Away": {ID: 129, PosterPath: "/sa.jpg", Overview: "Chihiro.", ReleaseDate: "2001-07-20"},
		}},
		Retry: fastRetry(),
	})

	count, err := rebuilder.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}
	if got := files.listCalls.Load(); got != 2 {
		t.Fatalf("expected one retried list call, got %d calls", got)
	}

	entries, err := index.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	first := entries[0]
	if first.Title != "Spirited Away" || first.Year != 2001 || first.Path != "/movies/Spirited Away (2001)" || first.TMDBID != 129 {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if entries[1].Title != "Unknown Folder" || entries[1].TMDBID != 0 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	// A fresh index, as after restart, is served from Redis.
	restored, err := NewIndex(NewRedisStore(rdb, "")).Entries(context.Background())
	if err != nil || len(restored) != 2 {
		t.Fatalf("expected 2 restored entries, got %d (%v)", len(restored), err)
	}
	updatedAt, err := store.UpdatedAt(context.Background())
	if err != nil || updatedAt.IsZero() {
		t.Fatalf("expected update timestamp, got %v %v", updatedAt, err)
	}
}

func TestRebuildReloginsOnExpiredToken(t *testing.T) {
	files := &fileServer{}
	files.expireOnce.Store(true)
	srv := httptest.NewServer(files.handler(t))
	defer srv.Close()

	index := NewIndex(nil)
	rebuilder := NewRebuilder(RebuilderConfig{Settings: catalogSettings(srv.URL), Index: index, Retry: fastRetry()})
	if _, err := rebuilder.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := files.loginCalls.Load(); got != 2 {
		t.Fatalf("expected re-login after expiry, got %d logins", got)
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", index.Len())
	}
}

func TestRebuildRequiresCompleteSettings(t *testing.T) {
	rebuilder := NewRebuilder(RebuilderConfig{
		Settings: staticSettings{settings: domain.LocalCatalogSettings{Enabled: true, URL: "http://files"}},
		Index:    NewIndex(nil),
	})
	if _, err := rebuilder.Rebuild(context.Background()); !errors.Is(err, ErrCatalogDisabled) {
		t.Fatalf("expected ErrCatalogDisabled, got %v", err)
	}
}

func TestRebuildRejectsBadCredentials(t *testing.T) {
	files := &fileServer{}
	srv := httptest.NewServer(files.handler(t))
	defer srv.Close()

	settings := catalogSettings(srv.URL)
	settings.settings.Password = "wrong"
	rebuilder := NewRebuilder(RebuilderConfig{Settings: settings, Index: NewIndex(nil), Retry: fastRetry()})
	if _, err := rebuilder.Rebuild(context.Background()); err == nil {
		t.Fatal("expected login failure")
	}
	if got := files.loginCalls.Load(); got != 1 {
		t.Fatalf("non-transient login failure should not retry, got %d logins", got)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) ([]domain.CatalogEntry, error) {
	return nil, errors.New("redis down")
}

func (failingStore) Save(context.Context, []domain.CatalogEntry) error { return nil }

func TestIndexColdLoadFailureIsRetried(t *testing.T) {
	index := NewIndex(failingStore{})
	if _, err := index.Entries(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	index.Replace([]domain.CatalogEntry{{Folder: "A"}})
	entries, err := index.Entries(context.Background())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected replaced entries, got %v %v", entries, err)
	}
}

func TestIndexPicksUpSnapshotWrittenLater(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, "")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	index := NewIndex(store)
	index.now = func() time.Time { return clock }

	if entries, err := index.Entries(context.Background()); err != nil || len(entries) != 0 {
		t.Fatalf("expected empty index, got %v %v", entries, err)
	}

	// Another replica finishes a rebuild.
	if err := store.Save(context.Background(), []domain.CatalogEntry{{Folder: "Heat (1995)"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if entries, _ := index.Entries(context.Background()); len(entries) != 0 {
		t.Fatalf("expected store read to be spaced out, got %v", entries)
	}

	clock = clock.Add(emptyRecheck)
	entries, err := index.Entries(context.Background())
	if err != nil || len(entries) != 1 || entries[0].Folder != "Heat (1995)" {
		t.Fatalf("expected snapshot from store, got %v %v", entries, err)
	}
}
