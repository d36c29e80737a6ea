package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleSources = `
sites:
  - key: alpha
    name: Alpha CMS
    api: https://alpha.example/api.php/provide/vod
    weight: 10
  - key: beta
    name: Beta CMS
    api: https://beta.example/api
    weight: 5
    roles: [admin]
mediaServers:
  - id: home
    name: Home
    url: http://192.168.1.20:8096
    apiKey: ${TEST_EMBY_KEY}
    enabled: true
    weight: 7
  - id: cabin
    name: Cabin
    url: http://cabin.lan:8096
    enabled: true
localCatalog:
  enabled: true
  url: http://files.lan:5244
  username: admin
  password: pw
  rootPath: /movies
  weight: 3
filter:
  words: [Adult, " "]
weights:
  beta: 20
`

func TestParseSourcesKeepsLiteralDollarSigns(t *testing.T) {
	t.Setenv("TEST_CATALOG_USER", "reader")
	t.Setenv("HOME", "/root")
	file, err := ParseSources([]byte(`
localCatalog:
  enabled: true
  url: http://files.lan:5244/d/$share
  username: ${TEST_CATALOG_USER}
  password: pa$$w$HOME0rd
  rootPath: ${TEST_CATALOG_UNSET}/movies
`))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	catalog := file.LocalCatalog
	if catalog.Username != "reader" {
		t.Fatalf("expected ${NAME} expansion, got %q", catalog.Username)
	}
	if catalog.Password != "pa$$w$HOME0rd" || catalog.URL != "http://files.lan:5244/d/$share" {
		t.Fatalf("bare dollar signs must be kept, got %q %q", catalog.Password, catalog.URL)
	}
	if catalog.RootPath != "/movies" {
		t.Fatalf("unset reference should expand to empty, got %q", catalog.RootPath)
	}
}

func TestParseSourcesBuildsSettings(t *testing.T) {
	t.Setenv("TEST_EMBY_KEY", "k-123")
	file, err := ParseSources([]byte(sampleSources))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	if file.MediaServers[0].APIKey != "k-123" {
		t.Fatalf("expected env expansion, got %q", file.MediaServers[0].APIKey)
	}

	store := NewSourcesStore(file, nil)
	settings := store.SearchSettings()
	wantWeights := map[string]int{"alpha": 10, "beta": 20, "emby_home": 7, "emby_cabin": 0, "local": 3}
	for key, want := range wantWeights {
		if got := settings.Weight(key); got != want {
			t.Errorf("weight[%s] = %d, want %d", key, got, want)
		}
	}
	if settings.FilterDisabled || len(settings.FilterWords) != 2 {
		t.Fatalf("unexpected filter settings: %+v", settings)
	}
	if !settings.Filter().Active() {
		t.Fatal("expected active filter")
	}

	hosts := store.MediaServerHosts()
	if len(hosts) != 2 || hosts[0] != "192.168.1.20" || hosts[1] != "cabin.lan" {
		t.Fatalf("unexpected hosts: %v", hosts)
	}
	catalog, _ := store.LocalCatalog(context.Background())
	if !catalog.Complete() {
		t.Fatal("expected complete local catalog settings")
	}
}

func TestParseSourcesSingleMediaServerUsesGenericKey(t *testing.T) {
	file, err := ParseSources([]byte(`
mediaServers:
  - id: home
    url: http://emby:8096
    enabled: true
    weight: 4
  - id: off
    url: http://off:8096
    enabled: false
    weight: 99
`))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	settings := NewSourcesStore(file, nil).SearchSettings()
	if settings.Weight("emby") != 4 {
		t.Fatalf("expected lone instance weight under emby, got %d", settings.Weight("emby"))
	}
}

func TestParseSourcesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"duplicate site": "sites:\n  - {key: a, api: http://a}\n  - {key: a, api: http://b}\n",
		"missing api":    "sites:\n  - {key: a}\n",
		"missing id":     "mediaServers:\n  - {url: http://x}\n",
		"unknown field":  "sitez: []\n",
		"bad yaml":       "sites: [\n",
	}
	for name, raw := range cases {
		if _, err := ParseSources([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := ParseSources(nil); err != nil {
		t.Fatalf("empty file should parse, got %v", err)
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	store, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	sites, _ := store.ContentSites(context.Background())
	if len(sites) != 0 {
		t.Fatalf("expected no sites, got %d", len(sites))
	}
}

func TestReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	writeFile(t, path, "sites:\n  - {key: a, api: http://a, weight: 1}\n")
	store, err := LoadSources(path, nil)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	writeFile(t, path, "sites: [\n")
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	sites, _ := store.ContentSites(context.Background())
	if len(sites) != 1 || sites[0].Key != "a" {
		t.Fatalf("expected previous snapshot, got %+v", sites)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	writeFile(t, path, "sites:\n  - {key: a, api: http://a}\n")
	store, err := LoadSources(path, nil)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, "sites:\n  - {key: a, api: http://a}\n  - {key: b, api: http://b}\n")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sites, _ := store.ContentSites(context.Background())
		if len(sites) == 2 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("sources were not reloaded after file change")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestShippedSourcesFileParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "sources.yaml"))
	if err != nil {
		t.Fatalf("read sample sources: %v", err)
	}
	file, err := ParseSources(data)
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	if len(file.Sites) == 0 || len(file.MediaServers) == 0 {
		t.Fatalf("sample file lost its sources: %+v", file)
	}
}
