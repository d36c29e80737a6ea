package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/search"
)

// SourcesFile is the on-disk source configuration. String values may
// reference environment variables as ${NAME}.
type SourcesFile struct {
	Sites        []domain.ContentSite         `yaml:"sites"`
	MediaServers []domain.MediaServerInstance `yaml:"mediaServers"`
	LocalCatalog domain.LocalCatalogSettings  `yaml:"localCatalog"`
	Filter       FilterConfig                 `yaml:"filter"`
	Weights      map[string]int               `yaml:"weights"`
}

type FilterConfig struct {
	Disabled bool     `yaml:"disabled"`
	Words    []string `yaml:"words"`
}

type sourcesSnapshot struct {
	file     SourcesFile
	settings search.Settings
}

// SourcesStore holds the current source configuration behind an atomic
// pointer. Readers get a consistent snapshot; reloads swap it whole.
type SourcesStore struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[sourcesSnapshot]
}

func NewSourcesStore(file SourcesFile, logger *slog.Logger) *SourcesStore {
	if logger == nil {
		logger = slog.Default()
	}
	store := &SourcesStore{logger: logger}
	store.current.Store(newSnapshot(file))
	return store
}

// LoadSources reads path. A missing file yields an empty configuration so the
// service can start before sources are provisioned.
func LoadSources(path string, logger *slog.Logger) (*SourcesStore, error) {
	store := NewSourcesStore(SourcesFile{}, logger)
	store.path = path
	if err := store.Reload(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			store.logger.Warn("sources file not found, starting without sources", slog.String("path", path))
			return store, nil
		}
		return nil, err
	}
	return store, nil
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (s *SourcesStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read sources file: %w", err)
	}
	file, err := ParseSources(data)
	if err != nil {
		return fmt.Errorf("parse sources file %s: %w", s.path, err)
	}
	s.current.Store(newSnapshot(file))
	s.logger.Info("sources loaded",
		slog.String("path", s.path),
		slog.Int("sites", len(file.Sites)),
		slog.Int("mediaServers", len(file.MediaServers)),
		slog.Bool("localCatalog", file.LocalCatalog.Complete()),
	)
	return nil
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvReferences replaces ${NAME} with the variable's value, empty when
// unset. Any other "$" is kept as written.
func expandEnvReferences(data []byte) []byte {
	return envReference.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

func ParseSources(data []byte) (SourcesFile, error) {
	var file SourcesFile
	decoder := yaml.NewDecoder(bytes.NewReader(expandEnvReferences(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return SourcesFile{}, err
	}
	if err := file.validate(); err != nil {
		return SourcesFile{}, err
	}
	return file, nil
}

func (f SourcesFile) validate() error {
	keys := make(map[string]struct{}, len(f.Sites))
	for index, site := range f.Sites {
		key := strings.TrimSpace(site.Key)
		if key == "" {
			return fmt.Errorf("sites[%d]: key is required", index)
		}
		if _, dup := keys[key]; dup {
			return fmt.Errorf("sites[%d]: duplicate key %q", index, key)
		}
		keys[key] = struct{}{}
		if strings.TrimSpace(site.API) == "" {
			return fmt.Errorf("sites[%d]: api is required", index)
		}
	}
	ids := make(map[string]struct{}, len(f.MediaServers))
	for index, instance := range f.MediaServers {
		id := strings.TrimSpace(instance.ID)
		if id == "" {
			return fmt.Errorf("mediaServers[%d]: id is required", index)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("mediaServers[%d]: duplicate id %q", index, id)
		}
		ids[id] = struct{}{}
	}
	return nil
}

func newSnapshot(file SourcesFile) *sourcesSnapshot {
	weights := make(map[string]int, len(file.Sites)+len(file.MediaServers)+1)
	for _, site := range file.Sites {
		weights[strings.TrimSpace(site.Key)] = site.Weight
	}
	enabled := enabledMediaServers(file.MediaServers)
	for _, instance := range enabled {
		key, _ := search.MediaServerIdentity(instance, len(enabled))
		weights[key] = instance.Weight
	}
	weights["local"] = file.LocalCatalog.Weight
	for key, weight := range file.Weights {
		weights[strings.TrimSpace(key)] = weight
	}
	return &sourcesSnapshot{
		file: file,
		settings: search.Settings{
			Weights:        weights,
			FilterWords:    append([]string(nil), file.Filter.Words...),
			FilterDisabled: file.Filter.Disabled,
		},
	}
}

func enabledMediaServers(instances []domain.MediaServerInstance) []domain.MediaServerInstance {
	enabled := make([]domain.MediaServerInstance, 0, len(instances))
	for _, instance := range instances {
		if instance.Enabled && strings.TrimSpace(instance.URL) != "" {
			enabled = append(enabled, instance)
		}
	}
	return enabled
}

func (s *SourcesStore) snapshot() *sourcesSnapshot {
	return s.current.Load()
}

func (s *SourcesStore) ContentSites(context.Context) ([]domain.ContentSite, error) {
	return append([]domain.ContentSite(nil), s.snapshot().file.Sites...), nil
}

func (s *SourcesStore) MediaServers(context.Context) ([]domain.MediaServerInstance, error) {
	return append([]domain.MediaServerInstance(nil), s.snapshot().file.MediaServers...), nil
}

func (s *SourcesStore) LocalCatalog(context.Context) (domain.LocalCatalogSettings, error) {
	return s.snapshot().file.LocalCatalog, nil
}

// SearchSettings returns the snapshot's settings; callers must not mutate it.
func (s *SourcesStore) SearchSettings() search.Settings {
	return s.snapshot().settings
}

// MediaServerHosts lists the hosts of enabled media servers, which the image
// proxy may fetch from even on private networks.
func (s *SourcesStore) MediaServerHosts() []string {
	enabled := enabledMediaServers(s.snapshot().file.MediaServers)
	hosts := make([]string, 0, len(enabled))
	for _, instance := range enabled {
		parsed, err := url.Parse(strings.TrimSpace(instance.URL))
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		hosts = append(hosts, strings.ToLower(parsed.Hostname()))
	}
	return hosts
}
