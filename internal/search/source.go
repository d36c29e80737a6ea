package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"mediasearch/searchservice/internal/domain"
)

const MaxQueryLength = 500

var (
	ErrInvalidQuery     = errors.New("query is required")
	ErrQueryTooLong     = errors.New("query too long (max 500 characters)")
	ErrEngine           = errors.New("search engine failure")
	ErrEnumeration      = errors.New("source enumeration failed")
	ErrTaskTimeout      = errors.New("source timed out")
	ErrDeadlineExceeded = errors.New("search deadline exceeded")
	ErrSearchCancelled  = errors.New("search cancelled")
	ErrSourcePanic      = errors.New("source panicked")
	ErrNoSuggestSource  = errors.New("no content source available for suggestions")
)

// Adapter is one searchable source bound to its backend client.
type Adapter interface {
	Key() string
	Name() string
	Kind() domain.SourceKind
	Timeout() time.Duration
	Search(ctx context.Context, query string) ([]domain.ResultItem, error)
}

// SourceEnumerator resolves the adapters a principal may search.
type SourceEnumerator interface {
	Enumerate(ctx context.Context, principal *domain.Principal, settings Settings) ([]Adapter, error)
}

// Settings is the per-request snapshot of ranking and filtering configuration.
// It is read concurrently by every task and must not be mutated after creation.
type Settings struct {
	Weights        map[string]int
	FilterWords    []string
	FilterDisabled bool
}

func (s Settings) Weight(source string) int {
	return s.Weights[source]
}

func (s Settings) Filter() ContentFilter {
	return NewContentFilter(s.FilterWords, s.FilterDisabled)
}

type SettingsProvider interface {
	SearchSettings() Settings
}

type staticSettings Settings

func (s staticSettings) SearchSettings() Settings { return Settings(s) }

// StaticSettings wraps a fixed snapshot, mostly useful in tests and single-file setups.
func StaticSettings(settings Settings) SettingsProvider {
	return staticSettings(settings)
}

func normalizeQuery(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
