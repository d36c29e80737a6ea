package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"mediasearch/searchservice/internal/domain"
)

const maxSuggestions = 8

// Suggestions probes the highest-weight content-API source once and ranks the
// returned titles against the query. Probe failures yield no suggestions.
func (s *Service) Suggestions(ctx context.Context, principal *domain.Principal, query string) ([]domain.Suggestion, error) {
	q := normalizeQuery(query)
	if q == "" {
		return []domain.Suggestion{}, nil
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return nil, ErrQueryTooLong
	}

	settings := s.settings.SearchSettings()
	adapters, err := s.enumerator.Enumerate(ctx, principal, settings)
	if err != nil {
		return nil, err
	}
	probe := pickSuggestSource(adapters, settings)
	if probe == nil {
		return nil, ErrNoSuggestSource
	}

	task := NewTask(probe, q)
	if task.Timeout <= 0 || task.Timeout > s.suggestTimeout {
		task.Timeout = s.suggestTimeout
	}
	outcome := task.Execute(ctx)
	if outcome.Err != nil {
		s.logger.Debug("suggestion probe failed",
			slog.String("source", outcome.Source),
			slog.String("error", outcome.Err.Error()),
		)
		return []domain.Suggestion{}, nil
	}

	titles := make([]string, 0, len(outcome.Batch.Results))
	for _, item := range outcome.Batch.Results {
		titles = append(titles, item.Title)
	}
	return RankSuggestions(q, titles, maxSuggestions), nil
}

func pickSuggestSource(adapters []Adapter, settings Settings) Adapter {
	var best Adapter
	for _, adapter := range adapters {
		if adapter.Kind() != domain.SourceKindContentAPI {
			continue
		}
		if best == nil || settings.Weight(adapter.Key()) > settings.Weight(best.Key()) {
			best = adapter
		}
	}
	return best
}

// RankSuggestions scores candidate titles by how closely they match query.
// Titles equal after case folding appear once.
func RankSuggestions(query string, titles []string, limit int) []domain.Suggestion {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	items := make([]domain.Suggestion, 0, len(titles))
	if needle == "" {
		return items
	}
	needleLen := utf8.RuneCountInString(needle)

	seen := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		title = strings.TrimSpace(title)
		folded := fold.String(title)
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}

		diff := utf8.RuneCountInString(folded) - needleLen
		if diff < 0 {
			diff = -diff
		}
		item := domain.Suggestion{Text: title}
		switch {
		case folded == needle:
			item.Type = domain.SuggestionExact
			item.Score = 100
		case strings.Contains(folded, needle) || strings.Contains(needle, folded):
			item.Type = domain.SuggestionRelated
			item.Score = 80 - min(20, diff)
		default:
			item.Type = domain.SuggestionOther
			item.Score = 50 - min(30, diff)
		}
		if item.Type != domain.SuggestionExact && strings.HasPrefix(folded, needle) {
			item.Score += 5
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if pi, pj := suggestionPriority(items[i].Type), suggestionPriority(items[j].Type); pi != pj {
			return pi < pj
		}
		return items[i].Text < items[j].Text
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func suggestionPriority(kind domain.SuggestionType) int {
	switch kind {
	case domain.SuggestionExact:
		return 0
	case domain.SuggestionRelated:
		return 1
	default:
		return 2
	}
}
