package search

import (
	"strings"

	"mediasearch/searchservice/internal/domain"
)

// ContentFilter drops items whose category label contains a blocked word.
// Matching is a case-sensitive substring test, as configured.
type ContentFilter struct {
	words    []string
	disabled bool
}

func NewContentFilter(words []string, disabled bool) ContentFilter {
	cleaned := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word != "" {
			cleaned = append(cleaned, word)
		}
	}
	return ContentFilter{words: cleaned, disabled: disabled}
}

func (f ContentFilter) Active() bool {
	return !f.disabled && len(f.words) > 0
}

func (f ContentFilter) Blocks(item domain.ResultItem) bool {
	if !f.Active() || item.TypeName == "" {
		return false
	}
	for _, word := range f.words {
		if strings.Contains(item.TypeName, word) {
			return true
		}
	}
	return false
}

// Apply returns the items that pass the filter, preserving order.
func (f ContentFilter) Apply(items []domain.ResultItem) []domain.ResultItem {
	if !f.Active() {
		return items
	}
	kept := make([]domain.ResultItem, 0, len(items))
	for _, item := range items {
		if f.Blocks(item) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}
