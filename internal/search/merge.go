package search

import (
	"sort"

	"mediasearch/searchservice/internal/domain"
)

// MergeBatches flattens batches in the given order, applies the content filter
// and stable-sorts by descending source weight. Equal weights keep their
// flattened order; nothing is deduplicated.
func MergeBatches(batches []domain.ResultBatch, settings Settings) []domain.ResultItem {
	size := 0
	for _, batch := range batches {
		size += len(batch.Results)
	}
	flat := make([]domain.ResultItem, 0, size)
	for _, batch := range batches {
		flat = append(flat, batch.Results...)
	}

	flat = settings.Filter().Apply(flat)

	sort.SliceStable(flat, func(i, j int) bool {
		return settings.Weight(flat[i].Source) > settings.Weight(flat[j].Source)
	})
	return flat
}

func batchesOf(outcomes []Outcome) []domain.ResultBatch {
	batches := make([]domain.ResultBatch, 0, len(outcomes))
	for _, outcome := range outcomes {
		batches = append(batches, outcome.Batch)
	}
	return batches
}
