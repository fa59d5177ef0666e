package catalog

import (
	"playshelf/catalogsearch/internal/domain"
)

// Merge unions cached and freshly fetched entries, cache-first, deduplicated
// by external id. Each id appears exactly once, at its cache-sourced position
// when present in both lists.
func Merge(cached, fetched []domain.CatalogEntry) []domain.CatalogEntry {
	merged := make([]domain.CatalogEntry, 0, len(cached)+len(fetched))
	seen := make(map[int64]struct{}, len(cached)+len(fetched))
	for _, entry := range cached {
		if _, ok := seen[entry.ExternalID]; ok {
			continue
		}
		seen[entry.ExternalID] = struct{}{}
		merged = append(merged, entry)
	}
	for _, entry := range fetched {
		if _, ok := seen[entry.ExternalID]; ok {
			continue
		}
		seen[entry.ExternalID] = struct{}{}
		merged = append(merged, entry)
	}
	return merged
}

// Paginate slices the ordered result set. The cursor is the next offset when
// more results remain, nil otherwise.
func Paginate(entries []domain.CatalogEntry, offset, limit int) (page []domain.CatalogEntry, cursor *int, hasMore bool) {
	total := len(entries)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page = make([]domain.CatalogEntry, end-start)
	copy(page, entries[start:end])

	hasMore = total > offset+limit
	if hasMore {
		next := offset + limit
		cursor = &next
	}
	return page, cursor, hasMore
}
