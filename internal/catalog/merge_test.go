package catalog

import (
	"testing"

	"playshelf/catalogsearch/internal/domain"
)

func TestMergeDedupsByExternalID(t *testing.T) {
	cached := []domain.CatalogEntry{
		{ExternalID: 1, Title: "cached one"},
		{ExternalID: 2, Title: "cached two"},
	}
	fetched := []domain.CatalogEntry{
		{ExternalID: 2, Title: "live two"},
		{ExternalID: 3, Title: "live three"},
	}

	merged := Merge(cached, fetched)
	if len(merged) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(merged))
	}
	// The shared id keeps its cache-sourced position and payload.
	if merged[1].ExternalID != 2 || merged[1].Title != "cached two" {
		t.Fatalf("shared id not at cache position: %+v", merged[1])
	}
	seen := make(map[int64]int)
	for _, entry := range merged {
		seen[entry.ExternalID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("id %d appears %d times", id, count)
		}
	}
}

func TestMergeEmptySides(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d", len(got))
	}
	only := []domain.CatalogEntry{{ExternalID: 7, Title: "solo"}}
	if got := Merge(nil, only); len(got) != 1 || got[0].ExternalID != 7 {
		t.Fatalf("fetched-only merge broken: %v", got)
	}
}

func TestPaginateRoundTrip(t *testing.T) {
	entries := make([]domain.CatalogEntry, 7)
	for i := range entries {
		entries[i] = domain.CatalogEntry{ExternalID: int64(i + 1)}
	}

	var collected []int64
	offset := 0
	for {
		page, cursor, hasMore := Paginate(entries, offset, 3)
		for _, entry := range page {
			collected = append(collected, entry.ExternalID)
		}
		if !hasMore {
			if cursor != nil {
				t.Fatalf("cursor must be nil on the last page")
			}
			break
		}
		if cursor == nil {
			t.Fatalf("hasMore without a cursor")
		}
		offset = *cursor
	}

	if len(collected) != len(entries) {
		t.Fatalf("round trip produced %d ids, want %d", len(collected), len(entries))
	}
	for i, id := range collected {
		if id != int64(i+1) {
			t.Fatalf("position %d: got id %d", i, id)
		}
	}
}

func TestPaginateOffsetPastEnd(t *testing.T) {
	entries := []domain.CatalogEntry{{ExternalID: 1}}
	page, cursor, hasMore := Paginate(entries, 10, 5)
	if len(page) != 0 || cursor != nil || hasMore {
		t.Fatalf("offset past end: page=%d cursor=%v hasMore=%v", len(page), cursor, hasMore)
	}
}
