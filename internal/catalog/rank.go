package catalog

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"playshelf/catalogsearch/internal/domain"
)

// undefinedRank sorts any undefined criterion after every defined value.
const undefinedRank = math.MaxInt

// relevanceKey is the ordered tie-break tuple ranking same-bucket entries
// against a query.
type relevanceKey struct {
	exactMatch    bool
	prefixLen     int
	longestRun    int
	fullMatchAt   int
	numericSuffix int
	extraTokens   int
	releaseYear   int
}

type rankedEntry struct {
	entry domain.CatalogEntry
	class domain.ClassificationResult
	key   relevanceKey
	index int
}

// Rank classifies, filters and orders entries. Bucket priority is absolute:
// textual relevance only reorders entries within a bucket, and only when a
// query is given. With an empty query the within-bucket order is the input
// order.
func Rank(entries []domain.CatalogEntry, query string, allowed []domain.Bucket) []domain.CatalogEntry {
	queryTokens := tokenize(query)

	var allowedSet map[domain.Bucket]struct{}
	if len(allowed) > 0 {
		allowedSet = make(map[domain.Bucket]struct{}, len(allowed))
		for _, b := range allowed {
			allowedSet[b] = struct{}{}
		}
	}

	ranked := make([]rankedEntry, 0, len(entries))
	for i, entry := range entries {
		class := Classify(entry)
		if allowedSet != nil {
			if _, ok := allowedSet[class.Bucket]; !ok {
				continue
			}
		}
		item := rankedEntry{entry: entry, class: class, index: i}
		if len(queryTokens) > 0 {
			item.key = buildRelevanceKey(tokenize(entry.Title), queryTokens, entry.ReleaseYear)
		}
		ranked = append(ranked, item)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.class.Bucket != b.class.Bucket {
			return a.class.Bucket < b.class.Bucket
		}
		if len(queryTokens) == 0 {
			return a.index < b.index
		}
		if cmp := compareRelevance(a.key, b.key); cmp != 0 {
			return cmp < 0
		}
		return a.index < b.index
	})

	out := make([]domain.CatalogEntry, len(ranked))
	for i, item := range ranked {
		out[i] = item.entry
	}
	return out
}

// ClassifyAll returns the classification for each entry in input order. It
// backs standalone reordering of already-cached result sets.
func ClassifyAll(entries []domain.CatalogEntry) []domain.ClassificationResult {
	out := make([]domain.ClassificationResult, len(entries))
	for i, entry := range entries {
		out[i] = Classify(entry)
	}
	return out
}

func buildRelevanceKey(titleTokens, queryTokens []string, releaseYear int) relevanceKey {
	key := relevanceKey{
		fullMatchAt:   undefinedRank,
		numericSuffix: undefinedRank,
		releaseYear:   undefinedRank,
	}
	if releaseYear > 0 {
		key.releaseYear = releaseYear
	}

	key.prefixLen = prefixMatchLength(titleTokens, queryTokens)
	key.longestRun = longestMatchLength(titleTokens, queryTokens)
	key.fullMatchAt = fullMatchStart(titleTokens, queryTokens)
	key.exactMatch = len(titleTokens) == len(queryTokens) && key.prefixLen == len(queryTokens)

	// The numeric suffix is only defined for titles that start with the whole
	// query: an unsuffixed base title counts as 0 so it outranks numbered
	// sequels, which in turn order by their numeral.
	if len(queryTokens) > 0 && key.prefixLen == len(queryTokens) {
		if len(titleTokens) == len(queryTokens) {
			key.numericSuffix = 0
		} else if value, ok := parseNumeral(titleTokens[len(queryTokens)]); ok {
			key.numericSuffix = value
		}
	}

	best := key.prefixLen
	if key.longestRun > best {
		best = key.longestRun
	}
	key.extraTokens = len(titleTokens) - best
	if key.extraTokens < 0 {
		key.extraTokens = 0
	}
	return key
}

// compareRelevance orders two keys; negative means a ranks earlier.
func compareRelevance(a, b relevanceKey) int {
	if a.exactMatch != b.exactMatch {
		if a.exactMatch {
			return -1
		}
		return 1
	}
	if a.prefixLen != b.prefixLen {
		return b.prefixLen - a.prefixLen
	}
	if a.longestRun != b.longestRun {
		return b.longestRun - a.longestRun
	}
	if a.fullMatchAt != b.fullMatchAt {
		return a.fullMatchAt - b.fullMatchAt
	}
	if a.numericSuffix != b.numericSuffix {
		return a.numericSuffix - b.numericSuffix
	}
	if a.extraTokens != b.extraTokens {
		return a.extraTokens - b.extraTokens
	}
	if a.releaseYear != b.releaseYear {
		return a.releaseYear - b.releaseYear
	}
	return 0
}

// prefixMatchLength counts leading tokens matching position-for-position.
func prefixMatchLength(titleTokens, queryTokens []string) int {
	n := 0
	for n < len(titleTokens) && n < len(queryTokens) && titleTokens[n] == queryTokens[n] {
		n++
	}
	return n
}

// longestMatchLength finds the best contiguous in-order run shared by the
// title and query token sequences at any pair of offsets.
func longestMatchLength(titleTokens, queryTokens []string) int {
	best := 0
	for ti := range titleTokens {
		for qi := range queryTokens {
			run := 0
			for ti+run < len(titleTokens) && qi+run < len(queryTokens) &&
				titleTokens[ti+run] == queryTokens[qi+run] {
				run++
			}
			if run > best {
				best = run
			}
		}
	}
	return best
}

// fullMatchStart returns the earliest title offset where the entire query
// token sequence matches contiguously, or undefinedRank if it never does.
func fullMatchStart(titleTokens, queryTokens []string) int {
	if len(queryTokens) == 0 || len(queryTokens) > len(titleTokens) {
		return undefinedRank
	}
	for offset := 0; offset+len(queryTokens) <= len(titleTokens); offset++ {
		matched := true
		for i, token := range queryTokens {
			if titleTokens[offset+i] != token {
				matched = false
				break
			}
		}
		if matched {
			return offset
		}
	}
	return undefinedRank
}

// parseNumeral parses a token as a decimal integer or a Roman numeral in
// subtractive notation (letters M D C L X V I only).
func parseNumeral(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	if value, err := strconv.Atoi(token); err == nil {
		if value < 0 {
			return 0, false
		}
		return value, true
	}
	return parseRoman(strings.ToUpper(token))
}

var romanValues = map[byte]int{
	'M': 1000, 'D': 500, 'C': 100, 'L': 50, 'X': 10, 'V': 5, 'I': 1,
}

func parseRoman(token string) (int, bool) {
	total := 0
	for i := 0; i < len(token); i++ {
		value, ok := romanValues[token[i]]
		if !ok {
			return 0, false
		}
		if i+1 < len(token) {
			next, ok := romanValues[token[i+1]]
			if !ok {
				return 0, false
			}
			if value < next {
				total -= value
				continue
			}
		}
		total += value
	}
	if total <= 0 {
		return 0, false
	}
	return total, true
}
