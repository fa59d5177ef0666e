package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bucket is the coarse category assigned to a catalog entry before textual
// relevance is considered. Lower values rank earlier.
type Bucket int

const (
	BucketMainline Bucket = iota
	BucketEnhancedRelease
	BucketAdditionalContent
	BucketFanOrFork
	BucketOther
)

func (b Bucket) String() string {
	switch b {
	case BucketMainline:
		return "mainline"
	case BucketEnhancedRelease:
		return "enhanced"
	case BucketAdditionalContent:
		return "additional"
	case BucketFanOrFork:
		return "fanwork"
	default:
		return "other"
	}
}

// Buckets travel as their string names on the wire.
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bucket) UnmarshalText(text []byte) error {
	parsed, ok := ParseBucket(string(text))
	if !ok {
		return fmt.Errorf("unknown bucket %q", text)
	}
	*b = parsed
	return nil
}

// ParseBucket maps a request-level bucket name back to its Bucket. Unknown
// names return BucketOther and ok=false.
func ParseBucket(raw string) (Bucket, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mainline", "main":
		return BucketMainline, true
	case "enhanced", "remaster":
		return BucketEnhancedRelease, true
	case "additional", "dlc":
		return BucketAdditionalContent, true
	case "fanwork", "mod":
		return BucketFanOrFork, true
	case "other":
		return BucketOther, true
	default:
		return BucketOther, false
	}
}

// ClassificationSource records which signal produced a classification.
type ClassificationSource string

const (
	SourceTypeCode     ClassificationSource = "typeCode"
	SourceCategory     ClassificationSource = "category"
	SourceRelationship ClassificationSource = "relationship"
	SourceFallback     ClassificationSource = "fallback"
)

// ClassificationResult is computed per entry during ranking; it is never
// persisted.
type ClassificationResult struct {
	Bucket Bucket               `json:"bucket"`
	Label  string               `json:"label"`
	Source ClassificationSource `json:"source"`
}

// CatalogEntry is the cached projection of one upstream title. ExternalID is
// the stable join key between the cache and live fetches; merge logic never
// emits two entries sharing it.
type CatalogEntry struct {
	ExternalID      int64    `json:"externalId"`
	Title           string   `json:"title"`
	ReleaseYear     int      `json:"releaseYear,omitempty"`
	TypeCode        *int     `json:"typeCode,omitempty"`
	CategoryCode    *int     `json:"categoryCode,omitempty"`
	ParentID        *int64   `json:"parentId,omitempty"`
	VersionParentID *int64   `json:"versionParentId,omitempty"`
	FranchiseNames  []string `json:"franchiseNames,omitempty"`

	// Opaque payload carried through unchanged.
	Summary  string `json:"summary,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// FirstFranchise returns the first non-empty franchise name, or "".
func (e CatalogEntry) FirstFranchise() string {
	for _, name := range e.FranchiseNames {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return ""
}

// NormalizeFranchiseKey produces the case-insensitive, trimmed key under
// which franchise completeness records are stored.
func NormalizeFranchiseKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FranchiseCompletenessRecord tracks how much of a franchise the local cache
// covers. Created on first fetch for a franchise, updated on every subsequent
// cache of a franchise member, never deleted.
type FranchiseCompletenessRecord struct {
	Key                string    `json:"key"`
	TotalKnownUpstream int       `json:"totalKnownUpstream"`
	CachedCount        int       `json:"cachedCount"`
	LastCheckedAt      time.Time `json:"lastCheckedAt"`
}

// CompletenessRatio is cachedCount over the upstream total, with the total
// floored at 1 so an unknown total never divides by zero.
func (r FranchiseCompletenessRecord) CompletenessRatio() float64 {
	total := r.TotalKnownUpstream
	if total < 1 {
		total = 1
	}
	return float64(r.CachedCount) / float64(total)
}

// Stale reports whether the record is older than maxAge.
func (r FranchiseCompletenessRecord) Stale(now time.Time, maxAge time.Duration) bool {
	if r.LastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(r.LastCheckedAt) > maxAge
}

// Usable reports whether the record carries a trustworthy upstream total.
func (r FranchiseCompletenessRecord) Usable() bool {
	return r.TotalKnownUpstream > 0
}
