package catalog

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"playshelf/catalogsearch/internal/domain"
	"playshelf/catalogsearch/internal/metrics"
)

// CompletenessPolicy names the heuristic thresholds behind the fetch/no-fetch
// decision. They encode cost policy, not structural invariants, so they are
// configuration rather than literals.
type CompletenessPolicy struct {
	// MinCachedResults is the default result floor below which franchise
	// coverage is consulted.
	MinCachedResults int
	// MinimumRatio is the cached/upstream coverage below which a fetch is
	// still warranted.
	MinimumRatio float64
	// CountFloor forces a fetch for franchises with more than CountFloor
	// known titles but fewer than CountFloor cached.
	CountFloor int
	// StaleAfter bounds how long a completeness record is trusted.
	StaleAfter time.Duration
}

func DefaultCompletenessPolicy() CompletenessPolicy {
	return CompletenessPolicy{
		MinCachedResults: 5,
		MinimumRatio:     0.80,
		CountFloor:       5,
		StaleAfter:       7 * 24 * time.Hour,
	}
}

func (p CompletenessPolicy) normalized() CompletenessPolicy {
	defaults := DefaultCompletenessPolicy()
	if p.MinCachedResults <= 0 {
		p.MinCachedResults = defaults.MinCachedResults
	}
	if p.MinimumRatio <= 0 || p.MinimumRatio > 1 {
		p.MinimumRatio = defaults.MinimumRatio
	}
	if p.CountFloor <= 0 {
		p.CountFloor = defaults.CountFloor
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = defaults.StaleAfter
	}
	return p
}

// FranchiseStore reads and writes completeness records by normalized
// franchise key.
type FranchiseStore interface {
	GetFranchise(ctx context.Context, key string) (domain.FranchiseCompletenessRecord, bool, error)
	PutFranchise(ctx context.Context, record domain.FranchiseCompletenessRecord) error
}

// FranchiseCounter asks the upstream provider how many titles a franchise
// has. One bounded round-trip; quota-metered.
type FranchiseCounter interface {
	CountByFranchise(ctx context.Context, name string) (int, error)
}

// Estimator decides whether cached results are sufficient or an external
// fetch is warranted.
type Estimator struct {
	store   FranchiseStore
	counter FranchiseCounter
	policy  CompletenessPolicy
	logger  *slog.Logger
	counts  singleflight.Group
	now     func() time.Time
}

func NewEstimator(store FranchiseStore, counter FranchiseCounter, policy CompletenessPolicy, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		store:   store,
		counter: counter,
		policy:  policy.normalized(),
		logger:  logger,
		now:     time.Now,
	}
}

// FetchNeeded implements the cache-sufficiency decision. minCached overrides
// the policy floor when positive (per-request tuning). A side effect of the
// missing/stale path is a freshly persisted completeness record. Any metadata
// failure degrades to the simple threshold rule rather than failing the
// request.
func (e *Estimator) FetchNeeded(ctx context.Context, cached []domain.CatalogEntry, minCached int) bool {
	if minCached <= 0 {
		minCached = e.policy.MinCachedResults
	}

	if len(cached) == 0 {
		return true
	}
	if len(cached) >= minCached {
		return false
	}

	franchise := firstFranchise(cached)
	if franchise == "" {
		// Below threshold and no franchise signal to refine the decision.
		return true
	}
	key := domain.NormalizeFranchiseKey(franchise)

	record, found, err := e.store.GetFranchise(ctx, key)
	if err != nil {
		e.logger.Warn("franchise record lookup failed, using threshold rule",
			slog.String("franchise", key),
			slog.String("error", err.Error()),
		)
		return true
	}

	now := e.now()
	if found && record.Usable() && !record.Stale(now, e.policy.StaleAfter) {
		return e.ratioRuleRequiresFetch(record)
	}

	total, err := e.franchiseCount(ctx, franchise, key)
	if err != nil {
		e.logger.Warn("franchise count lookup failed, using threshold rule",
			slog.String("franchise", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	metrics.FranchiseCountLookupsTotal.Inc()

	// A zero total from upstream is untrustworthy: fetch, and leave any
	// existing record alone.
	if total <= 0 {
		return true
	}

	fresh := domain.FranchiseCompletenessRecord{
		Key:                key,
		TotalKnownUpstream: total,
		CachedCount:        len(cached),
		LastCheckedAt:      now,
	}
	if err := e.store.PutFranchise(ctx, fresh); err != nil {
		e.logger.Warn("franchise record write failed",
			slog.String("franchise", key),
			slog.String("error", err.Error()),
		)
	}
	return e.ratioRuleRequiresFetch(fresh)
}

// ratioRuleRequiresFetch is the conservative dual rule: fetch when coverage
// is below the ratio, or when a franchise larger than the floor has fewer
// than floor members cached.
func (e *Estimator) ratioRuleRequiresFetch(record domain.FranchiseCompletenessRecord) bool {
	if record.CompletenessRatio() < e.policy.MinimumRatio {
		return true
	}
	return record.TotalKnownUpstream > e.policy.CountFloor && record.CachedCount < e.policy.CountFloor
}

// franchiseCount collapses concurrent upstream count lookups for the same
// franchise key into a single call.
func (e *Estimator) franchiseCount(ctx context.Context, name, key string) (int, error) {
	value, err, _ := e.counts.Do(key, func() (any, error) {
		return e.counter.CountByFranchise(ctx, name)
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

// firstFranchise scans results for the first present franchise name. Only the
// first carrier is inspected, not the majority franchise; mixed result sets
// can misclassify, a known accuracy limitation of the heuristic.
func firstFranchise(entries []domain.CatalogEntry) string {
	for _, entry := range entries {
		if name := entry.FirstFranchise(); name != "" {
			return name
		}
	}
	return ""
}
