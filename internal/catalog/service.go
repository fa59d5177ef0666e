package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"playshelf/catalogsearch/internal/domain"
	"playshelf/catalogsearch/internal/metrics"
)

var (
	ErrInvalidQuery  = errors.New("query is required")
	ErrInvalidLimit  = errors.New("limit must be >= 0")
	ErrInvalidOffset = errors.New("offset must be >= 0")
)

const (
	defaultLimit    = 20
	maxLimit        = 100
	minFetchLimit   = 20
	maxFetchLimit   = 200
	defaultTimeout  = 15 * time.Second
	maxQueryLength  = 300
)

// CacheResult is what the cache reader returns: locally cached entries plus
// a confidence signal derived from how full the page came back.
type CacheResult struct {
	Entries    []domain.CatalogEntry
	Confidence domain.Confidence
}

// CacheReader serves cached catalog entries for a query. It must be local and
// fast; it never calls upstream itself.
type CacheReader interface {
	SearchCached(ctx context.Context, query string, limit int) (CacheResult, error)
}

// EntryWriter persists normalized upstream records. Upserts are keyed by
// external id, commutative and idempotent, so concurrent writers converge.
type EntryWriter interface {
	// UpsertEntry writes an entry; created reports whether the row is new.
	UpsertEntry(ctx context.Context, entry domain.CatalogEntry) (created bool, err error)
	// BumpFranchiseCached increments the cached-member count of an existing
	// franchise completeness record.
	BumpFranchiseCached(ctx context.Context, key string, delta int) error
}

// CatalogStore is the full persistence surface the pipeline consumes.
type CatalogStore interface {
	CacheReader
	EntryWriter
	FranchiseStore
}

// Upstream is the rate-limited, quota-metered external catalog provider.
type Upstream interface {
	SearchTitles(ctx context.Context, query string, limit int) ([]domain.CatalogEntry, error)
	FranchiseCounter
}

// Service answers catalog searches by combining the local cache with
// on-demand upstream fetches, then merging, classifying, ranking and
// paginating the result. Each call is an independent, short-lived pipeline;
// the only cross-request coordination is the in-flight query lock.
type Service struct {
	store     CatalogStore
	upstream  Upstream
	locks     QueryLocker
	estimator *Estimator
	policy    CompletenessPolicy
	retry     RetryConfig
	timeout   time.Duration
	logger    *slog.Logger
	health    upstreamHealth
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLocker(locker QueryLocker) ServiceOption {
	return func(s *Service) {
		if locker != nil {
			s.locks = locker
		}
	}
}

func WithPolicy(policy CompletenessPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = policy.normalized()
	}
}

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

func NewService(store CatalogStore, upstream Upstream, opts ...ServiceOption) *Service {
	svc := &Service{
		store:    store,
		upstream: upstream,
		locks:    NewMemoryLocker(),
		policy:   DefaultCompletenessPolicy(),
		retry:    DefaultRetryConfig(),
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.estimator = NewEstimator(store, upstream, svc.policy, svc.logger)
	return svc
}

type preparedSearch struct {
	query      string
	lockKey    string
	limit      int
	offset     int
	fetchLimit int
	minCached  int
	includeDLC bool
	allowed    []domain.Bucket
}

func (s *Service) prepare(request domain.SearchRequest) (preparedSearch, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" || len(query) > maxQueryLength {
		return preparedSearch{}, ErrInvalidQuery
	}
	if request.Limit < 0 {
		return preparedSearch{}, ErrInvalidLimit
	}
	if request.Offset < 0 {
		return preparedSearch{}, ErrInvalidOffset
	}

	lockKey := QueryKey(query)
	if lockKey == "" {
		return preparedSearch{}, ErrInvalidQuery
	}

	limit := request.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	fetchLimit := request.Offset + limit
	if fetchLimit < minFetchLimit {
		fetchLimit = minFetchLimit
	}
	if fetchLimit > maxFetchLimit {
		fetchLimit = maxFetchLimit
	}

	minCached := request.MinCachedResults
	if minCached <= 0 {
		minCached = s.policy.MinCachedResults
	}

	return preparedSearch{
		query:      query,
		lockKey:    lockKey,
		limit:      limit,
		offset:     request.Offset,
		fetchLimit: fetchLimit,
		minCached:  minCached,
		includeDLC: request.IncludeDLC,
		allowed:    request.AllowedBuckets,
	}, nil
}

// Search runs the full pipeline: cache read, completeness estimate,
// conditional coordinated fetch, merge, rank, paginate. Input errors fail the
// request; every other failure degrades to a best-effort cache answer.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	prepared, err := s.prepare(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()

	cacheResult, cacheErr := s.store.SearchCached(runCtx, prepared.query, prepared.fetchLimit)
	if cacheErr != nil {
		s.logger.Warn("cache read failed, continuing with empty cache",
			slog.String("query", prepared.query),
			slog.String("error", cacheErr.Error()),
		)
		cacheResult = CacheResult{Confidence: domain.ConfidenceLow}
	}
	cached := cacheResult.Entries

	fetchNeeded := s.estimator.FetchNeeded(runCtx, cached, prepared.minCached)
	var outcome fetchOutcome
	if fetchNeeded {
		outcome = s.fetchAndPersist(runCtx, prepared)
	} else {
		metrics.CacheSufficientTotal.Inc()
	}

	live := outcome.entries
	stripped := 0
	if !prepared.includeDLC {
		before := len(live)
		live = stripAdditionalContent(live)
		stripped = before - len(live)
	}

	results := Rank(Merge(cached, live), prepared.query, prepared.allowed)
	if len(results) == 0 && stripped > 0 {
		// The DLC filter emptied the result set entirely; relax it for this
		// response rather than returning nothing.
		live = outcome.entries
		results = Rank(Merge(cached, live), prepared.query, prepared.allowed)
	}

	page, cursor, hasMore := Paginate(results, prepared.offset, prepared.limit)

	response := domain.SearchResponse{
		Results:           page,
		Total:             len(results),
		Source:            responseSource(len(cached), len(live)),
		Cursor:            cursor,
		HasMore:           hasMore,
		WasFallbackNeeded: fetchNeeded && outcome.attempted,
		LatencyMS:         time.Since(startedAt).Milliseconds(),
		Debug: domain.SearchDebug{
			CacheResults: len(cached),
			LiveResults:  len(outcome.entries),
		},
	}
	if outcome.err != nil {
		response.Error = outcome.err.Error()
	}
	response.Confidence = responseConfidence(cacheResult, fetchNeeded, outcome)

	metrics.SearchRequestsTotal.WithLabelValues(string(response.Source)).Inc()
	return response, nil
}

func responseSource(cacheCount, liveCount int) domain.SearchSource {
	switch {
	case liveCount > 0 && cacheCount > 0:
		return domain.SearchSourceMerged
	case liveCount > 0:
		return domain.SearchSourceLive
	default:
		return domain.SearchSourceCache
	}
}

// responseConfidence distinguishes a fresh complete answer from a degraded
// cache-only one. A successful live merge is high confidence; a sufficient
// cache keeps the cache reader's own signal; lock losers and upstream
// failures are low.
func responseConfidence(cache CacheResult, fetchNeeded bool, outcome fetchOutcome) domain.Confidence {
	if !fetchNeeded {
		if cache.Confidence == "" {
			return domain.ConfidenceMedium
		}
		return cache.Confidence
	}
	if outcome.err != nil || !outcome.attempted {
		return domain.ConfidenceLow
	}
	return domain.ConfidenceHigh
}

// stripAdditionalContent drops upstream records whose type or category code
// classifies them as additional content. Relationship-only signals are left
// alone; only explicit codes are trusted for filtering.
func stripAdditionalContent(entries []domain.CatalogEntry) []domain.CatalogEntry {
	if len(entries) == 0 {
		return entries
	}
	kept := make([]domain.CatalogEntry, 0, len(entries))
	for _, entry := range entries {
		class := Classify(entry)
		if class.Bucket == domain.BucketAdditionalContent &&
			(class.Source == domain.SourceTypeCode || class.Source == domain.SourceCategory) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}
