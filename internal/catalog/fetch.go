package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"playshelf/catalogsearch/internal/domain"
	"playshelf/catalogsearch/internal/metrics"
)

type fetchOutcome struct {
	entries   []domain.CatalogEntry
	attempted bool
	err       error
}

// fetchAndPersist coordinates one upstream fetch for a query text. At most
// one fetch per normalized query text is in flight; a caller that observes an
// existing marker skips the fetch and answers from cache. The marker is
// released on every exit path, including timeouts, so one outage cannot wedge
// later attempts for the same text.
func (s *Service) fetchAndPersist(ctx context.Context, prepared preparedSearch) fetchOutcome {
	acquired, lockErr := s.locks.Acquire(ctx, prepared.lockKey)
	if lockErr != nil {
		// A broken lock store only weakens cost-avoidance; fetching anyway is
		// still correct, so proceed without holding a marker.
		s.logger.Warn("query lock acquire failed, fetching without marker",
			slog.String("key", prepared.lockKey),
			slog.String("error", lockErr.Error()),
		)
	} else if !acquired {
		metrics.QueryLockContentionTotal.Inc()
		metrics.FallbackFetchesTotal.WithLabelValues("skipped").Inc()
		return fetchOutcome{attempted: false}
	} else {
		defer func() {
			// The request context may already be done; release must still run.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locks.Release(releaseCtx, prepared.lockKey); err != nil {
				s.logger.Warn("query lock release failed",
					slog.String("key", prepared.lockKey),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	now := time.Now()
	if blocked, until, lastErr := s.health.blocked(now); blocked {
		err := fmt.Errorf("upstream temporarily unavailable until %s: %s",
			until.UTC().Format(time.RFC3339), lastErr)
		metrics.FallbackFetchesTotal.WithLabelValues("error").Inc()
		return fetchOutcome{attempted: true, err: err}
	}

	var fetched []domain.CatalogEntry
	fetchErr := RetryWithBackoff(ctx, s.retry, func() error {
		var err error
		fetched, err = s.upstream.SearchTitles(ctx, prepared.query, prepared.fetchLimit)
		return err
	})
	s.health.record(fetchErr, time.Now())

	if fetchErr != nil {
		outcome := "error"
		if isTimeoutLikeError(fetchErr) {
			outcome = "timeout"
		}
		metrics.FallbackFetchesTotal.WithLabelValues(outcome).Inc()
		s.logger.Warn("upstream fetch failed, serving cache-only answer",
			slog.String("query", prepared.query),
			slog.String("error", fetchErr.Error()),
		)
		return fetchOutcome{attempted: true, err: fetchErr}
	}

	metrics.FallbackFetchesTotal.WithLabelValues("ok").Inc()
	s.persistFetched(ctx, fetched)
	return fetchOutcome{entries: fetched, attempted: true}
}

// persistFetched upserts every fetched entry and bumps franchise cached
// counts for newly created rows. Persistence failures degrade the cache, not
// the response: the fetched entries still flow into the merge in memory.
func (s *Service) persistFetched(ctx context.Context, entries []domain.CatalogEntry) {
	createdPerFranchise := make(map[string]int)
	for _, entry := range entries {
		created, err := s.store.UpsertEntry(ctx, entry)
		if err != nil {
			s.logger.Warn("catalog upsert failed",
				slog.Int64("externalId", entry.ExternalID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.EntriesUpsertedTotal.Inc()
		if !created {
			continue
		}
		if name := entry.FirstFranchise(); name != "" {
			createdPerFranchise[domain.NormalizeFranchiseKey(name)]++
		}
	}

	for key, delta := range createdPerFranchise {
		if err := s.store.BumpFranchiseCached(ctx, key, delta); err != nil {
			s.logger.Warn("franchise cached-count bump failed",
				slog.String("franchise", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
