package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"playshelf/catalogsearch/internal/metrics"
)

const (
	upstreamFailureThreshold = 3
	upstreamBlockBase        = 2 * time.Minute
	upstreamBlockMax         = 15 * time.Minute
)

// upstreamHealth tracks consecutive upstream failures and blocks the provider
// for an exponentially growing window once the threshold is crossed. A
// blocked upstream is treated as a fetch failure, degrading responses to
// cache-only answers without spending quota.
type upstreamHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
}

func (h *upstreamHealth) blocked(now time.Time) (bool, time.Time, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.blockedUntil.IsZero() || now.After(h.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, h.blockedUntil, h.lastError
}

func (h *upstreamHealth) record(err error, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.consecutiveFailures = 0
		h.blockedUntil = time.Time{}
		h.lastError = ""
		metrics.UpstreamAvailable.Set(1)
		return
	}

	h.consecutiveFailures++
	h.lastError = err.Error()
	if h.consecutiveFailures >= upstreamFailureThreshold {
		h.blockedUntil = now.Add(blockDuration(h.consecutiveFailures))
		metrics.UpstreamAvailable.Set(0)
	}
}

// blockDuration grows the block window as base × 2^(failures - threshold),
// capped at upstreamBlockMax.
func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - upstreamFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := upstreamBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > upstreamBlockMax {
			return upstreamBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
