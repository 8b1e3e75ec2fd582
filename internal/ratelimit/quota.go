package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/rs/zerolog/log"
)

// quotaGate tracks a server-advertised request budget. Admissions are
// serialized through baton, whose blocked senders are served in arrival
// order, so a caller sleeping for the reset holds everyone behind it.
type quotaGate struct {
	baton   chan struct{}
	maxWait time.Duration
	prefix  string
	now     func() time.Time

	mu    sync.Mutex
	known bool
	quota Quota
}

func (q *quotaGate) admit(ctx context.Context) error {
	select {
	case q.baton <- struct{}{}:
	case <-ctx.Done():
		return fault.FromContext(fault.DomainExtraction, ctx.Err())
	}
	defer func() { <-q.baton }()

	q.mu.Lock()
	known, quota := q.known, q.quota
	q.mu.Unlock()

	// Unknown budget admits; the first response establishes it.
	if !known || quota.Remaining > 0 {
		q.consume()
		return nil
	}

	wait := quota.ResetAt.Sub(q.now())
	if wait > 0 {
		if q.maxWait > 0 && wait > q.maxWait {
			return fault.Extraction(fault.KindRateLimited,
				fmt.Sprintf("rate limit exceeded; quota resets at %s", quota.ResetAt.Format(time.RFC3339)), nil).
				WithDetail("reset_at", quota.ResetAt).
				WithDetail("wait", wait.String())
		}

		log.Info().
			Dur("wait", wait).
			Time("reset_at", quota.ResetAt).
			Msg("Quota exhausted, waiting for reset")

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fault.FromContext(fault.DomainExtraction, ctx.Err())
		}
	}

	q.mu.Lock()
	if q.quota.Limit > 0 {
		q.quota.Remaining = q.quota.Limit
	} else {
		q.known = false
	}
	q.mu.Unlock()

	q.consume()
	return nil
}

func (q *quotaGate) consume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.known && q.quota.Remaining > 0 {
		q.quota.Remaining--
	}
}

func (q *quotaGate) observe(h http.Header) {
	remaining, err := strconv.Atoi(strings.TrimSpace(h.Get(q.prefix + "Remaining")))
	if err != nil {
		return
	}

	quota := Quota{Remaining: remaining}
	if limit, err := strconv.Atoi(strings.TrimSpace(h.Get(q.prefix + "Limit"))); err == nil {
		quota.Limit = limit
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(h.Get(q.prefix+"Reset")), 10, 64); err == nil {
		quota.ResetAt = time.Unix(reset, 0)
	}

	q.set(quota)

	log.Debug().
		Int("remaining", quota.Remaining).
		Int("limit", quota.Limit).
		Time("reset_at", quota.ResetAt).
		Msg("Quota observed")
}

func (q *quotaGate) set(quota Quota) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.known = true
	q.quota = quota
}

func (q *quotaGate) snapshot() (Quota, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quota, q.known
}
