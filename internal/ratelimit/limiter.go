// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
	"golang.org/x/time/rate"
)

// Admitter gates outbound requests per source kind.
//
// Admit blocks until a request may proceed. Observe feeds response headers
// back so quota-based policies can track the server's view of the budget.
type Admitter interface {
	Admit(ctx context.Context, kind models.SourceKind) error
	Observe(kind models.SourceKind, header http.Header)
}

// Policy names a rate policy
type Policy string

const (
	PolicyNone  Policy = "none"
	PolicyFixed Policy = "fixed"
	PolicyQuota Policy = "quota"
)

// PolicyConfig configures the gate for one source kind
type PolicyConfig struct {
	Policy Policy

	// Delay is the minimum spacing between admissions (fixed policy)
	Delay time.Duration

	// MaxWait bounds how long a quota gate sleeps for a reset; beyond it
	// Admit fails with RATE_LIMITED (quota policy)
	MaxWait time.Duration

	// HeaderPrefix for quota headers, default "X-RateLimit-"
	HeaderPrefix string
}

// Quota is the last known server-side budget
type Quota struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

type gate interface {
	admit(ctx context.Context) error
	observe(h http.Header)
}

// Governor holds one gate per source kind. It is safe for concurrent use.
type Governor struct {
	mu    sync.RWMutex
	gates map[models.SourceKind]gate
	now   func() time.Time
}

// NewGovernor builds a governor. Kinds without a policy are admitted immediately.
func NewGovernor(policies map[models.SourceKind]PolicyConfig) *Governor {
	g := &Governor{
		gates: make(map[models.SourceKind]gate),
		now:   time.Now,
	}
	for kind, p := range policies {
		g.SetPolicy(kind, p)
	}
	return g
}

// SetPolicy replaces the gate for kind
func (g *Governor) SetPolicy(kind models.SourceKind, p PolicyConfig) {
	var gt gate
	switch Policy(strings.ToLower(string(p.Policy))) {
	case PolicyFixed:
		if p.Delay > 0 {
			gt = &fixedGate{limiter: rate.NewLimiter(rate.Every(p.Delay), 1)}
		}
	case PolicyQuota:
		prefix := p.HeaderPrefix
		if prefix == "" {
			prefix = "X-RateLimit-"
		}
		gt = &quotaGate{
			baton:   make(chan struct{}, 1),
			maxWait: p.MaxWait,
			prefix:  prefix,
			now:     func() time.Time { return g.now() },
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if gt == nil {
		delete(g.gates, kind)
		return
	}
	g.gates[kind] = gt
}

// Admit blocks until a request of the given kind may proceed
func (g *Governor) Admit(ctx context.Context, kind models.SourceKind) error {
	if ctx == nil {
		ctx = context.Background()
	}
	gt := g.getGate(kind)
	if gt == nil {
		return nil
	}
	return gt.admit(ctx)
}

// Observe records quota headers from a response. Non-quota gates ignore it.
func (g *Governor) Observe(kind models.SourceKind, header http.Header) {
	if header == nil {
		return
	}
	if gt := g.getGate(kind); gt != nil {
		gt.observe(header)
	}
}

// Snapshot returns the last known quota for kind
func (g *Governor) Snapshot(kind models.SourceKind) (Quota, bool) {
	q, ok := g.getGate(kind).(*quotaGate)
	if !ok {
		return Quota{}, false
	}
	return q.snapshot()
}

// SetQuota overrides the known quota for kind, e.g. from a persisted value
func (g *Governor) SetQuota(kind models.SourceKind, quota Quota) {
	if q, ok := g.getGate(kind).(*quotaGate); ok {
		q.set(quota)
	}
}

func (g *Governor) getGate(kind models.SourceKind) gate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gates[kind]
}

// fixedGate spaces admissions by a constant delay using a token bucket of size 1
type fixedGate struct {
	limiter *rate.Limiter
}

func (f *fixedGate) admit(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fault.FromContext(fault.DomainExtraction, ctx.Err())
		}
		// Wait refuses up front when the delay would outlive the deadline
		return fault.Extraction(fault.KindTimeout, "rate delay exceeds deadline", err)
	}
	return nil
}

func (f *fixedGate) observe(http.Header) {}

var _ Admitter = (*Governor)(nil)
