package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPolicySpacesAdmissions(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindStaticForm: {Policy: PolicyFixed, Delay: 100 * time.Millisecond},
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Admit(context.Background(), models.KindStaticForm))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond, "three admits need two full delays")
}

func TestFixedPolicyIsPerKind(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindStaticForm: {Policy: PolicyFixed, Delay: time.Second},
	})
	require.NoError(t, g.Admit(context.Background(), models.KindStaticForm))

	start := time.Now()
	require.NoError(t, g.Admit(context.Background(), models.KindPagedAPI))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "other kinds are not gated")
}

func TestFixedPolicyHonorsCancellation(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindStaticForm: {Policy: PolicyFixed, Delay: time.Hour},
	})
	require.NoError(t, g.Admit(context.Background(), models.KindStaticForm))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Admit(ctx, models.KindStaticForm)
	assert.Equal(t, fault.KindCanceled, fault.KindOf(err))
}

func TestQuotaUnknownAdmitsImmediately(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindPagedAPI: {Policy: PolicyQuota},
	})

	start := time.Now()
	require.NoError(t, g.Admit(context.Background(), models.KindPagedAPI))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	_, known := g.Snapshot(models.KindPagedAPI)
	assert.False(t, known)
}

func TestQuotaObserveParsesHeaders(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindPagedAPI: {Policy: PolicyQuota},
	})

	reset := time.Now().Add(time.Hour).Unix()
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "57")
	h.Set("X-RateLimit-Limit", "60")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	g.Observe(models.KindPagedAPI, h)

	q, known := g.Snapshot(models.KindPagedAPI)
	require.True(t, known)
	assert.Equal(t, 57, q.Remaining)
	assert.Equal(t, 60, q.Limit)
	assert.Equal(t, reset, q.ResetAt.Unix())

	require.NoError(t, g.Admit(context.Background(), models.KindPagedAPI))
	q, _ = g.Snapshot(models.KindPagedAPI)
	assert.Equal(t, 56, q.Remaining, "admission consumes from the known budget")
}

func TestQuotaExhaustedWaitsForReset(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindPagedAPI: {Policy: PolicyQuota, MaxWait: time.Minute},
	})
	g.SetQuota(models.KindPagedAPI, Quota{Remaining: 0, Limit: 60, ResetAt: time.Now().Add(300 * time.Millisecond)})

	var wg sync.WaitGroup
	durations := make([]time.Duration, 2)
	start := time.Now()
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, g.Admit(context.Background(), models.KindPagedAPI))
			durations[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i, d := range durations {
		assert.GreaterOrEqual(t, d, 290*time.Millisecond, "admit %d bypassed the exhausted quota", i)
	}

	q, _ := g.Snapshot(models.KindPagedAPI)
	assert.Equal(t, 58, q.Remaining)
}

func TestQuotaBeyondMaxWaitFailsFast(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindPagedAPI: {Policy: PolicyQuota, MaxWait: time.Second},
	})
	g.SetQuota(models.KindPagedAPI, Quota{Remaining: 0, ResetAt: time.Now().Add(time.Hour)})

	start := time.Now()
	err := g.Admit(context.Background(), models.KindPagedAPI)
	assert.Equal(t, fault.KindRateLimited, fault.KindOf(err))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestQuotaWaitHonorsCancellation(t *testing.T) {
	g := NewGovernor(map[models.SourceKind]PolicyConfig{
		models.KindPagedAPI: {Policy: PolicyQuota, MaxWait: time.Hour},
	})
	g.SetQuota(models.KindPagedAPI, Quota{Remaining: 0, ResetAt: time.Now().Add(time.Minute)})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Admit(ctx, models.KindPagedAPI)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
}

func TestQuotaUsesInjectedClock(t *testing.T) {
	g := NewGovernor(nil)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	g.SetPolicy(models.KindPagedAPI, PolicyConfig{Policy: PolicyQuota, MaxWait: time.Minute})

	// Reset already passed according to the injected clock.
	g.SetQuota(models.KindPagedAPI, Quota{Remaining: 0, Limit: 10, ResetAt: now.Add(-time.Second)})
	require.NoError(t, g.Admit(context.Background(), models.KindPagedAPI))

	q, _ := g.Snapshot(models.KindPagedAPI)
	assert.Equal(t, 9, q.Remaining)
}
