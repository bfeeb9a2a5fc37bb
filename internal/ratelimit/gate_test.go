package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"gtin-api/internal/config"
	"gtin-api/internal/metrics"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func storeConfig(addr string) config.RedisConfig {
	return config.RedisConfig{
		Enabled:          true,
		URL:              "redis://" + addr,
		ConnectTimeout:   200 * time.Millisecond,
		OperationTimeout: 200 * time.Millisecond,
		ReconnectBackoff: time.Minute,
	}
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := calendar.LoadZone(calendar.DefaultZone)
	require.NoError(t, err)
	return loc
}

func newTestGate(t *testing.T, start time.Time, opts ...Option) (*Gate, *miniredis.Miniredis, *clock) {
	t.Helper()

	server := miniredis.RunT(t)
	storeLogger, _ := test.NewNullLogger()
	s := store.NewRedisStore(storeConfig(server.Addr()), storeLogger)
	t.Cleanup(func() { _ = s.Close() })

	c := &clock{now: start}
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewGate(s, saoPaulo(t), logger, opts...), server, c
}

func TestKeyLayout(t *testing.T) {
	k := Key{Scope: config.ScopeIP, ScopeID: "203.0.113.7", Class: config.PublicClass}

	assert.Equal(t, "rl:ip:203.0.113.7:public", k.String())
	assert.Equal(t, "rl:ip:203.0.113.7:public:cooldown", k.Cooldown())
	assert.Equal(t, "rl:ip:203.0.113.7:public:daily", k.Daily())
}

func TestSlidingWindowAllowsUpToLimit(t *testing.T) {
	g, _, c := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		res := g.CheckSlidingWindow(ctx, "rl:tenant:42:lookup", 60, time.Minute)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 60-i-1, res.Remaining)
		c.Advance(100 * time.Millisecond)
	}

	res := g.CheckSlidingWindow(ctx, "rl:tenant:42:lookup", 60, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.Limit)
	assert.Zero(t, res.Remaining)
	assert.GreaterOrEqual(t, res.RetryAfter, 1)
	assert.LessOrEqual(t, res.RetryAfter, 60)
}

func TestSlidingWindowSlides(t *testing.T) {
	g, _, c := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, g.CheckSlidingWindow(ctx, "k", 3, time.Minute).Allowed)
	}

	blocked := g.CheckSlidingWindow(ctx, "k", 3, time.Minute)
	require.False(t, blocked.Allowed)
	assert.Equal(t, 60, blocked.RetryAfter)

	c.Advance(30 * time.Second)
	blocked = g.CheckSlidingWindow(ctx, "k", 3, time.Minute)
	require.False(t, blocked.Allowed)
	assert.Equal(t, 30, blocked.RetryAfter)

	c.Advance(30*time.Second + time.Millisecond)
	res := g.CheckSlidingWindow(ctx, "k", 3, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestSlidingWindowUnderConcurrency(t *testing.T) {
	g, _, _ := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))

	var allowed atomic.Int64
	var eg errgroup.Group
	for i := 0; i < 50; i++ {
		eg.Go(func() error {
			if g.CheckSlidingWindow(context.Background(), "rl:tenant:7:lookup", 10, time.Minute).Allowed {
				allowed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, int64(10), allowed.Load())
}

func TestCooldownReleasesOnlyOnExpiry(t *testing.T) {
	g, server, _ := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first := g.CheckCooldown(ctx, "rl:tenant:42:search", 12*time.Second)
	require.True(t, first.Allowed)

	second := g.CheckCooldown(ctx, "rl:tenant:42:search", 12*time.Second)
	assert.False(t, second.Allowed)
	assert.Equal(t, 12, second.RetryAfter)

	server.FastForward(9500 * time.Millisecond)
	third := g.CheckCooldown(ctx, "rl:tenant:42:search", 12*time.Second)
	assert.False(t, third.Allowed)
	assert.Equal(t, 3, third.RetryAfter)

	server.FastForward(3 * time.Second)
	assert.True(t, g.CheckCooldown(ctx, "rl:tenant:42:search", 12*time.Second).Allowed)
}

func TestDailyQuotaResetsAtLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC-03", -3*60*60)
	start := time.Date(2025, 3, 10, 23, 59, 0, 0, loc)
	g, server, c := newTestGate(t, start)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := g.CheckDailyQuota(ctx, "rl:ip:1.2.3.4:public:daily", 3)
		require.True(t, res.Allowed)
		assert.Equal(t, 3-i-1, res.Remaining)
	}

	denied := g.CheckDailyQuota(ctx, "rl:ip:1.2.3.4:public:daily", 3)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 60, denied.RetryAfter)
	assert.Equal(t, 60*time.Second, server.TTL("rl:ip:1.2.3.4:public:daily:2025-03-10"))

	c.Advance(90 * time.Second)
	res := g.CheckDailyQuota(ctx, "rl:ip:1.2.3.4:public:daily", 3)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.True(t, server.Exists("rl:ip:1.2.3.4:public:daily:2025-03-11"))
}

func TestDailyQuotaRestoresMissingTTL(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) // 09:00 in the reference zone
	g, server, _ := newTestGate(t, start)

	require.NoError(t, server.Set("rl:tenant:1:lookup:daily:2025-03-10", "5"))

	res := g.CheckDailyQuota(context.Background(), "rl:tenant:1:lookup:daily", 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 15*time.Hour, server.TTL("rl:tenant:1:lookup:daily:2025-03-10"))
}

func TestAdmitPublicRunsCooldownThenDaily(t *testing.T) {
	g, server, _ := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	params, err := config.NewRateLimitConfig().Resolve("", config.PublicClass)
	require.NoError(t, err)

	d := g.Admit(ctx, params, "198.51.100.1")
	require.True(t, d.Allowed)
	require.NoError(t, d.Err())
	assert.Equal(t, 20, d.Limit)
	assert.Equal(t, 19, d.Remaining)

	d = g.Admit(ctx, params, "198.51.100.1")
	assert.False(t, d.Allowed)
	denied, ok := apperrors.IsAdmissionDenied(d.Err())
	require.True(t, ok)
	assert.Equal(t, 5, denied.RetryAfter)
	assert.Equal(t, 1, denied.Limit)

	server.FastForward(5 * time.Second)
	d = g.Admit(ctx, params, "198.51.100.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 18, d.Remaining)
}

func TestAdmitExhaustsPublicDailyQuota(t *testing.T) {
	g, server, _ := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	params, err := config.NewRateLimitConfig().Resolve("", config.PublicClass)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.True(t, g.Admit(ctx, params, "198.51.100.9").Allowed, "request %d", i+1)
		server.FastForward(5 * time.Second)
	}

	d := g.Admit(ctx, params, "198.51.100.9")
	assert.False(t, d.Allowed)
	assert.Equal(t, 20, d.Limit)
	// The counter was created at noon in the reference zone, 100s of store
	// time ago.
	assert.Equal(t, 12*60*60-100, d.RetryAfter)
}

func TestAdmitSearchUsesTenantCooldown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	g, _, _ := newTestGate(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), WithMetrics(m))
	params, err := config.NewRateLimitConfig().Resolve("pro", config.SearchClass)
	require.NoError(t, err)

	first := g.Admit(context.Background(), params, "42")
	second := g.Admit(context.Background(), params, "42")

	assert.True(t, first.Allowed)
	assert.Equal(t, "rl:tenant:42:search", first.Key.String())
	assert.False(t, second.Allowed)
	assert.Equal(t, 4, second.RetryAfter)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("search", metrics.OutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("search", metrics.OutcomeDenied)))
}

func TestGateFailsOpenWhenStoreIsDown(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	storeLogger, _ := test.NewNullLogger()
	s := store.NewRedisStore(storeConfig(addr), storeLogger)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	g := NewGate(s, saoPaulo(t), logger, WithMetrics(m))
	params, err := config.NewRateLimitConfig().Resolve("starter", config.LookupClass)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d := g.Admit(context.Background(), params, "42")
		assert.True(t, d.Allowed)
		assert.True(t, d.FailedOpen)
		assert.Equal(t, 60, d.Remaining)
		assert.Zero(t, d.RetryAfter)
		assert.NoError(t, d.Err())
	}

	assert.True(t, g.CheckCooldown(context.Background(), "c", time.Second).Allowed)
	assert.True(t, g.CheckDailyQuota(context.Background(), "d", 1).Allowed)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Decisions.WithLabelValues("lookup", metrics.OutcomeFailOpen)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("sliding_window")))
}
