// Package ratelimit implements the admission primitives shared by every
// server process: a sliding-window counter, a cooldown lock and a
// calendar-day counter, all evaluated atomically in Redis.
//
// The gate fails open: when the store cannot be reached a request is
// admitted and a warning is logged.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"gtin-api/internal/config"
	"gtin-api/internal/metrics"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Result is the outcome of one primitive. RetryAfter is in whole seconds
// and is zero when the request was allowed.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int
	FailedOpen bool
}

// Decision is the combined outcome of the primitives a class requires.
type Decision struct {
	Result
	Class config.EndpointClass
	Key   Key
}

// Err returns an *AdmissionDenied for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &apperrors.AdmissionDenied{
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
		Reason:     fmt.Sprintf("rate limit exceeded for %s requests", d.Class),
	}
}

type Gate struct {
	store   store.Store
	zone    *time.Location
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
	warn    *rate.Sometimes
}

type Option func(*Gate)

// WithClock replaces the wall clock used for window scores and calendar days.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithWarnInterval sets how often store failures are logged while the
// store stays unreachable.
func WithWarnInterval(d time.Duration) Option {
	return func(g *Gate) { g.warn = &rate.Sometimes{First: 1, Interval: d} }
}

func NewGate(s store.Store, zone *time.Location, logger logrus.FieldLogger, opts ...Option) *Gate {
	if zone == nil {
		zone, _ = calendar.LoadZone(calendar.DefaultZone)
	}
	g := &Gate{
		store:  s,
		zone:   zone,
		logger: logger,
		now:    time.Now,
		warn:   &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) failOpen(op, key string, limit int, err error) Result {
	g.metrics.StoreError(op)
	g.warn.Do(func() {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"op":  op,
			"key": key,
		}).Warn("Rate limit store error, allowing request")
	})
	return Result{Allowed: true, Limit: limit, Remaining: limit, FailedOpen: true}
}

// CheckSlidingWindow admits at most limit requests per key in any window
// of the given length.
func (g *Gate) CheckSlidingWindow(ctx context.Context, key string, limit int, window time.Duration) Result {
	nowMs := g.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := g.store.RunScript(ctx, slidingWindowScript, []string{key},
		limit, window.Milliseconds(), nowMs, member)
	if err != nil {
		return g.failOpen("sliding_window", key, limit, err)
	}
	vals, err := int64Slice(res, 3)
	if err != nil {
		return g.failOpen("sliding_window", key, limit, err)
	}

	if vals[0] == 1 {
		return Result{Allowed: true, Limit: limit, Remaining: int(vals[1])}
	}
	return Result{
		Limit:      limit,
		RetryAfter: ceilSeconds(time.Duration(vals[2]) * time.Millisecond),
	}
}

// CheckCooldown admits one request per key and cooldown period. Only the
// lock's expiry releases it.
func (g *Gate) CheckCooldown(ctx context.Context, key string, cooldown time.Duration) Result {
	ok, err := g.store.SetNX(ctx, key, 1, cooldown)
	if err != nil {
		return g.failOpen("cooldown", key, 1, err)
	}
	if ok {
		return Result{Allowed: true, Limit: 1}
	}

	retry := ceilSeconds(cooldown)
	ttl, err := g.store.PTTL(ctx, key)
	if err != nil {
		g.logger.WithError(err).WithField("key", key).Debug("Failed to read cooldown TTL")
	} else if ttl > 0 {
		retry = ceilSeconds(ttl)
	}
	return Result{Limit: 1, RetryAfter: retry}
}

// CheckDailyQuota counts one request against the reference-zone calendar
// day. The counter expires at the next local midnight.
func (g *Gate) CheckDailyQuota(ctx context.Context, key string, dailyLimit int) Result {
	now := g.now()
	dayKey := key + ":" + calendar.DayKey(calendar.Day(now, g.zone))
	untilMidnight := calendar.SecondsUntilNextBoundary(now, g.zone)

	res, err := g.store.RunScript(ctx, dailyCounterScript, []string{dayKey}, untilMidnight)
	if err != nil {
		return g.failOpen("daily_quota", dayKey, dailyLimit, err)
	}
	vals, err := int64Slice(res, 2)
	if err != nil {
		return g.failOpen("daily_quota", dayKey, dailyLimit, err)
	}

	count, ttl := int(vals[0]), int(vals[1])
	if count <= dailyLimit {
		return Result{Allowed: true, Limit: dailyLimit, Remaining: dailyLimit - count}
	}
	if ttl <= 0 {
		ttl = untilMidnight
	}
	return Result{Limit: dailyLimit, RetryAfter: ttl}
}

// Admit runs the primitives params requires, stopping at the first denial.
func (g *Gate) Admit(ctx context.Context, params config.LimiterParameters, scopeID string) Decision {
	key := Key{Scope: params.Scope, ScopeID: scopeID, Class: params.Class}
	d := Decision{Class: params.Class, Key: key}

	switch {
	case params.Cooldown > 0 && params.DailyLimit > 0:
		d.Result = g.CheckCooldown(ctx, key.Cooldown(), params.Cooldown)
		if d.Allowed {
			failedOpen := d.FailedOpen
			d.Result = g.CheckDailyQuota(ctx, key.Daily(), params.DailyLimit)
			d.FailedOpen = d.FailedOpen || failedOpen
		}
	case params.Cooldown > 0:
		d.Result = g.CheckCooldown(ctx, key.String(), params.Cooldown)
	case params.DailyLimit > 0:
		d.Result = g.CheckDailyQuota(ctx, key.Daily(), params.DailyLimit)
	case params.Limit > 0 && params.Window > 0:
		d.Result = g.CheckSlidingWindow(ctx, key.String(), params.Limit, params.Window)
	default:
		d.Result = Result{Allowed: true, Limit: params.Limit, Remaining: params.Limit}
	}

	switch {
	case d.FailedOpen:
		g.metrics.Decision(string(params.Class), metrics.OutcomeFailOpen)
	case d.Allowed:
		g.metrics.Decision(string(params.Class), metrics.OutcomeAllowed)
	default:
		g.metrics.Decision(string(params.Class), metrics.OutcomeDenied)
	}
	return d
}

func int64Slice(res interface{}, n int) ([]int64, error) {
	items, ok := res.([]interface{})
	if !ok || len(items) < n {
		return nil, fmt.Errorf("unexpected script reply %#v", res)
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, ok := items[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script reply element %#v", items[i])
		}
		out[i] = v
	}
	return out, nil
}

// ceilSeconds rounds d up to whole seconds, never below one.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
