package config

import (
	"fmt"
	"time"

	"gtin-api/internal/models"
	apperrors "gtin-api/internal/pkg/errors"
)

// EndpointClass groups endpoints that share one admission policy.
type EndpointClass string

const (
	LookupClass EndpointClass = "lookup"
	SearchClass EndpointClass = "search"
	PublicClass EndpointClass = "public"
)

// Scope says whose identifier buckets the requests.
type Scope string

const (
	ScopeTenant Scope = "tenant"
	ScopeIP     Scope = "ip"
)

// MaxBatchSize caps any batch regardless of plan.
const MaxBatchSize = 100

// LimiterParameters is everything the gate needs to evaluate one class.
// Zero fields disable the corresponding primitive.
type LimiterParameters struct {
	Class      EndpointClass
	Scope      Scope
	Plan       models.Plan
	Limit      int           // sliding window capacity
	Window     time.Duration // sliding window length
	Cooldown   time.Duration
	DailyLimit int
}

// PlanQuota holds the calendar quotas and batch size of a plan.
type PlanQuota struct {
	DailyLimit   int // 0: no daily quota
	MonthlyLimit int // 0: no monthly quota
	BatchLimit   int // 0: batch lookups not allowed
}

type planLimits struct {
	LookupPerMinute int
	SearchCooldown  time.Duration
	Quota           PlanQuota
}

type RateLimitConfig struct {
	Plans          map[models.Plan]planLimits
	Strictest      models.Plan
	LookupWindow   time.Duration
	PublicDaily    int
	PublicCooldown time.Duration
}

func NewRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Plans: map[models.Plan]planLimits{
			models.BasicPlan: {
				LookupPerMinute: 30,
				SearchCooldown:  12 * time.Second,
				Quota:           PlanQuota{DailyLimit: 15},
			},
			models.StarterPlan: {
				LookupPerMinute: 60,
				SearchCooldown:  6 * time.Second,
				Quota:           PlanQuota{MonthlyLimit: 10000, BatchLimit: 25},
			},
			models.ProPlan: {
				LookupPerMinute: 90,
				SearchCooldown:  4 * time.Second,
				Quota:           PlanQuota{MonthlyLimit: 50000, BatchLimit: 50},
			},
			models.AdvancedPlan: {
				LookupPerMinute: 120,
				SearchCooldown:  2 * time.Second,
				Quota:           PlanQuota{MonthlyLimit: 200000, BatchLimit: 100},
			},
		},
		Strictest:      models.BasicPlan,
		LookupWindow:   time.Minute,
		PublicDaily:    20,
		PublicCooldown: 5 * time.Second,
	}
}

// Resolve maps (plan, class) to limiter parameters. It never fails to
// return usable parameters: an unknown plan or class falls back to the
// strictest known policy and the returned error says so.
func (c *RateLimitConfig) Resolve(plan models.Plan, class EndpointClass) (LimiterParameters, error) {
	var misconfigured error

	plan = models.NormalizePlan(string(plan))
	limits, ok := c.Plans[plan]
	if !ok && class != PublicClass {
		misconfigured = fmt.Errorf("%w: unknown plan %q", apperrors.ErrPolicyMisconfiguration, plan)
		plan = c.Strictest
		limits = c.Plans[plan]
	}

	switch class {
	case LookupClass:
		return LimiterParameters{
			Class:  class,
			Scope:  ScopeTenant,
			Plan:   plan,
			Limit:  limits.LookupPerMinute,
			Window: c.LookupWindow,
		}, misconfigured
	case SearchClass:
		return LimiterParameters{
			Class:    class,
			Scope:    ScopeTenant,
			Plan:     plan,
			Limit:    1,
			Cooldown: limits.SearchCooldown,
		}, misconfigured
	case PublicClass:
		return LimiterParameters{
			Class:      class,
			Scope:      ScopeIP,
			Limit:      1,
			Cooldown:   c.PublicCooldown,
			DailyLimit: c.PublicDaily,
		}, nil
	}

	strictest := c.Plans[c.Strictest]
	return LimiterParameters{
		Class:    class,
		Scope:    ScopeTenant,
		Plan:     c.Strictest,
		Limit:    1,
		Cooldown: strictest.SearchCooldown,
	}, fmt.Errorf("%w: unknown endpoint class %q", apperrors.ErrPolicyMisconfiguration, class)
}

// Quota returns the calendar quotas for plan, falling back like Resolve.
func (c *RateLimitConfig) Quota(plan models.Plan) (PlanQuota, error) {
	plan = models.NormalizePlan(string(plan))
	if limits, ok := c.Plans[plan]; ok {
		return limits.Quota, nil
	}
	return c.Plans[c.Strictest].Quota, fmt.Errorf("%w: unknown plan %q", apperrors.ErrPolicyMisconfiguration, plan)
}
