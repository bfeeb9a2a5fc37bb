package config

import (
	"errors"
	"testing"
	"time"

	"gtin-api/internal/models"
	apperrors "gtin-api/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLookupPerPlan(t *testing.T) {
	cfg := NewRateLimitConfig()

	tests := []struct {
		plan  models.Plan
		limit int
	}{
		{models.BasicPlan, 30},
		{models.StarterPlan, 60},
		{models.ProPlan, 90},
		{models.AdvancedPlan, 120},
		{"Starter ", 60},
	}

	for _, tt := range tests {
		params, err := cfg.Resolve(tt.plan, LookupClass)
		require.NoError(t, err, tt.plan)
		assert.Equal(t, tt.limit, params.Limit, tt.plan)
		assert.Equal(t, time.Minute, params.Window)
		assert.Equal(t, ScopeTenant, params.Scope)
	}
}

func TestResolveSearchCooldown(t *testing.T) {
	params, err := NewRateLimitConfig().Resolve(models.ProPlan, SearchClass)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, params.Cooldown)
	assert.Zero(t, params.Window)
}

func TestResolvePublicIsScopedByIP(t *testing.T) {
	params, err := NewRateLimitConfig().Resolve("", PublicClass)
	require.NoError(t, err)
	assert.Equal(t, ScopeIP, params.Scope)
	assert.Equal(t, 20, params.DailyLimit)
	assert.Equal(t, 5*time.Second, params.Cooldown)
}

func TestResolveUnknownPlanFallsBackToStrictest(t *testing.T) {
	params, err := NewRateLimitConfig().Resolve("enterprise", LookupClass)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPolicyMisconfiguration))
	assert.Equal(t, models.BasicPlan, params.Plan)
	assert.Equal(t, 30, params.Limit)
}

func TestResolveUnknownClass(t *testing.T) {
	params, err := NewRateLimitConfig().Resolve(models.AdvancedPlan, EndpointClass("export"))
	require.ErrorIs(t, err, apperrors.ErrPolicyMisconfiguration)
	assert.Equal(t, 12*time.Second, params.Cooldown)
	assert.Equal(t, ScopeTenant, params.Scope)
}

func TestQuota(t *testing.T) {
	cfg := NewRateLimitConfig()

	q, err := cfg.Quota(models.BasicPlan)
	require.NoError(t, err)
	assert.Equal(t, PlanQuota{DailyLimit: 15}, q)

	q, err = cfg.Quota("legacy")
	assert.ErrorIs(t, err, apperrors.ErrPolicyMisconfiguration)
	assert.Equal(t, 15, q.DailyLimit)
}
