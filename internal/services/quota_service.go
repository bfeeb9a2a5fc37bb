package services

import (
	"context"
	"fmt"
	"time"

	"gtin-api/internal/config"
	"gtin-api/internal/metrics"
	"gtin-api/internal/models"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// QuotaService enforces a plan's calendar quota and batch size against the
// persisted usage counters.
type QuotaService interface {
	CheckPlanQuota(ctx context.Context, organizationID uint, plan models.Plan, units int) error
	CheckBatchSize(plan models.Plan, n int) error
}

type quotaService struct {
	repo    repository.APIUsageRepository
	limits  *config.RateLimitConfig
	zone    *time.Location
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewQuotaService(repo repository.APIUsageRepository, limits *config.RateLimitConfig, zone *time.Location, logger logrus.FieldLogger, m *metrics.Metrics) QuotaService {
	return &quotaService{
		repo:    repo,
		limits:  limits,
		zone:    zone,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (s *quotaService) quota(plan models.Plan) config.PlanQuota {
	quota, err := s.limits.Quota(plan)
	if err != nil {
		s.metrics.PolicyFallback()
		s.logger.WithError(err).WithField("plan", plan).Warn("Applying strictest plan quota")
	}
	return quota
}

// CheckPlanQuota returns an *AdmissionDenied when units more calls would
// exceed the plan's daily (basic) or monthly (paid plans) quota. A failed
// usage read lets the request through.
func (s *quotaService) CheckPlanQuota(ctx context.Context, organizationID uint, plan models.Plan, units int) error {
	quota := s.quota(plan)
	now := s.now()

	var (
		used, limit int64
		retryAfter  int
		period      string
		err         error
	)
	switch {
	case quota.DailyLimit > 0:
		limit, period = int64(quota.DailyLimit), "daily"
		retryAfter = calendar.SecondsUntilNextBoundary(now, s.zone)
		used, err = s.repo.OrganizationDayTotal(ctx, organizationID, calendar.Day(now, s.zone))
	case quota.MonthlyLimit > 0:
		limit, period = int64(quota.MonthlyLimit), "monthly"
		retryAfter = calendar.SecondsUntilNextMonth(now, s.zone)
		used, err = s.repo.OrganizationMonthTotal(ctx, organizationID, calendar.Month(now, s.zone))
	default:
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("organization_id", organizationID).
			Warn("Failed to read plan usage, allowing request")
		return nil
	}

	if used+int64(units) <= limit {
		return nil
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &apperrors.AdmissionDenied{
		Limit:      int(limit),
		Remaining:  int(remaining),
		RetryAfter: retryAfter,
		Reason:     fmt.Sprintf("%s limit exceeded: %d of %d calls left", period, remaining, limit),
	}
}

func (s *quotaService) CheckBatchSize(plan models.Plan, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: at least one GTIN is required", apperrors.ErrInvalidInput)
	}
	if n > config.MaxBatchSize {
		return fmt.Errorf("%w: at most %d GTINs per request", apperrors.ErrBatchTooLarge, config.MaxBatchSize)
	}

	quota := s.quota(plan)
	if quota.BatchLimit <= 0 {
		return apperrors.ErrBatchNotAllowed
	}
	if n > quota.BatchLimit {
		return fmt.Errorf("%w: at most %d GTINs per batch on this plan", apperrors.ErrBatchTooLarge, quota.BatchLimit)
	}
	return nil
}
